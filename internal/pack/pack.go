// Package pack partitions tasks into capacity-bounded job batches.
package pack

import "fmt"

// Capacity describes how many tasks fit into one job.
//
// When UnitsPerTask is set, a job holds TotalUnits/UnitsPerTask tasks and each
// task gets its own UnitsPerTask-wide slice of the job's units (GPUs).
// Otherwise MaxTasks bounds the job directly.
type Capacity struct {
	TotalUnits   int
	UnitsPerTask int
	MaxTasks     int
}

func (c Capacity) String() string {
	if c.UnitsPerTask != 0 {
		return fmt.Sprintf("total_units=%d units_per_task=%d", c.TotalUnits, c.UnitsPerTask)
	}
	return fmt.Sprintf("max_tasks=%d", c.MaxTasks)
}

// MaxTasksPerJob resolves the per-job task limit.
func (c Capacity) MaxTasksPerJob() (int, error) {
	var n int
	if c.UnitsPerTask != 0 {
		if c.UnitsPerTask < 0 || c.TotalUnits < 0 {
			return 0, NewInsufficientCapacityError(c, "unit counts must not be negative")
		}
		n = c.TotalUnits / c.UnitsPerTask
		if n < 1 {
			return 0, NewInsufficientCapacityError(c,
				fmt.Sprintf("%d units cannot hold a task needing %d", c.TotalUnits, c.UnitsPerTask))
		}
		return n, nil
	}
	n = c.MaxTasks
	if n < 1 {
		return 0, NewInsufficientCapacityError(c, "need max_tasks >= 1 or a units_per_task")
	}
	return n, nil
}

// Policy holds packing options that come from configuration.
type Policy struct {
	// ScaleResources makes a batch request only UnitsPerTask * len(tasks)
	// units instead of the template's full TotalUnits.
	ScaleResources bool
}

// Params are the resolved template parameters every batch carries.
type Params struct {
	TimeLimit string
	Partition string
}

// Task is one concrete command bound to a slot.
type Task struct {
	Slot    int
	Command string
	Units   int
}

// JobBatch is the unit of submission: an ordered group of tasks that runs as
// one scheduler job.
type JobBatch struct {
	Index  int
	Tasks  []Task
	Units  int
	Params Params
}

// Slots returns the slot of every task in batch order.
func (b JobBatch) Slots() []int {
	slots := make([]int, len(b.Tasks))
	for i, t := range b.Tasks {
		slots[i] = t.Slot
	}
	return slots
}

// UnitRange returns the units assigned to the task at position pos of the
// batch, as consecutive device indices starting at 0.
func (b JobBatch) UnitRange(pos int) []int {
	if pos < 0 || pos >= len(b.Tasks) {
		return nil
	}
	first := 0
	for _, t := range b.Tasks[:pos] {
		first += t.Units
	}
	units := make([]int, b.Tasks[pos].Units)
	for i := range units {
		units[i] = first + i
	}
	return units
}

// NewTasks turns commands into tasks numbered from slot 0 in input order.
func NewTasks(commands []string, unitsPerTask int) []Task {
	tasks := make([]Task, len(commands))
	for i, c := range commands {
		tasks[i] = Task{Slot: i, Command: c, Units: unitsPerTask}
	}
	return tasks
}

// Chunk splits tasks into consecutive groups of at most size.
func Chunk(tasks []Task, size int) [][]Task {
	if size <= 0 {
		return [][]Task{tasks}
	}
	var chunks [][]Task
	for i := 0; i < len(tasks); i += size {
		end := i + size
		if end > len(tasks) {
			end = len(tasks)
		}
		chunks = append(chunks, tasks[i:end])
	}
	return chunks
}

// Pack greedily fills batches in input order, producing ceil(N/max) batches.
// The capacity is checked even when tasks is empty.
func Pack(tasks []Task, c Capacity, policy Policy, params Params) ([]JobBatch, error) {
	limit, err := c.MaxTasksPerJob()
	if err != nil {
		return nil, err
	}

	chunks := Chunk(tasks, limit)
	batches := make([]JobBatch, 0, len(chunks))
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		own := make([]Task, len(chunk))
		copy(own, chunk)
		batches = append(batches, JobBatch{
			Index:  i,
			Tasks:  own,
			Units:  requestedUnits(c, policy, len(own)),
			Params: params,
		})
	}
	return batches, nil
}

func requestedUnits(c Capacity, policy Policy, n int) int {
	if policy.ScaleResources && c.UnitsPerTask > 0 {
		return n * c.UnitsPerTask
	}
	return c.TotalUnits
}
