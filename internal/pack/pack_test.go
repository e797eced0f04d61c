package pack

import (
	"fmt"
	"reflect"
	"testing"
)

func commands(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("python train.py --seed %d", i)
	}
	return out
}

func TestMaxTasksPerJob(t *testing.T) {
	tests := []struct {
		name    string
		cap     Capacity
		want    int
		wantErr bool
	}{
		{"units divide evenly", Capacity{TotalUnits: 4, UnitsPerTask: 1}, 4, false},
		{"units floor", Capacity{TotalUnits: 5, UnitsPerTask: 2}, 2, false},
		{"units take precedence over max_tasks", Capacity{TotalUnits: 4, UnitsPerTask: 2, MaxTasks: 10}, 2, false},
		{"max tasks", Capacity{MaxTasks: 3}, 3, false},
		{"zero units", Capacity{TotalUnits: 0, UnitsPerTask: 1}, 0, true},
		{"task larger than job", Capacity{TotalUnits: 2, UnitsPerTask: 4}, 0, true},
		{"no limit at all", Capacity{}, 0, true},
		{"negative units", Capacity{TotalUnits: -4, UnitsPerTask: 1}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cap.MaxTasksPerJob()
			if tt.wantErr {
				if !IsInsufficientCapacityError(err) {
					t.Fatalf("expected InsufficientCapacityError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("MaxTasksPerJob() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPackSizes(t *testing.T) {
	tests := []struct {
		n     int
		max   int
		sizes []int
	}{
		{16, 4, []int{4, 4, 4, 4}},
		{5, 4, []int{4, 1}},
		{3, 4, []int{3}},
		{1, 1, []int{1}},
		{0, 4, []int{}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.n, tt.max), func(t *testing.T) {
			batches, err := Pack(NewTasks(commands(tt.n), 0), Capacity{MaxTasks: tt.max}, Policy{}, Params{})
			if err != nil {
				t.Fatal(err)
			}
			sizes := make([]int, len(batches))
			for i, b := range batches {
				sizes[i] = len(b.Tasks)
			}
			if !reflect.DeepEqual(sizes, tt.sizes) {
				t.Errorf("batch sizes = %v, want %v", sizes, tt.sizes)
			}
		})
	}
}

func TestPackPreservesOrder(t *testing.T) {
	cmds := commands(16)
	batches, err := Pack(NewTasks(cmds, 1), Capacity{TotalUnits: 4, UnitsPerTask: 1}, Policy{}, Params{})
	if err != nil {
		t.Fatal(err)
	}
	var flat []string
	for i, b := range batches {
		if b.Index != i {
			t.Errorf("batch %d has Index %d", i, b.Index)
		}
		if len(b.Tasks) > 4 {
			t.Errorf("batch %d over capacity: %d tasks", i, len(b.Tasks))
		}
		for _, task := range b.Tasks {
			flat = append(flat, task.Command)
		}
	}
	if !reflect.DeepEqual(flat, cmds) {
		t.Errorf("flattened batches do not match input order")
	}
}

func TestPackDeterministic(t *testing.T) {
	tasks := NewTasks(commands(11), 2)
	c := Capacity{TotalUnits: 8, UnitsPerTask: 2}
	first, _ := Pack(tasks, c, Policy{}, Params{TimeLimit: "01:00:00"})
	second, _ := Pack(tasks, c, Policy{}, Params{TimeLimit: "01:00:00"})
	if !reflect.DeepEqual(first, second) {
		t.Error("Pack is not deterministic")
	}
}

func TestPackCapacityCheckedWithoutTasks(t *testing.T) {
	_, err := Pack(nil, Capacity{TotalUnits: 0, UnitsPerTask: 1}, Policy{}, Params{})
	if !IsInsufficientCapacityError(err) {
		t.Fatalf("expected InsufficientCapacityError, got %v", err)
	}
}

func TestPackUnits(t *testing.T) {
	c := Capacity{TotalUnits: 4, UnitsPerTask: 2}
	tasks := NewTasks(commands(3), 2)

	full, _ := Pack(tasks, c, Policy{}, Params{})
	if full[1].Units != 4 {
		t.Errorf("unscaled partial batch requests %d units, want 4", full[1].Units)
	}

	scaled, _ := Pack(tasks, c, Policy{ScaleResources: true}, Params{})
	if scaled[0].Units != 4 || scaled[1].Units != 2 {
		t.Errorf("scaled units = [%d %d], want [4 2]", scaled[0].Units, scaled[1].Units)
	}
}

func TestUnitRange(t *testing.T) {
	batch := JobBatch{Tasks: NewTasks(commands(3), 2)}
	if got := batch.UnitRange(1); !reflect.DeepEqual(got, []int{2, 3}) {
		t.Errorf("UnitRange(1) = %v, want [2 3]", got)
	}
	if got := batch.UnitRange(5); got != nil {
		t.Errorf("UnitRange out of range = %v, want nil", got)
	}
	if got := batch.Slots(); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("Slots() = %v", got)
	}
}

func TestPackKeepsSlots(t *testing.T) {
	tasks := []Task{{Slot: 2, Command: "b"}, {Slot: 7, Command: "h"}}
	batches, err := Pack(tasks, Capacity{MaxTasks: 4}, Policy{}, Params{})
	if err != nil {
		t.Fatal(err)
	}
	if got := batches[0].Slots(); !reflect.DeepEqual(got, []int{2, 7}) {
		t.Errorf("Slots() = %v, want [2 7]", got)
	}
}
