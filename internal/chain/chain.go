// Package chain runs a chain of job generations: it submits the packed
// tasks, waits for every job, and resubmits the tasks that asked to be
// resumed until none do or their resume limit is reached.
package chain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/sweep"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/rs/zerolog"
)

// maxPollFailures is how many consecutive poll errors one job may produce
// before the chain gives up waiting for it.
const maxPollFailures = 5

// Emitter turns one batch into a submitted job.
type Emitter interface {
	Emit(ctx context.Context, gen int, b pack.JobBatch) (scheduler.JobHandle, error)
}

// Poller reports the state of a submitted job.
type Poller interface {
	Poll(ctx context.Context, h scheduler.JobHandle) (scheduler.JobStatus, error)
}

// ResumeReader reads the continuation command a task left behind. ok is
// false when the task did not ask to be resumed.
type ResumeReader interface {
	Read(h scheduler.JobHandle, slot int) (command string, ok bool, err error)
}

// Request is everything needed to run a chain.
type Request struct {
	ID         string
	Template   string
	Specs      []sweep.Spec
	Capacity   pack.Capacity
	Policy     pack.Policy
	Params     pack.Params
	MaxResumes ResumeLimit
	DryRun     bool
}

// SubmittedBatch is one batch of a generation and what became of it.
type SubmittedBatch struct {
	Batch  pack.JobBatch
	Handle scheduler.JobHandle
	Status scheduler.JobStatus
	Err    error
}

// ResumeDecision records what happened to one slot's resume request.
type ResumeDecision struct {
	Slot     int
	Command  string
	Count    int  // resumes of the slot including this one, when accepted
	Accepted bool // false when the slot had used up its resume limit
}

// Generation is one round of submitted jobs.
type Generation struct {
	Index   int
	Batches []SubmittedBatch
	Resumes []ResumeDecision
}

// Tasks returns the number of tasks in the generation.
func (g *Generation) Tasks() int {
	n := 0
	for _, b := range g.Batches {
		n += len(b.Batch.Tasks)
	}
	return n
}

// Result is the outcome of a chain.
type Result struct {
	ID           string
	State        State
	Generations  []*Generation
	ResumeCounts map[int]int
	Started      time.Time
	Finished     time.Time
	Err          error
}

// ExitStatus maps the result to a process exit status.
func (r *Result) ExitStatus() int {
	if r == nil || r.Err != nil {
		return 1
	}
	return 0
}

// Controller drives a chain through its states. It owns the chain state
// exclusively and is not safe for concurrent use.
type Controller struct {
	Emitter      Emitter
	Poller       Poller
	Resumes      ResumeReader
	Recorder     Recorder
	Log          zerolog.Logger
	PollInterval time.Duration

	now    func() time.Time
	repack func([]pack.Task, pack.Capacity, pack.Policy, pack.Params) ([]pack.JobBatch, error)
	state  State
}

// NewController creates a controller with a disabled event log and no recorder.
func NewController(e Emitter, p Poller, r ResumeReader) *Controller {
	return &Controller{
		Emitter:  e,
		Poller:   p,
		Resumes:  r,
		Recorder: NopRecorder{},
		Log:      zerolog.Nop(),
		now:      time.Now,
		repack:   pack.Pack,
	}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

func (c *Controller) transition(to State) error {
	if !isAllowedTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.Log.Info().Str("event", "transition").Str("from", string(c.state)).Str("to", string(to)).Msg("state")
	c.state = to
	return nil
}

func (c *Controller) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Run expands and packs the request, submits generation 0 and keeps
// resubmitting resumed slots until the chain is done. Configuration errors
// are returned before anything is submitted, with a nil Result. Once jobs
// are submitted the Result is always returned; its Err matches the error.
// Cancelling ctx stops waiting but leaves submitted jobs running.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	if c.Recorder == nil {
		c.Recorder = NopRecorder{}
	}
	c.state = StateInit

	commands, err := sweep.ExpandAll(req.Specs)
	if err != nil {
		return nil, err
	}
	if len(commands) == 0 {
		return nil, ErrNoTasks
	}
	tasks := pack.NewTasks(commands, req.Capacity.UnitsPerTask)
	batches, err := pack.Pack(tasks, req.Capacity, req.Policy, req.Params)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:           req.ID,
		ResumeCounts: make(map[int]int),
		Started:      c.clock(),
	}
	c.Log.Info().
		Str("event", "chain_start").
		Str("chain", req.ID).
		Str("template", req.Template).
		Int("tasks", len(tasks)).
		Int("jobs", len(batches)).
		Str("capacity", req.Capacity.String()).
		Str("max_resumes", req.MaxResumes.String()).
		Bool("dry_run", req.DryRun).
		Msg("chain started")
	c.record("chain start", c.Recorder.ChainStarted(ChainInfo{
		ID:         req.ID,
		Template:   req.Template,
		Tasks:      len(tasks),
		MaxResumes: req.MaxResumes,
		DryRun:     req.DryRun,
		Started:    res.Started,
	}))

	err = c.loop(ctx, req, batches, res)
	res.State = c.state
	res.Finished = c.clock()
	res.Err = err

	ev := c.Log.Info()
	if err != nil {
		ev = c.Log.Error().Err(err)
	}
	ev.Str("event", "chain_finish").
		Str("chain", req.ID).
		Str("state", string(c.state)).
		Int("generations", len(res.Generations)).
		Msg("chain finished")
	c.record("chain finish", c.Recorder.ChainFinished(res))
	return res, err
}

func (c *Controller) loop(ctx context.Context, req Request, batches []pack.JobBatch, res *Result) error {
	for genIdx := 0; ; genIdx++ {
		gen := c.submit(ctx, genIdx, batches)
		res.Generations = append(res.Generations, gen)
		if err := c.transition(StateSubmitted); err != nil {
			return err
		}

		if failures := submitFailures(gen); len(failures) > 0 {
			if err := c.transition(StateDone); err != nil {
				return err
			}
			return NewPartialGenerationError(genIdx, len(gen.Batches)-len(failures), failures)
		}
		if req.DryRun {
			return c.transition(StateDone)
		}

		if err := c.transition(StateAwaitingCompletion); err != nil {
			return err
		}
		if err := c.await(ctx, gen); err != nil {
			if ctx.Err() != nil {
				// interrupted: stay in AWAITING_COMPLETION, jobs keep running
				return err
			}
			if terr := c.transition(StateDone); terr != nil {
				return terr
			}
			return err
		}

		if err := c.transition(StateCollectingResumes); err != nil {
			return err
		}
		next := c.collect(req, gen, res.ResumeCounts)
		if len(next) == 0 {
			return c.transition(StateDone)
		}

		repack := c.repack
		if repack == nil {
			repack = pack.Pack
		}
		packed, err := repack(next, req.Capacity, req.Policy, req.Params)
		if err != nil {
			if terr := c.transition(StateDone); terr != nil {
				return terr
			}
			return err
		}
		if err := c.transition(StateResubmitting); err != nil {
			return err
		}
		batches = packed
	}
}

// submit hands every batch to the emitter. A failed batch does not stop the
// remaining ones from being tried.
func (c *Controller) submit(ctx context.Context, genIdx int, batches []pack.JobBatch) *Generation {
	gen := &Generation{Index: genIdx}
	for _, b := range batches {
		sb := SubmittedBatch{Batch: b}
		sb.Handle, sb.Err = c.Emitter.Emit(ctx, genIdx, b)
		if sb.Err != nil {
			c.Log.Error().Err(sb.Err).
				Str("event", "submit_failed").
				Int("generation", genIdx).
				Int("job", b.Index).
				Ints("slots", b.Slots()).
				Msg("submission failed")
			utils.PrintError("Generation %d job %d failed to submit: %v", genIdx, b.Index, sb.Err)
		} else {
			c.Log.Info().
				Str("event", "submitted").
				Int("generation", genIdx).
				Int("job", b.Index).
				Str("job_id", sb.Handle.ID).
				Str("script", sb.Handle.ScriptPath).
				Ints("slots", b.Slots()).
				Int("units", b.Units).
				Msg("job submitted")
			if sb.Handle.ID != "" {
				utils.PrintMessage("Submitted job %s (generation %s, %s task(s))",
					utils.StyleNumber(sb.Handle.ID), utils.StyleNumber(genIdx), utils.StyleNumber(len(b.Tasks)))
			} else {
				utils.PrintMessage("Wrote %s (generation %s, %s task(s))",
					utils.StylePath(sb.Handle.ScriptPath), utils.StyleNumber(genIdx), utils.StyleNumber(len(b.Tasks)))
			}
		}
		c.record("job", c.Recorder.JobSubmitted(genIdx, sb))
		gen.Batches = append(gen.Batches, sb)
	}
	return gen
}

func submitFailures(gen *Generation) []*BatchSubmitError {
	var failures []*BatchSubmitError
	for _, sb := range gen.Batches {
		if sb.Err != nil {
			failures = append(failures, NewBatchSubmitError(gen.Index, sb.Batch.Index, sb.Batch.Slots(), sb.Err))
		}
	}
	return failures
}

// await polls every job of gen until all are terminal. It returns early
// when ctx is cancelled or one job keeps failing to poll.
func (c *Controller) await(ctx context.Context, gen *Generation) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := make([]int, len(gen.Batches))
	utils.PrintNote("Waiting for %s job(s) of generation %s", utils.StyleNumber(len(gen.Batches)), utils.StyleNumber(gen.Index))
	for {
		pending := 0
		for i := range gen.Batches {
			sb := &gen.Batches[i]
			if sb.Status.Terminal() {
				continue
			}
			status, err := c.Poller.Poll(ctx, sb.Handle)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures[i]++
				c.Log.Warn().Err(err).Str("event", "poll_failed").Str("job_id", sb.Handle.ID).Int("attempt", failures[i]).Msg("poll failed")
				if failures[i] >= maxPollFailures {
					return fmt.Errorf("giving up on job %s after %d failed polls: %w", sb.Handle, failures[i], err)
				}
				pending++
				continue
			}
			failures[i] = 0
			if status.State != sb.Status.State || status.Raw != sb.Status.Raw {
				c.Log.Info().Str("event", "job_state").Str("job_id", sb.Handle.ID).Str("state", string(status.State)).Str("raw", status.Raw).Msg("job state")
				utils.PrintDebug("Job %s is %s", sb.Handle, status.Raw)
			}
			sb.Status = status
			if !status.Terminal() {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// collect reads every slot's resume artifact once and returns the tasks of
// the next generation, in slot order.
func (c *Controller) collect(req Request, gen *Generation, counts map[int]int) []pack.Task {
	var next []pack.Task
	for _, sb := range gen.Batches {
		for _, t := range sb.Batch.Tasks {
			command, ok, err := c.Resumes.Read(sb.Handle, t.Slot)
			if err != nil {
				utils.PrintWarning("Could not read resume request of slot %d: %v", t.Slot, err)
				c.Log.Warn().Err(err).Str("event", "resume_unreadable").Int("slot", t.Slot).Msg("resume unreadable")
				continue
			}
			if !ok {
				continue
			}

			d := ResumeDecision{Slot: t.Slot, Command: command, Accepted: req.MaxResumes.Allows(counts[t.Slot])}
			if d.Accepted {
				counts[t.Slot]++
				next = append(next, pack.Task{Slot: t.Slot, Command: command, Units: t.Units})
			}
			d.Count = counts[t.Slot]
			gen.Resumes = append(gen.Resumes, d)

			c.Log.Info().
				Str("event", "resume").
				Int("generation", gen.Index).
				Int("slot", d.Slot).
				Int("count", d.Count).
				Bool("accepted", d.Accepted).
				Str("command", d.Command).
				Msg("resume request")
			if !d.Accepted {
				utils.PrintNote("Slot %d reached its resume limit (%s)", d.Slot, req.MaxResumes)
			}
			c.record("resume", c.Recorder.ResumeDecided(gen.Index, d))
		}
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Slot < next[j].Slot })
	return next
}

// record logs a recorder failure. The journal is informational and never
// stops a chain.
func (c *Controller) record(what string, err error) {
	if err != nil {
		c.Log.Warn().Err(err).Str("event", "journal_failed").Msg(what)
		utils.PrintDebug("Journal %s failed: %v", what, err)
	}
}
