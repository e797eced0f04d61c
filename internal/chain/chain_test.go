package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/sweep"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

func init() {
	utils.QuietMode = true
}

type emitCall struct {
	gen   int
	batch pack.JobBatch
}

// fakeEmitter hands out job IDs "g<gen>j<index>" and fails the listed batches.
type fakeEmitter struct {
	calls []emitCall
	fail  map[string]bool
}

func (e *fakeEmitter) Emit(_ context.Context, gen int, b pack.JobBatch) (scheduler.JobHandle, error) {
	e.calls = append(e.calls, emitCall{gen: gen, batch: b})
	id := fmt.Sprintf("g%dj%d", gen, b.Index)
	if e.fail[id] {
		return scheduler.JobHandle{}, errors.New("sbatch: error: invalid partition")
	}
	return scheduler.JobHandle{ID: id, Scheduler: scheduler.SchedulerLocal, ScriptPath: id + ".sh"}, nil
}

func (e *fakeEmitter) generations() []int {
	var gens []int
	for _, c := range e.calls {
		if len(gens) == 0 || gens[len(gens)-1] != c.gen {
			gens = append(gens, c.gen)
		}
	}
	return gens
}

// fakePoller reports a job terminal after pendingPolls polls.
type fakePoller struct {
	mu           sync.Mutex
	pendingPolls int
	never        bool
	err          error
	polls        map[string]int
}

func (p *fakePoller) Poll(_ context.Context, h scheduler.JobHandle) (scheduler.JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.polls == nil {
		p.polls = map[string]int{}
	}
	p.polls[h.ID]++
	if p.err != nil {
		return scheduler.JobStatus{}, p.err
	}
	if p.never || p.polls[h.ID] <= p.pendingPolls {
		return scheduler.JobStatus{State: scheduler.JobRunning, Raw: "RUNNING"}, nil
	}
	return scheduler.JobStatus{State: scheduler.JobTerminal, Raw: "COMPLETED"}, nil
}

func (p *fakePoller) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.polls {
		n += c
	}
	return n
}

// fakeResumes answers with a callback so tests can script requests per
// generation and slot.
type fakeResumes struct {
	fn    func(h scheduler.JobHandle, slot int) (string, bool, error)
	reads int
}

func (r *fakeResumes) Read(h scheduler.JobHandle, slot int) (string, bool, error) {
	r.reads++
	if r.fn == nil {
		return "", false, nil
	}
	return r.fn(h, slot)
}

type recordedEvents struct {
	started  int
	jobs     int
	resumes  []ResumeDecision
	finished *Result
}

func (r *recordedEvents) ChainStarted(ChainInfo) error {
	r.started++
	return nil
}

func (r *recordedEvents) JobSubmitted(int, SubmittedBatch) error {
	r.jobs++
	return nil
}

func (r *recordedEvents) ResumeDecided(_ int, d ResumeDecision) error {
	r.resumes = append(r.resumes, d)
	return nil
}

func (r *recordedEvents) ChainFinished(res *Result) error {
	r.finished = res
	return nil
}

func newTestController(e *fakeEmitter, p *fakePoller, r *fakeResumes) *Controller {
	c := NewController(e, p, r)
	c.PollInterval = time.Millisecond
	return c
}

func request(template string, maxTasks int, maxResumes ResumeLimit) Request {
	return Request{
		ID:         "test",
		Template:   "cpu",
		Specs:      []sweep.Spec{{Template: template, Repeat: 1}},
		Capacity:   pack.Capacity{MaxTasks: maxTasks},
		MaxResumes: maxResumes,
	}
}

func TestRunNoResumes(t *testing.T) {
	e := &fakeEmitter{}
	p := &fakePoller{pendingPolls: 2}
	r := &fakeResumes{}
	rec := &recordedEvents{}
	c := newTestController(e, p, r)
	c.Recorder = rec

	res, err := c.Run(context.Background(), request("train --seed <{1,2,3,4,5}>", 2, 3))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateDone || len(res.Generations) != 1 {
		t.Fatalf("state %s after %d generation(s), want DONE after 1", res.State, len(res.Generations))
	}
	if len(e.calls) != 3 {
		t.Errorf("emitted %d jobs, want 3", len(e.calls))
	}
	if r.reads != 5 {
		t.Errorf("read %d resume artifacts, want one per slot (5)", r.reads)
	}
	if p.total() != 3*3 {
		t.Errorf("polled %d times, want 9", p.total())
	}
	if res.ExitStatus() != 0 {
		t.Errorf("ExitStatus() = %d", res.ExitStatus())
	}
	if rec.started != 1 || rec.jobs != 3 || rec.finished != res {
		t.Errorf("recorder saw start=%d jobs=%d finished=%v", rec.started, rec.jobs, rec.finished)
	}
}

func TestRunResumesUntilLimit(t *testing.T) {
	e := &fakeEmitter{}
	r := &fakeResumes{fn: func(h scheduler.JobHandle, slot int) (string, bool, error) {
		if slot == 0 {
			return "train --resume ckpt", true, nil
		}
		return "", false, nil
	}}
	c := newTestController(e, &fakePoller{}, r)

	const maxResumes = 3
	res, err := c.Run(context.Background(), request("train <[a,b]>", 4, maxResumes))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(res.Generations) != maxResumes+1 {
		t.Fatalf("ran %d generations, want %d", len(res.Generations), maxResumes+1)
	}
	if got := res.ResumeCounts[0]; got != maxResumes {
		t.Errorf("slot 0 resumed %d times, want %d", got, maxResumes)
	}
	last := res.Generations[maxResumes]
	if len(last.Resumes) != 1 || last.Resumes[0].Accepted {
		t.Errorf("last generation resumes = %+v, want one rejected request", last.Resumes)
	}
	for _, g := range res.Generations[1:] {
		if g.Tasks() != 1 {
			t.Errorf("generation %d has %d tasks, want 1", g.Index, g.Tasks())
		}
		if task := g.Batches[0].Batch.Tasks[0]; task.Slot != 0 || task.Command != "train --resume ckpt" {
			t.Errorf("generation %d task = %+v", g.Index, task)
		}
	}
	if got := e.generations(); len(got) != maxResumes+1 {
		t.Errorf("emitted generations %v", got)
	}
}

func TestRunZeroResumesNeverChains(t *testing.T) {
	r := &fakeResumes{fn: func(scheduler.JobHandle, int) (string, bool, error) { return "again", true, nil }}
	res, err := newTestController(&fakeEmitter{}, &fakePoller{}, r).Run(context.Background(), request("x", 1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Generations) != 1 {
		t.Errorf("ran %d generations, want 1", len(res.Generations))
	}
}

func TestRunUnbounded(t *testing.T) {
	r := &fakeResumes{fn: func(h scheduler.JobHandle, slot int) (string, bool, error) {
		if h.ID == "g6j0" {
			return "", false, nil
		}
		return "continue", true, nil
	}}
	res, err := newTestController(&fakeEmitter{}, &fakePoller{}, r).Run(context.Background(), request("x", 1, Unbounded))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Generations) != 7 || res.ResumeCounts[0] != 6 {
		t.Errorf("generations=%d resumes=%d, want 7 and 6", len(res.Generations), res.ResumeCounts[0])
	}
}

func TestRunOnlyResumedSlotsContinue(t *testing.T) {
	r := &fakeResumes{fn: func(h scheduler.JobHandle, slot int) (string, bool, error) {
		if h.ID == "g0j0" && slot == 1 {
			return "run B --resume", true, nil
		}
		return "", false, nil
	}}
	e := &fakeEmitter{}
	res, err := newTestController(e, &fakePoller{}, r).Run(context.Background(), request("run <[A,B,C]>", 4, 5))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Generations) != 2 {
		t.Fatalf("ran %d generations, want 2", len(res.Generations))
	}
	next := res.Generations[1]
	if next.Tasks() != 1 {
		t.Fatalf("generation 1 has %d tasks, want 1", next.Tasks())
	}
	if task := next.Batches[0].Batch.Tasks[0]; task.Slot != 1 || task.Command != "run B --resume" {
		t.Errorf("generation 1 task = %+v", task)
	}
}

func TestRunCapacityErrorBeforeSubmit(t *testing.T) {
	e := &fakeEmitter{}
	req := request("x <{1,2}>", 0, 1)
	req.Capacity = pack.Capacity{TotalUnits: 0, UnitsPerTask: 1}

	res, err := newTestController(e, &fakePoller{}, &fakeResumes{}).Run(context.Background(), req)
	if !pack.IsInsufficientCapacityError(err) {
		t.Fatalf("error = %v, want InsufficientCapacityError", err)
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}
	if len(e.calls) != 0 {
		t.Errorf("emitted %d jobs before the capacity check", len(e.calls))
	}
}

func TestRunSweepErrorsBeforeSubmit(t *testing.T) {
	tests := []struct {
		name  string
		tmpl  string
		check func(error) bool
	}{
		{"length mismatch", "a=<[1,2]> b=<[1,2,3]>", sweep.IsSweepLengthMismatchError},
		{"empty marker", "a=<{}>", sweep.IsEmptySweepError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &fakeEmitter{}
			_, err := newTestController(e, &fakePoller{}, &fakeResumes{}).Run(context.Background(), request(tt.tmpl, 2, 1))
			if !tt.check(err) {
				t.Fatalf("error = %v", err)
			}
			if len(e.calls) != 0 {
				t.Errorf("emitted %d jobs", len(e.calls))
			}
		})
	}
}

func TestRunDryRun(t *testing.T) {
	e := &fakeEmitter{}
	p := &fakePoller{}
	r := &fakeResumes{fn: func(scheduler.JobHandle, int) (string, bool, error) { return "again", true, nil }}
	req := request("x <{1,2,3}>", 2, Unbounded)
	req.DryRun = true

	res, err := newTestController(e, p, r).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.State != StateDone || len(res.Generations) != 1 {
		t.Errorf("state %s after %d generations", res.State, len(res.Generations))
	}
	if p.total() != 0 || r.reads != 0 {
		t.Errorf("dry run polled %d times and read %d artifacts", p.total(), r.reads)
	}
	if len(e.calls) != 2 {
		t.Errorf("rendered %d jobs, want 2", len(e.calls))
	}
}

func TestRunPartialSubmitFailure(t *testing.T) {
	e := &fakeEmitter{fail: map[string]bool{"g0j1": true}}
	p := &fakePoller{}
	res, err := newTestController(e, p, &fakeResumes{}).Run(context.Background(), request("x <{1,2,3,4,5}>", 2, 1))

	var pe *PartialGenerationError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want PartialGenerationError", err)
	}
	if pe.Submitted != 2 || len(pe.Failures) != 1 || pe.Failures[0].Batch != 1 {
		t.Errorf("PartialGenerationError = %+v", pe)
	}
	if !IsBatchSubmitError(err) {
		t.Errorf("error does not unwrap to a BatchSubmitError")
	}
	if len(e.calls) != 3 {
		t.Errorf("tried %d batches, want all 3", len(e.calls))
	}
	if res.State != StateDone || res.ExitStatus() == 0 {
		t.Errorf("state %s exit %d", res.State, res.ExitStatus())
	}
	if p.total() != 0 {
		t.Errorf("polled %d times after a failed submission", p.total())
	}
}

func TestRunCancelWhileWaiting(t *testing.T) {
	p := &fakePoller{never: true}
	c := newTestController(&fakeEmitter{}, p, &fakeResumes{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for p.total() < 3 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	res, err := c.Run(ctx, request("x", 1, 1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res.State != StateAwaitingCompletion {
		t.Errorf("state = %s, want AWAITING_COMPLETION", res.State)
	}
	if len(res.Generations) != 1 || res.Generations[0].Batches[0].Handle.ID != "g0j0" {
		t.Errorf("submitted jobs lost: %+v", res.Generations)
	}
}

func TestRunPollFailures(t *testing.T) {
	p := &fakePoller{err: errors.New("squeue: socket timed out")}
	res, err := newTestController(&fakeEmitter{}, p, &fakeResumes{}).Run(context.Background(), request("x", 1, 1))
	if err == nil {
		t.Fatal("expected an error")
	}
	if p.total() != maxPollFailures {
		t.Errorf("polled %d times, want %d", p.total(), maxPollFailures)
	}
	if res.State != StateDone {
		t.Errorf("state = %s, want DONE", res.State)
	}
}

func TestRunUnreadableResumeIsSkipped(t *testing.T) {
	r := &fakeResumes{fn: func(scheduler.JobHandle, int) (string, bool, error) {
		return "", false, errors.New("permission denied")
	}}
	res, err := newTestController(&fakeEmitter{}, &fakePoller{}, r).Run(context.Background(), request("x", 1, 1))
	if err != nil || len(res.Generations) != 1 {
		t.Errorf("Run() = %d generations, %v", len(res.Generations), err)
	}
}

func TestStateTransitions(t *testing.T) {
	allowed := [][2]State{
		{StateInit, StateSubmitted},
		{StateSubmitted, StateAwaitingCompletion},
		{StateSubmitted, StateDone},
		{StateAwaitingCompletion, StateCollectingResumes},
		{StateCollectingResumes, StateResubmitting},
		{StateCollectingResumes, StateDone},
		{StateResubmitting, StateSubmitted},
	}
	for _, tr := range allowed {
		if !isAllowedTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}
	forbidden := [][2]State{
		{StateInit, StateCollectingResumes},
		{StateAwaitingCompletion, StateResubmitting},
		{StateResubmitting, StateDone},
		{StateDone, StateInit},
		{StateDone, StateSubmitted},
	}
	for _, tr := range forbidden {
		if isAllowedTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be forbidden", tr[0], tr[1])
		}
	}
}

func TestResumeLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    ResumeLimit
		wantErr bool
	}{
		{"0", 0, false},
		{"3", 3, false},
		{"inf", Unbounded, false},
		{"Unbounded", Unbounded, false},
		{"-2", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseResumeLimit(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseResumeLimit(%q) = %v, %v", tt.in, got, err)
		}
	}

	if ResumeLimit(0).Allows(0) {
		t.Error("limit 0 allows a resume")
	}
	if !ResumeLimit(2).Allows(1) || ResumeLimit(2).Allows(2) {
		t.Error("limit 2 boundaries wrong")
	}
	if !Unbounded.Allows(1 << 20) {
		t.Error("Unbounded refuses a resume")
	}
	if Unbounded.String() != "unbounded" || ResumeLimit(4).String() != "4" {
		t.Error("String() mismatch")
	}
}

func TestRunRepackFailureEndsDone(t *testing.T) {
	e := &fakeEmitter{}
	r := &fakeResumes{fn: func(scheduler.JobHandle, int) (string, bool, error) {
		return "train --resume", true, nil
	}}
	c := newTestController(e, &fakePoller{}, r)
	repackErr := errors.New("no capacity left")
	c.repack = func([]pack.Task, pack.Capacity, pack.Policy, pack.Params) ([]pack.JobBatch, error) {
		return nil, repackErr
	}

	res, err := c.Run(context.Background(), request("train <[a,b]>", 4, 3))
	if !errors.Is(err, repackErr) {
		t.Fatalf("Run() error = %v, want %v", err, repackErr)
	}
	if res == nil {
		t.Fatal("expected a result once generation 0 was submitted")
	}
	if res.State != StateDone || c.State() != StateDone {
		t.Errorf("state = %s, want DONE", res.State)
	}
	if len(res.Generations) != 1 {
		t.Errorf("ran %d generations, want 1", len(res.Generations))
	}
	if res.ExitStatus() == 0 {
		t.Errorf("ExitStatus() = 0, want non-zero")
	}
	if got := e.generations(); len(got) != 1 {
		t.Errorf("emitted generations %v, want only generation 0", got)
	}
}
