package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

// Emitter renders a batch into a script file and hands it to the scheduler.
type Emitter struct {
	scheduler Scheduler
	renderer  *Renderer
	scriptDir string
	dryRun    bool
	checked   bool
}

// NewEmitter creates an Emitter writing scripts to scriptDir. sched may be
// nil in dry-run mode.
func NewEmitter(sched Scheduler, renderer *Renderer, scriptDir string, dryRun bool) (*Emitter, error) {
	if sched == nil && !dryRun {
		return nil, ErrSchedulerNotAvailable
	}
	if renderer.JobIDVar == "" && sched != nil {
		renderer.JobIDVar = sched.JobIDVar()
	}
	return &Emitter{scheduler: sched, renderer: renderer, scriptDir: scriptDir, dryRun: dryRun}, nil
}

// ScriptPath returns where the script of batch index of generation gen is written.
func (e *Emitter) ScriptPath(gen, index int) string {
	return filepath.Join(e.scriptDir, fmt.Sprintf("gen%d_job%d.sh", gen, index))
}

// Emit writes the script for b and submits it. In dry-run mode the script is
// written but not submitted and the returned handle has no ID.
func (e *Emitter) Emit(ctx context.Context, gen int, b pack.JobBatch) (JobHandle, error) {
	path := e.ScriptPath(gen, b.Index)
	jobName := e.renderer.JobNameFor(gen, b)

	var buf bytes.Buffer
	if err := e.renderer.Render(&buf, gen, b); err != nil {
		return JobHandle{}, NewScriptCreationError(jobName, path, err)
	}
	if missing := Unresolved(buf.String()); len(missing) > 0 {
		utils.PrintDebug("Unfilled placeholders in %s: %v", filepath.Base(path), missing)
	}
	if !e.checked {
		e.checked = true
		for _, p := range CheckDirectives(buf.String(), b) {
			utils.PrintWarning("%s: %s", filepath.Base(path), p)
		}
	}
	if err := utils.EnsureDir(e.scriptDir); err != nil {
		return JobHandle{}, NewScriptCreationError(jobName, path, err)
	}
	if err := utils.WriteFileAtomic(path, buf.Bytes(), utils.PermExec); err != nil {
		return JobHandle{}, NewScriptCreationError(jobName, path, err)
	}

	if e.dryRun {
		return JobHandle{ScriptPath: path}, nil
	}
	return e.scheduler.Submit(ctx, path)
}
