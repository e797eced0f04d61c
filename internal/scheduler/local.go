package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

// LocalJobIDEnv carries the job ID into scripts run by the LocalScheduler.
const LocalJobIDEnv = "ASLURM_LOCAL_JOB_ID"

// LocalScheduler runs job scripts as background processes on this machine.
// Jobs are detached into their own process group, so interrupting aslurm
// leaves them running.
type LocalScheduler struct {
	shell string

	mu     sync.Mutex
	nextID int
	jobs   map[string]*localJob
}

type localJob struct {
	done chan struct{}
	err  error
}

// NewLocalScheduler creates a LocalScheduler using bash from PATH.
func NewLocalScheduler() *LocalScheduler {
	shell, err := exec.LookPath("bash")
	if err != nil {
		shell = "/bin/bash"
	}
	return &LocalScheduler{shell: shell, jobs: make(map[string]*localJob)}
}

// IsAvailable reports whether the shell exists.
func (l *LocalScheduler) IsAvailable() bool {
	return utils.FileExists(l.shell)
}

// GetInfo returns information about the local runner
func (l *LocalScheduler) GetInfo() *SchedulerInfo {
	return &SchedulerInfo{
		Type:      string(SchedulerLocal),
		Binary:    l.shell,
		InJob:     IsInsideJob(),
		Available: l.IsAvailable(),
	}
}

// JobIDVar returns the variable the local runner exports to its jobs.
func (l *LocalScheduler) JobIDVar() string { return "$" + LocalJobIDEnv }

// Submit starts the script in the background. Its combined output goes to
// the script path with the extension replaced by ".out".
func (l *LocalScheduler) Submit(ctx context.Context, scriptPath string) (JobHandle, error) {
	if err := ctx.Err(); err != nil {
		return JobHandle{}, err
	}
	if !utils.FileExists(scriptPath) {
		return JobHandle{}, fmt.Errorf("%w: %s", ErrScriptNotFound, scriptPath)
	}

	l.mu.Lock()
	l.nextID++
	id := fmt.Sprintf("local-%d-%d", os.Getpid(), l.nextID)
	l.mu.Unlock()

	outPath := strings.TrimSuffix(scriptPath, ".sh") + ".out"
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, utils.PermFile)
	if err != nil {
		return JobHandle{}, NewSubmissionError(string(SchedulerLocal), scriptPath, "", err)
	}

	// Not CommandContext: cancelling the chain must not kill running jobs.
	cmd := exec.Command(l.shell, scriptPath)
	cmd.Env = append(os.Environ(), LocalJobIDEnv+"="+id)
	cmd.Stdout = out
	cmd.Stderr = out
	detach(cmd)

	utils.PrintDebug("Executing: %s %s", l.shell, scriptPath)
	if err := cmd.Start(); err != nil {
		out.Close()
		return JobHandle{}, NewSubmissionError(string(SchedulerLocal), scriptPath, "", err)
	}

	job := &localJob{done: make(chan struct{})}
	l.mu.Lock()
	l.jobs[id] = job
	l.mu.Unlock()

	go func() {
		job.err = cmd.Wait()
		out.Close()
		close(job.done)
	}()

	return JobHandle{ID: id, Scheduler: SchedulerLocal, ScriptPath: scriptPath}, nil
}

// Poll reports whether the process has exited.
func (l *LocalScheduler) Poll(ctx context.Context, h JobHandle) (JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return JobStatus{}, err
	}
	l.mu.Lock()
	job, ok := l.jobs[h.ID]
	l.mu.Unlock()
	if !ok {
		return JobStatus{}, NewPollError(string(SchedulerLocal), h.ID, ErrUnknownJob)
	}

	select {
	case <-job.done:
		if job.err != nil {
			return JobStatus{State: JobTerminal, Raw: "FAILED"}, nil
		}
		return JobStatus{State: JobTerminal, Raw: "COMPLETED"}, nil
	default:
		return JobStatus{State: JobRunning, Raw: "RUNNING"}, nil
	}
}
