// Package scheduler submits rendered job scripts to a batch system and
// reports the state of submitted jobs.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
)

// SchedulerType represents the type of job scheduler
type SchedulerType string

const (
	SchedulerUnknown SchedulerType = ""
	SchedulerSLURM   SchedulerType = "SLURM"
	SchedulerLocal   SchedulerType = "LOCAL"
)

// SchedulerInfo holds information about the detected scheduler
type SchedulerInfo struct {
	Type      string // Scheduler type (e.g., "SLURM", "LOCAL")
	Binary    string // Path to scheduler binary (e.g., "/usr/bin/sbatch")
	Version   string // Scheduler version (if available)
	InJob     bool   // Whether we're currently inside a scheduled job
	Available bool   // Whether scheduler is available for job submission
}

// JobHandle identifies one submitted job.
type JobHandle struct {
	ID         string
	Scheduler  SchedulerType
	ScriptPath string
}

func (h JobHandle) String() string {
	if h.ID == "" {
		return filepath.Base(h.ScriptPath)
	}
	return h.ID
}

// JobState is the coarse lifecycle state of a submitted job.
type JobState string

const (
	JobPending  JobState = "pending"
	JobRunning  JobState = "running"
	JobTerminal JobState = "terminal"
)

// JobStatus is a poll result: the coarse state plus the scheduler's own word for it.
type JobStatus struct {
	State JobState
	Raw   string
}

// Terminal reports whether the job will not change state again.
func (s JobStatus) Terminal() bool { return s.State == JobTerminal }

// Scheduler defines the interface for job schedulers
type Scheduler interface {
	// IsAvailable checks if the scheduler can accept submissions from here
	IsAvailable() bool

	// GetInfo returns information about the scheduler
	GetInfo() *SchedulerInfo

	// JobIDVar is the shell expression that yields the job ID inside a running script
	JobIDVar() string

	// Submit submits a job script and returns its handle
	Submit(ctx context.Context, scriptPath string) (JobHandle, error)

	// Poll returns the current state of a submitted job
	Poll(ctx context.Context, h JobHandle) (JobStatus, error)
}

// DetectSchedulerWithBinary attempts to initialize a scheduler using a preferred binary path.
// If preferredBin is empty, sbatch is looked up on PATH.
// The scheduler is returned whenever the binary is present, regardless of availability.
func DetectSchedulerWithBinary(preferredBin string) (Scheduler, error) {
	return NewSlurmSchedulerWithBinary(preferredBin)
}

// Init selects and activates the scheduler. With local set, jobs run as
// background processes on this machine instead of going through SLURM.
func Init(preferredBin string, local bool) (SchedulerType, error) {
	if local {
		SetActiveScheduler(NewLocalScheduler())
		return SchedulerLocal, nil
	}
	sched, err := DetectSchedulerWithBinary(preferredBin)
	if err != nil {
		ClearActiveScheduler()
		return SchedulerUnknown, err
	}
	SetActiveScheduler(sched)
	return SchedulerSLURM, nil
}

// IsInsideJob checks if we're currently running inside a scheduler job.
// This is useful to avoid nested job submission.
func IsInsideJob() bool {
	if _, ok := os.LookupEnv("SLURM_JOB_ID"); ok {
		return true
	}
	if _, ok := os.LookupEnv(LocalJobIDEnv); ok {
		return true
	}
	return false
}
