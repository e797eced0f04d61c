package scheduler

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrSchedulerNotAvailable indicates the scheduler is not available
	ErrSchedulerNotAvailable = errors.New("scheduler is not available")

	// ErrSchedulerNotFound indicates the scheduler binary was not found
	ErrSchedulerNotFound = errors.New("scheduler binary not found in PATH")

	// ErrScriptNotFound indicates the script file was not found
	ErrScriptNotFound = errors.New("script file not found")

	// ErrJobIDParseFailed indicates parsing job ID from output failed
	ErrJobIDParseFailed = errors.New("failed to parse job ID from scheduler output")

	// ErrUnknownJob indicates a poll for a job this scheduler never submitted
	ErrUnknownJob = errors.New("unknown job")

	// ErrInvalidTimeFormat indicates time format is invalid
	ErrInvalidTimeFormat = errors.New("invalid time format")
)

// SubmissionError represents an error during job submission
type SubmissionError struct {
	Scheduler string // Scheduler name
	JobName   string // Job name
	Output    string // Scheduler output
	Err       error  // Underlying error
}

func (e *SubmissionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s submission failed for job %s: %v\nOutput: %s",
			e.Scheduler, e.JobName, e.Err, e.Output)
	}
	return fmt.Sprintf("%s submission failed for job %s: %v",
		e.Scheduler, e.JobName, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// PollError represents an error asking the scheduler about a job's state
type PollError struct {
	Scheduler string // Scheduler name
	JobID     string // Job being queried
	Err       error  // Underlying error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("%s status query failed for job %s: %v", e.Scheduler, e.JobID, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// ScriptCreationError represents an error creating a batch script
type ScriptCreationError struct {
	JobName string // Job name
	Path    string // Script path
	Err     error  // Underlying error
}

func (e *ScriptCreationError) Error() string {
	return fmt.Sprintf("failed to create script for job %s at %s: %v",
		e.JobName, e.Path, e.Err)
}

func (e *ScriptCreationError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors

// NewSubmissionError creates a new SubmissionError
func NewSubmissionError(scheduler string, jobName string, output string, err error) *SubmissionError {
	return &SubmissionError{
		Scheduler: scheduler,
		JobName:   jobName,
		Output:    output,
		Err:       err,
	}
}

// NewPollError creates a new PollError
func NewPollError(scheduler string, jobID string, err error) *PollError {
	return &PollError{
		Scheduler: scheduler,
		JobID:     jobID,
		Err:       err,
	}
}

// NewScriptCreationError creates a new ScriptCreationError
func NewScriptCreationError(jobName string, path string, err error) *ScriptCreationError {
	return &ScriptCreationError{
		JobName: jobName,
		Path:    path,
		Err:     err,
	}
}

// IsSubmissionError checks if an error is a SubmissionError
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// IsPollError checks if an error is a PollError
func IsPollError(err error) bool {
	var pe *PollError
	return errors.As(err, &pe)
}

// IsScriptCreationError checks if an error is a ScriptCreationError
func IsScriptCreationError(err error) bool {
	var sce *ScriptCreationError
	return errors.As(err, &sce)
}
