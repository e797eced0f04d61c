package chain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition indicates the controller attempted a transition its state machine forbids
	ErrInvalidTransition = errors.New("invalid chain state transition")

	// ErrNoTasks indicates the command specs expanded to nothing
	ErrNoTasks = errors.New("no tasks to submit")
)

// BatchSubmitError represents one batch of a generation that could not be submitted
type BatchSubmitError struct {
	Generation int   // Generation index
	Batch      int   // Batch index within the generation
	Slots      []int // Slots the batch would have run
	Err        error // Underlying error
}

func (e *BatchSubmitError) Error() string {
	return fmt.Sprintf("generation %d job %d (slots %v): %v", e.Generation, e.Batch, e.Slots, e.Err)
}

func (e *BatchSubmitError) Unwrap() error {
	return e.Err
}

// NewBatchSubmitError creates a new BatchSubmitError
func NewBatchSubmitError(gen, batch int, slots []int, err error) *BatchSubmitError {
	return &BatchSubmitError{Generation: gen, Batch: batch, Slots: slots, Err: err}
}

// IsBatchSubmitError checks if an error is a BatchSubmitError
func IsBatchSubmitError(err error) bool {
	var be *BatchSubmitError
	return errors.As(err, &be)
}

// PartialGenerationError reports a generation where some batches failed to submit.
// The batches that did submit keep running; the chain does not continue.
type PartialGenerationError struct {
	Generation int
	Submitted  int
	Failures   []*BatchSubmitError
}

func (e *PartialGenerationError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("generation %d: %d of %d job(s) failed to submit: %s",
		e.Generation, len(e.Failures), e.Submitted+len(e.Failures), strings.Join(msgs, "; "))
}

func (e *PartialGenerationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// NewPartialGenerationError creates a new PartialGenerationError
func NewPartialGenerationError(gen, submitted int, failures []*BatchSubmitError) *PartialGenerationError {
	return &PartialGenerationError{Generation: gen, Submitted: submitted, Failures: failures}
}

// IsPartialGenerationError checks if an error is a PartialGenerationError
func IsPartialGenerationError(err error) bool {
	var pe *PartialGenerationError
	return errors.As(err, &pe)
}
