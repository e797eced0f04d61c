package sweep

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCommands is returned when the argument list does not start with cmd/cmdxN.
	ErrNoCommands = errors.New("no commands given (expected cmd or cmdxN)")
	// ErrEmptyCommand is returned when a cmd token is not followed by any words.
	ErrEmptyCommand = errors.New("empty command")
	// ErrInvalidRepeat is returned for cmdxN tokens whose count is not a positive integer.
	ErrInvalidRepeat = errors.New("invalid repeat count")
)

// SweepLengthMismatchError is returned when list-mode markers in one template
// have different lengths and so cannot be zipped.
type SweepLengthMismatchError struct {
	Template string
	Lengths  []int
}

func (e *SweepLengthMismatchError) Error() string {
	parts := make([]string, len(e.Lengths))
	for i, n := range e.Lengths {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("list sweeps <[...]> must have equal lengths, got %s in %q",
		strings.Join(parts, ", "), e.Template)
}

// NewSweepLengthMismatchError creates a new SweepLengthMismatchError
func NewSweepLengthMismatchError(template string, lengths []int) *SweepLengthMismatchError {
	return &SweepLengthMismatchError{Template: template, Lengths: lengths}
}

// IsSweepLengthMismatchError checks if an error is a SweepLengthMismatchError
func IsSweepLengthMismatchError(err error) bool {
	var e *SweepLengthMismatchError
	return errors.As(err, &e)
}

// EmptySweepError is returned when a marker holds no values or a blank
// value, e.g. "<[]>" or "<[1,,2]>".
type EmptySweepError struct {
	Template string
	Offset   int
}

func (e *EmptySweepError) Error() string {
	return fmt.Sprintf("empty sweep marker or value at offset %d in %q", e.Offset, e.Template)
}

// NewEmptySweepError creates a new EmptySweepError
func NewEmptySweepError(template string, offset int) *EmptySweepError {
	return &EmptySweepError{Template: template, Offset: offset}
}

// IsEmptySweepError checks if an error is an EmptySweepError
func IsEmptySweepError(err error) bool {
	var e *EmptySweepError
	return errors.As(err, &e)
}

// IsConfigError reports whether err is a sweep configuration error.
func IsConfigError(err error) bool {
	return IsSweepLengthMismatchError(err) || IsEmptySweepError(err) ||
		errors.Is(err, ErrNoCommands) || errors.Is(err, ErrEmptyCommand) || errors.Is(err, ErrInvalidRepeat)
}
