package pack

import (
	"errors"
	"fmt"
)

// InsufficientCapacityError is returned when a capacity descriptor admits
// fewer than one task per job.
type InsufficientCapacityError struct {
	Capacity Capacity
	Reason   string
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient job capacity (%s): %s", e.Capacity, e.Reason)
}

// NewInsufficientCapacityError creates a new InsufficientCapacityError
func NewInsufficientCapacityError(c Capacity, reason string) *InsufficientCapacityError {
	return &InsufficientCapacityError{Capacity: c, Reason: reason}
}

// IsInsufficientCapacityError checks if an error is an InsufficientCapacityError
func IsInsufficientCapacityError(err error) bool {
	var e *InsufficientCapacityError
	return errors.As(err, &e)
}
