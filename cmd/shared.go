package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/aimat-lab/AutoSlurm/internal/pack"
	"github.com/aimat-lab/AutoSlurm/internal/sweep"
	"github.com/aimat-lab/AutoSlurm/internal/template"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitConfig      = 2
	ExitInterrupted = 130
)

// exitError carries an exit code through cobra. A nil err means the
// failure was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// isConfigError reports whether err is a mistake in the command line,
// template or sweep rather than a runtime failure.
func isConfigError(err error) bool {
	return sweep.IsConfigError(err) ||
		pack.IsInsufficientCapacityError(err) ||
		template.IsConfigError(err)
}

func exitCodeFor(err error) int {
	if isConfigError(err) {
		return ExitConfig
	}
	return ExitError
}

// withExitCode wraps err so Execute exits with the matching status.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return &exitError{code: exitCodeFor(err), err: err}
}

// ExitWithError prints an error and exits with status 1.
func ExitWithError(format string, a ...interface{}) {
	utils.PrintError(format, a...)
	os.Exit(ExitError)
}
