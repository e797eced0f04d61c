package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// State is a step of the chain lifecycle.
type State string

const (
	StateInit               State = "INIT"
	StateSubmitted          State = "SUBMITTED"
	StateAwaitingCompletion State = "AWAITING_COMPLETION"
	StateCollectingResumes  State = "COLLECTING_RESUMES"
	StateResubmitting       State = "RESUBMITTING"
	StateDone               State = "DONE"
)

// IsTerminal reports whether the chain has finished.
func IsTerminal(s State) bool {
	return s == StateDone
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateInit:
		return to == StateSubmitted || to == StateDone
	case StateSubmitted:
		// DONE directly on a dry run or a failed submission
		return to == StateAwaitingCompletion || to == StateDone
	case StateAwaitingCompletion:
		return to == StateCollectingResumes || to == StateDone
	case StateCollectingResumes:
		return to == StateResubmitting || to == StateDone
	case StateResubmitting:
		return to == StateSubmitted
	default:
		return false
	}
}

// ResumeLimit caps how often one slot may be resumed. Unbounded lets a
// chain continue for as long as its tasks ask.
type ResumeLimit int

// Unbounded is the explicit infinite-chain setting.
const Unbounded ResumeLimit = -1

// Allows reports whether a slot resumed count times may resume once more.
func (l ResumeLimit) Allows(count int) bool {
	return l < 0 || count < int(l)
}

func (l ResumeLimit) String() string {
	if l < 0 {
		return "unbounded"
	}
	return strconv.Itoa(int(l))
}

// ParseResumeLimit accepts a non-negative integer or inf/unbounded.
func ParseResumeLimit(s string) (ResumeLimit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inf", "infinite", "unbounded", "-1":
		return Unbounded, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid resume limit %q: want a non-negative integer or 'inf'", s)
	}
	return ResumeLimit(n), nil
}
