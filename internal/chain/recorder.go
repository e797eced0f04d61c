package chain

import "time"

// ChainInfo describes a chain when it starts.
type ChainInfo struct {
	ID         string
	Template   string
	Tasks      int
	MaxResumes ResumeLimit
	DryRun     bool
	Started    time.Time
}

// Recorder persists the history of a chain.
type Recorder interface {
	ChainStarted(info ChainInfo) error
	JobSubmitted(gen int, sb SubmittedBatch) error
	ResumeDecided(gen int, d ResumeDecision) error
	ChainFinished(res *Result) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ChainStarted(ChainInfo) error { return nil }
func (NopRecorder) JobSubmitted(int, SubmittedBatch) error { return nil }
func (NopRecorder) ResumeDecided(int, ResumeDecision) error { return nil }
func (NopRecorder) ChainFinished(*Result) error { return nil }
