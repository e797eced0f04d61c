package resume

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Timer tracks elapsed time against a limit so a task can stop and write its
// resume artifact before the job's wall time runs out.
type Timer struct {
	limit time.Duration
	start time.Time
	now   func() time.Time
}

// NewTimer starts a timer with the given limit.
func NewTimer(limit time.Duration) *Timer {
	t := &Timer{limit: limit, now: time.Now}
	t.Reset()
	return t
}

// Reset restarts the timer.
func (t *Timer) Reset() {
	t.start = t.now()
}

// Elapsed returns the time since the last reset.
func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Remaining returns the time left before the limit, never negative.
func (t *Timer) Remaining() time.Duration {
	if r := t.limit - t.Elapsed(); r > 0 {
		return r
	}
	return 0
}

// LimitReached reports whether more than the limit has elapsed.
func (t *Timer) LimitReached() bool {
	return t.Elapsed() > t.limit
}

// TimerFromEnv starts a timer at the job start recorded in the job script,
// or now when the script did not record one.
func TimerFromEnv(limit time.Duration) *Timer {
	t := NewTimer(limit)
	if v := strings.TrimSpace(os.Getenv(EnvJobStart)); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.start = time.Unix(secs, 0)
		}
	}
	return t
}
