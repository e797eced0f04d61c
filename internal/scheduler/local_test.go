package scheduler

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func waitTerminal(t *testing.T, l *LocalScheduler, h JobHandle) JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, err := l.Poll(context.Background(), h)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if status.Terminal() {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", h.ID)
	return JobStatus{}
}

func TestLocalSchedulerRunsScript(t *testing.T) {
	requireBash(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "gen0_job0.sh")
	body := "#!/bin/bash\necho \"id=$" + LocalJobIDEnv + "\"\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	l := NewLocalScheduler()
	h, err := l.Submit(context.Background(), script)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(h.ID, "local-") || h.Scheduler != SchedulerLocal {
		t.Errorf("handle = %+v", h)
	}

	status := waitTerminal(t, l, h)
	if status.Raw != "COMPLETED" {
		t.Errorf("status = %+v, want COMPLETED", status)
	}

	out, err := os.ReadFile(filepath.Join(dir, "gen0_job0.out"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "id="+h.ID {
		t.Errorf("job output = %q, want id=%s", out, h.ID)
	}
}

func TestLocalSchedulerFailedJob(t *testing.T) {
	requireBash(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "fail.sh")
	os.WriteFile(script, []byte("#!/bin/bash\nexit 3\n"), 0755)

	l := NewLocalScheduler()
	h, err := l.Submit(context.Background(), script)
	if err != nil {
		t.Fatal(err)
	}
	if status := waitTerminal(t, l, h); status.Raw != "FAILED" {
		t.Errorf("status = %+v, want FAILED", status)
	}
}

func TestLocalSchedulerUnknownJob(t *testing.T) {
	l := NewLocalScheduler()
	_, err := l.Poll(context.Background(), JobHandle{ID: "local-0-99"})
	if !IsPollError(err) || !errors.Is(err, ErrUnknownJob) {
		t.Errorf("expected PollError wrapping ErrUnknownJob, got %v", err)
	}
}

func TestInitLocal(t *testing.T) {
	defer ClearActiveScheduler()
	typ, err := Init("", true)
	if err != nil || typ != SchedulerLocal {
		t.Fatalf("Init local = %s, %v", typ, err)
	}
	s, err := RequireActive()
	if err != nil {
		t.Fatal(err)
	}
	if s.JobIDVar() != "$"+LocalJobIDEnv {
		t.Errorf("JobIDVar = %q", s.JobIDVar())
	}
	ClearActiveScheduler()
	if _, err := RequireActive(); err != ErrSchedulerNotAvailable {
		t.Errorf("expected ErrSchedulerNotAvailable after clear, got %v", err)
	}
}
