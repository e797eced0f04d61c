package runs

import (
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

func TestNew(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)

	d, err := New(base, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !regexp.MustCompile(`^2024-03-05_14-07-09_[0-9a-f]{7}$`).MatchString(d.ID) {
		t.Errorf("unexpected run id %q", d.ID)
	}
	if filepath.Dir(d.Root) != base {
		t.Errorf("Root %s not under %s", d.Root, base)
	}
	for _, dir := range []string{d.Root, d.LogDir(), d.ResumeDir()} {
		if !utils.DirExists(dir) {
			t.Errorf("%s was not created", dir)
		}
	}
	if d.EventsPath() != filepath.Join(d.Root, "events.log") {
		t.Errorf("EventsPath = %s", d.EventsPath())
	}
}

func TestNewUnique(t *testing.T) {
	base := t.TempDir()
	now := time.Now()
	a, err := New(base, now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(base, now)
	if err != nil {
		t.Fatal(err)
	}
	if a.Root == b.Root {
		t.Errorf("two runs at the same second share %s", a.Root)
	}
}

func TestOpen(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)
	d, err := New(base, now)
	if err != nil {
		t.Fatal(err)
	}

	opened, err := Open(base, d.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened.Root != d.Root || !opened.Created.Equal(now) {
		t.Errorf("Open = %+v, want root %s created %v", opened, d.Root, now)
	}

	if _, err := Open(base, "missing"); err == nil {
		t.Error("expected error for missing run")
	}
}
