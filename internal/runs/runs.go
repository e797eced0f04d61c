// Package runs creates the per-chain working directory:
//
//	<base>/<YYYY-MM-DD_HH-MM-SS>_<id7>/
//	    gen<k>_job<i>.sh   rendered job scripts
//	    logs/              per-task output
//	    resume/            resume artifacts
//	    events.log         chain event log (JSON lines)
package runs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/utils"
	"github.com/google/uuid"
)

const timeLayout = "2006-01-02_15-04-05"

// Dir is one run directory.
type Dir struct {
	Root    string
	ID      string
	Created time.Time
}

// New creates a fresh run directory under base.
func New(base string, now time.Time) (*Dir, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	name := fmt.Sprintf("%s_%s", now.Format(timeLayout), id)
	d := &Dir{Root: filepath.Join(base, name), ID: name, Created: now}

	for _, dir := range []string{d.Root, d.LogDir(), d.ResumeDir()} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Open returns an existing run directory by name or path.
func Open(base, name string) (*Dir, error) {
	root := name
	if !filepath.IsAbs(name) {
		root = filepath.Join(base, name)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("run directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("run directory %s is not a directory", root)
	}
	d := &Dir{Root: root, ID: filepath.Base(root)}
	if len(d.ID) >= len(timeLayout) {
		if t, err := time.ParseInLocation(timeLayout, d.ID[:len(timeLayout)], time.Local); err == nil {
			d.Created = t
		}
	}
	return d, nil
}

// ScriptDir holds the rendered job scripts.
func (d *Dir) ScriptDir() string { return d.Root }

// LogDir holds task output files.
func (d *Dir) LogDir() string { return filepath.Join(d.Root, "logs") }

// ResumeDir holds resume artifacts.
func (d *Dir) ResumeDir() string { return filepath.Join(d.Root, "resume") }

// EventsPath is the chain event log.
func (d *Dir) EventsPath() string { return filepath.Join(d.Root, "events.log") }
