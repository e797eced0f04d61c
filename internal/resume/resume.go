// Package resume reads and writes resume artifacts: small files through
// which a running task asks to be continued in the next generation.
//
// An artifact lives at <dir>/<jobID>_<slot>.resume and holds the literal
// command that continues the task.
package resume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aimat-lab/AutoSlurm/internal/scheduler"
	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

// Environment variables set by rendered job scripts.
const (
	EnvResumeDir = "ASLURM_RESUME_DIR"
	EnvJobID     = "ASLURM_JOB_ID"
	EnvSlot      = "ASLURM_SLOT"
	EnvJobStart  = "ASLURM_JOB_START" // unix seconds
)

// Extension of resume artifact files.
const Extension = ".resume"

// ErrNotInJob is returned by Write when no job ID can be found in the environment.
var ErrNotInJob = errors.New("not running inside an aslurm job (ASLURM_JOB_ID and SLURM_JOB_ID unset)")

// FileName returns the artifact file name for a job and slot.
func FileName(jobID string, slot int) string {
	return fmt.Sprintf("%s_%d%s", jobID, slot, Extension)
}

// FileStore reads artifacts from one directory.
type FileStore struct {
	Dir string
}

// NewFileStore creates a FileStore for dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the artifact path of a slot in a job.
func (s *FileStore) Path(h scheduler.JobHandle, slot int) string {
	return filepath.Join(s.Dir, FileName(h.ID, slot))
}

// Read returns the continuation command of a slot. A missing or blank
// artifact means the task does not want to continue and is not an error.
func (s *FileStore) Read(h scheduler.JobHandle, slot int) (string, bool, error) {
	data, err := os.ReadFile(s.Path(h, slot))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read resume artifact: %w", err)
	}
	command := strings.TrimSpace(string(data))
	if command == "" {
		utils.PrintDebug("Ignoring empty resume artifact %s", s.Path(h, slot))
		return "", false, nil
	}
	return command, true, nil
}

// Target identifies where the current task writes its artifact.
type Target struct {
	Dir   string
	JobID string
	Slot  int
}

// TargetFromEnv reads the artifact location from the job environment.
// The directory defaults to the working directory and the slot to 0.
func TargetFromEnv() (Target, error) {
	t := Target{Dir: os.Getenv(EnvResumeDir)}
	if t.Dir == "" {
		t.Dir = "."
	}

	for _, key := range []string{EnvJobID, "SLURM_JOB_ID", scheduler.LocalJobIDEnv} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			t.JobID = v
			break
		}
	}
	if t.JobID == "" {
		return Target{}, ErrNotInJob
	}

	for _, key := range []string{EnvSlot, "SLURM_SUBMIT_TASK_INDEX"} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			continue
		}
		slot, err := strconv.Atoi(v)
		if err != nil || slot < 0 {
			return Target{}, fmt.Errorf("invalid %s=%q", key, v)
		}
		t.Slot = slot
		break
	}
	return t, nil
}

// Path returns the artifact path of the target.
func (t Target) Path() string {
	return filepath.Join(t.Dir, FileName(t.JobID, t.Slot))
}

// WriteTo writes command as the artifact of t and returns its path.
func WriteTo(t Target, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("resume command is empty")
	}
	if err := utils.EnsureDir(t.Dir); err != nil {
		return "", err
	}
	path := t.Path()
	if err := utils.WriteFileAtomic(path, []byte(command+"\n"), utils.PermFile); err != nil {
		return "", err
	}
	return path, nil
}

// Write records command as the continuation of the task running in this
// process, using the location from the job environment.
func Write(command string) (string, error) {
	t, err := TargetFromEnv()
	if err != nil {
		return "", err
	}
	return WriteTo(t, command)
}
