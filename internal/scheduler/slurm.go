package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aimat-lab/AutoSlurm/internal/utils"
)

// SlurmScheduler implements the Scheduler interface for SLURM
type SlurmScheduler struct {
	sbatchBin string
	squeueBin string
	sacctBin  string
	jobIDRe   *regexp.Regexp
}

// NewSlurmSchedulerWithBinary creates a SLURM scheduler using an explicit
// sbatch path, or sbatch from PATH when sbatchBin is empty.
func NewSlurmSchedulerWithBinary(sbatchBin string) (*SlurmScheduler, error) {
	binPath := sbatchBin
	if binPath == "" {
		var err error
		binPath, err = exec.LookPath("sbatch")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchedulerNotFound, err)
		}
	} else {
		if absPath, err := filepath.Abs(binPath); err == nil {
			binPath = absPath
		}
		info, err := os.Stat(binPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchedulerNotFound, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%w: %s is a directory", ErrSchedulerNotFound, binPath)
		}
	}

	// squeue and sacct normally live next to sbatch
	return &SlurmScheduler{
		sbatchBin: binPath,
		squeueBin: siblingBinary(binPath, "squeue"),
		sacctBin:  siblingBinary(binPath, "sacct"),
		jobIDRe:   regexp.MustCompile(`Submitted batch job (\d+)`),
	}, nil
}

func siblingBinary(sbatchPath, name string) string {
	candidate := filepath.Join(filepath.Dir(sbatchPath), name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return ""
}

// IsAvailable checks if sbatch can be called. Submitting from inside an
// allocation is allowed, so a chain can be driven from a long-running job.
func (s *SlurmScheduler) IsAvailable() bool {
	return s.sbatchBin != ""
}

// GetInfo returns information about the SLURM scheduler
func (s *SlurmScheduler) GetInfo() *SchedulerInfo {
	_, inJob := os.LookupEnv("SLURM_JOB_ID")

	info := &SchedulerInfo{
		Type:      string(SchedulerSLURM),
		Binary:    s.sbatchBin,
		InJob:     inJob,
		Available: s.IsAvailable(),
	}

	if s.sbatchBin != "" {
		if version, err := s.getSlurmVersion(); err == nil {
			info.Version = version
		}
	}

	return info
}

// getSlurmVersion attempts to get the SLURM version
func (s *SlurmScheduler) getSlurmVersion() (string, error) {
	cmd := exec.Command(s.sbatchBin, "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}

	// Parse version from output like "slurm 23.02.6"
	versionStr := strings.TrimSpace(string(output))
	parts := strings.Fields(versionStr)
	if len(parts) >= 2 {
		return parts[1], nil
	}

	return versionStr, nil
}

// JobIDVar returns the SLURM job ID variable.
func (s *SlurmScheduler) JobIDVar() string { return "$SLURM_JOB_ID" }

// Submit submits a job script with sbatch and returns its handle
func (s *SlurmScheduler) Submit(ctx context.Context, scriptPath string) (JobHandle, error) {
	if !utils.FileExists(scriptPath) {
		return JobHandle{}, fmt.Errorf("%w: %s", ErrScriptNotFound, scriptPath)
	}

	utils.PrintDebug("Executing: %s %s", s.sbatchBin, scriptPath)
	cmd := exec.CommandContext(ctx, s.sbatchBin, scriptPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return JobHandle{}, NewSubmissionError(string(SchedulerSLURM), filepath.Base(scriptPath), string(output), err)
	}

	jobID, err := s.parseJobID(string(output))
	if err != nil {
		return JobHandle{}, NewSubmissionError(string(SchedulerSLURM), filepath.Base(scriptPath), string(output), err)
	}
	return JobHandle{ID: jobID, Scheduler: SchedulerSLURM, ScriptPath: scriptPath}, nil
}

func (s *SlurmScheduler) parseJobID(output string) (string, error) {
	matches := s.jobIDRe.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", fmt.Errorf("%w: %s", ErrJobIDParseFailed, strings.TrimSpace(output))
	}
	return matches[1], nil
}

// Poll asks squeue for the job state and falls back to sacct once the job
// has left the queue.
func (s *SlurmScheduler) Poll(ctx context.Context, h JobHandle) (JobStatus, error) {
	var queueErr error
	leftQueue := false

	if s.squeueBin != "" {
		out, err := exec.CommandContext(ctx, s.squeueBin, "-h", "-j", h.ID, "-o", "%T").CombinedOutput()
		switch {
		case err == nil:
			if status, ok := parseSlurmState(string(out)); ok {
				return status, nil
			}
			leftQueue = true
		case strings.Contains(string(out), "Invalid job id"):
			leftQueue = true
		default:
			queueErr = fmt.Errorf("squeue: %v: %s", err, strings.TrimSpace(string(out)))
		}
	}
	if ctx.Err() != nil {
		return JobStatus{}, ctx.Err()
	}

	if s.sacctBin != "" {
		out, err := exec.CommandContext(ctx, s.sacctBin, "-j", h.ID, "-n", "-X", "-P", "-o", "State").Output()
		if err == nil {
			if status, ok := parseSlurmState(string(out)); ok {
				return status, nil
			}
		} else if queueErr == nil && !leftQueue {
			queueErr = fmt.Errorf("sacct: %v", err)
		}
	}
	if ctx.Err() != nil {
		return JobStatus{}, ctx.Err()
	}

	if leftQueue {
		// Gone from squeue and unknown to accounting: it will not come back.
		return JobStatus{State: JobTerminal, Raw: "UNKNOWN"}, nil
	}
	if queueErr == nil {
		queueErr = ErrSchedulerNotFound
	}
	return JobStatus{}, NewPollError(string(SchedulerSLURM), h.ID, queueErr)
}

var slurmTerminalStates = map[string]bool{
	"COMPLETED":     true,
	"FAILED":        true,
	"CANCELLED":     true,
	"TIMEOUT":       true,
	"OUT_OF_MEMORY": true,
	"NODE_FAIL":     true,
	"PREEMPTED":     true,
	"BOOT_FAIL":     true,
	"DEADLINE":      true,
	"REVOKED":       true,
	"SPECIAL_EXIT":  true,
}

var slurmPendingStates = map[string]bool{
	"PENDING":       true,
	"CONFIGURING":   true,
	"REQUEUED":      true,
	"REQUEUE_HOLD":  true,
	"REQUEUE_FED":   true,
	"RESV_DEL_HOLD": true,
}

// parseSlurmState maps squeue/sacct output to a JobStatus. It reports false
// when the output holds no state. States it does not know count as running,
// so collection never starts early.
func parseSlurmState(output string) (JobStatus, bool) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		// sacct prints "CANCELLED by 1234" and may append "+"
		raw := strings.ToUpper(strings.TrimRight(fields[0], "+"))
		switch {
		case slurmTerminalStates[raw]:
			return JobStatus{State: JobTerminal, Raw: raw}, true
		case slurmPendingStates[raw]:
			return JobStatus{State: JobPending, Raw: raw}, true
		default:
			return JobStatus{State: JobRunning, Raw: raw}, true
		}
	}
	return JobStatus{}, false
}

// parseSlurmTimeSpec parses SLURM time strings: "MM", "MM:SS", "HH:MM:SS",
// "D-HH", "D-HH:MM", "D-HH:MM:SS".
func parseSlurmTimeSpec(timeStr string) (time.Duration, error) {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" {
		return 0, nil
	}

	var days int64
	hms := timeStr
	hasDays := false
	if idx := strings.Index(hms, "-"); idx >= 0 {
		parsed, err := strconv.ParseInt(hms[:idx], 10, 64)
		if err != nil || parsed < 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidTimeFormat, timeStr)
		}
		days = parsed
		hasDays = true
		hms = strings.TrimSpace(hms[idx+1:])
	}

	parts := strings.Split(hms, ":")
	nums := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %s", ErrInvalidTimeFormat, timeStr)
		}
		nums[i] = n
	}

	var hours, minutes, seconds int64
	switch {
	case hasDays && len(nums) == 1:
		hours = nums[0]
	case hasDays && len(nums) == 2:
		hours, minutes = nums[0], nums[1]
	case len(nums) == 1:
		minutes = nums[0]
	case len(nums) == 2:
		minutes, seconds = nums[0], nums[1]
	case len(nums) == 3:
		hours, minutes, seconds = nums[0], nums[1], nums[2]
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidTimeFormat, timeStr)
	}

	total := days*24*3600 + hours*3600 + minutes*60 + seconds
	return time.Duration(total) * time.Second, nil
}

// formatSlurmTimeSpec formats a duration as [D-]HH:MM:SS.
func formatSlurmTimeSpec(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	total := int64(d.Seconds())
	days := total / (24 * 3600)
	rem := total % (24 * 3600)
	hours := rem / 3600
	rem %= 3600
	minutes := rem / 60
	seconds := rem % 60
	if days > 0 {
		return fmt.Sprintf("%d-%02d:%02d:%02d", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// NormalizeTimeLimit validates a time limit in SLURM notation and returns it
// in canonical [D-]HH:MM:SS form. Go-style durations ("36h") are accepted too.
func NormalizeTimeLimit(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	d, err := parseSlurmTimeSpec(s)
	if err != nil {
		alt, altErr := time.ParseDuration(s)
		if altErr != nil || alt <= 0 {
			return "", err
		}
		d = alt
	}
	if d <= 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidTimeFormat, s)
	}
	return formatSlurmTimeSpec(d), nil
}
