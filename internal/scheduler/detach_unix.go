//go:build !windows

package scheduler

import (
	"os/exec"
	"syscall"
)

// detach puts the job into its own process group so terminal signals sent
// to aslurm do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
