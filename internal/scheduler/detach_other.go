//go:build windows

package scheduler

import "os/exec"

func detach(cmd *exec.Cmd) {}
