//go:build unix

package agent

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts c in its own process group and makes
// cancellation kill the whole group, so children of the shell die with it.
func killProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
}
