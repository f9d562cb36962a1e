//go:build !windows

package tool

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the tool in its own process group so the watchdog
// can kill any helpers it forked along with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
