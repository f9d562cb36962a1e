//go:build windows

package tool

import "os/exec"

// setProcessGroup keeps the default cancellation, which kills the tool
// process itself.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
