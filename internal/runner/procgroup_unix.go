//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the script in its own process group and makes
// context cancellation SIGKILL the whole group, so interpreters that fork
// workers (npx → node) leave nothing behind after a timeout.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
