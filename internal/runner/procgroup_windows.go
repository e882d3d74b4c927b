//go:build windows

package runner

import "os/exec"

// setupProcessGroup is a no-op on Windows where Setpgid is unavailable.
// exec.CommandContext's default Cancel kills the direct child only.
func setupProcessGroup(cmd *exec.Cmd) {}
