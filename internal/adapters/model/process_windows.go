//go:build windows

package model

import "os/exec"

// configureProcAttr is a no-op on Windows; process groups are not used.
func configureProcAttr(*exec.Cmd) {}

// terminateProcessGroup kills the process directly on Windows.
func terminateProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
