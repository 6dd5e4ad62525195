// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set does nothing; Windows has no process groups in this sense.
func Set(*exec.Cmd) {}

// Kill terminates the process itself on SIGKILL. Softer signals cannot be
// delivered and are dropped.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil || sig != syscall.SIGKILL {
		return nil
	}
	return cmd.Process.Kill()
}

// Alive is always false: without groups there is nothing left to sweep.
func Alive(*exec.Cmd) bool { return false }
