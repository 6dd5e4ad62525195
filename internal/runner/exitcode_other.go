// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix

package runner

import "os/exec"

func exitCode(err *exec.ExitError) int {
	return err.ExitCode()
}
