// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup starts external tools in their own process group so that the
// whole tree (e.g. ffmpeg plus helpers) can be reaped with one signal.
package procgroup

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// CancelGroup returns a function suitable for exec.Cmd.Cancel that kills the whole
// process group instead of only the leader. Mandatory: cmd must have been
// prepared with Set.
func CancelGroup(cmd *exec.Cmd) func() error {
	return func() error {
		return Kill(cmd, syscall.SIGKILL)
	}
}

func isGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH)
}
