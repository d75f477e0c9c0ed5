// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

// Wiring errors reported by Deps.Validate and App.Run.
var (
	ErrMissingLogger     = errors.New("daemon: logger is required")
	ErrMissingAPIHandler = errors.New("daemon: relay HTTP handler is required")
	ErrMissingManager    = errors.New("daemon: server manager is required")
	ErrMissingScheduler  = errors.New("daemon: refresh scheduler is required")
)

// ErrManagerNotStarted is returned by Shutdown before Start bound the listeners.
var ErrManagerNotStarted = errors.New("daemon: manager not started")
