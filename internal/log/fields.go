// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldChannel   = "channel"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldStage     = "stage"
	FieldAttempt   = "attempt"
	FieldProfile   = "profile"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Resolution fields
	FieldLocator  = "locator"
	FieldExitCode = "exit_code"
	FieldBackoff  = "backoff"

	// Path / URL fields
	FieldPath      = "path"
	FieldSourceURL = "source_url"
)
