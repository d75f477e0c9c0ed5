// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resolver

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed resolution.
type ErrorKind string

const (
	KindTimeout        ErrorKind = "timeout"
	KindToolFailure    ErrorKind = "tool_failure"
	KindNoUsableFormat ErrorKind = "no_usable_format"
)

var (
	ErrTimeout        = errors.New("resolver timed out")
	ErrToolFailure    = errors.New("resolver tool failed")
	ErrNoUsableFormat = errors.New("resolver returned no usable format")
)

// Error is a typed resolution failure. Use errors.Is with the sentinels above or
// errors.As to read the exit code and captured stderr.
type Error struct {
	Kind     ErrorKind
	Locator  string
	ExitCode int    // -1 when the tool never ran or was killed
	Stderr   string // tail of the tool's diagnostic output
	Err      error  // underlying cause, if any
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindToolFailure:
		if e.Err != nil {
			return fmt.Sprintf("resolve %s: %s (exit %d): %v", e.Locator, e.Kind, e.ExitCode, e.Err)
		}
		return fmt.Sprintf("resolve %s: %s (exit %d)", e.Locator, e.Kind, e.ExitCode)
	default:
		return fmt.Sprintf("resolve %s: %s", e.Locator, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps the kind onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrToolFailure:
		return e.Kind == KindToolFailure
	case ErrNoUsableFormat:
		return e.Kind == KindNoUsableFormat
	}
	return false
}

// KindOf returns the kind of a resolution error, or "other" for foreign errors.
func KindOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return string(re.Kind)
	}
	return "other"
}
