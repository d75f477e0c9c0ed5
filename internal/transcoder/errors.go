// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn is returned when the transcoder (or its feeder) could not be started.
	ErrSpawn = errors.New("transcoder spawn failed")

	// ErrInvalidInput is returned for an empty input URL.
	ErrInvalidInput = errors.New("invalid transcoder input")
)

// Stage names used in StageError.
const (
	StageFeeder = "feeder"
	StageFFmpeg = "ffmpeg"
)

// StageError attributes a failure to one stage of a piped pipeline.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
