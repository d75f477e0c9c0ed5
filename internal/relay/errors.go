// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"errors"

	"github.com/ManuGH/tvrelay/internal/transcoder"
)

var (
	// ErrUnknownChannel means the id is not in the catalog.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrSourceUnavailable means no upstream URL is known yet for the channel.
	ErrSourceUnavailable = errors.New("channel not ready")
	// ErrSpawn means the transcoder could not be started.
	ErrSpawn = transcoder.ErrSpawn
	// ErrTranscoderStall means the transcoder produced no output within the idle timeout.
	ErrTranscoderStall = errors.New("transcoder stalled")
	// ErrTranscoderExit means the transcoder exited with an error.
	ErrTranscoderExit = errors.New("transcoder exited")
	// ErrClientStall means the consumer stopped pulling chunks.
	ErrClientStall = errors.New("client stalled")
	// ErrSessionClosed is the cancellation cause of Session.Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrClientGone is the cancellation cause when the opening context ends.
	ErrClientGone = errors.New("client disconnected")
	// ErrShuttingDown is returned by Open after Shutdown.
	ErrShuttingDown = errors.New("relay shutting down")
)
