// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// Copy writes the session's chunks to w until the stream ends, ctx is done or a
// write fails. Each write gets its own deadline and is flushed immediately.
func Copy(ctx context.Context, w http.ResponseWriter, s *Session, writeTimeout time.Duration) (int64, error) {
	rc := http.NewResponseController(w)
	var written int64
	for {
		chunk, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, err
		}
		if writeTimeout > 0 {
			if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return written, err
		}
	}
}
