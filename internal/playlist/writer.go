// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"context"
	"fmt"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/livecache"
	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/google/renameio/v2"
)

// Writer exports the available channels to a file after every refresh cycle.
type Writer struct {
	Path    string
	BaseURL string
	Catalog *catalog.Catalog
	Cache   *livecache.Cache
}

// Write renders the playlist and atomically replaces Path with it.
func (w *Writer) Write(ctx context.Context) error {
	logger := xglog.WithComponentFromContext(ctx, "playlist")

	pending, err := renameio.NewPendingFile(w.Path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending playlist file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending playlist file")
		}
	}()

	channels := Available(w.Catalog, w.Cache)
	if err := WriteM3U(pending, Items(channels, w.BaseURL)); err != nil {
		return fmt.Errorf("write playlist data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace playlist file: %w", err)
	}

	logger.Debug().
		Str(xglog.FieldEvent, "playlist.written").
		Str(xglog.FieldPath, w.Path).
		Int("channels", len(channels)).
		Msg("playlist exported")
	return nil
}

// OnCycle is a refresh listener. Errors are logged, never propagated.
func (w *Writer) OnCycle(ctx context.Context) {
	if err := w.Write(ctx); err != nil {
		logger := xglog.WithComponentFromContext(ctx, "playlist")
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "playlist.write_failed").
			Str(xglog.FieldPath, w.Path).
			Msg("playlist export failed")
	}
}
