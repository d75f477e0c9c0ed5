// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package refresh

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// CredentialWatcher forces a refresh cycle whenever the resolver cookies file
// is created, rewritten or replaced.
type CredentialWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	logger   zerolog.Logger
}

// NewCredentialWatcher watches path and calls onChange after events settle.
func NewCredentialWatcher(path string, onChange func()) *CredentialWatcher {
	return &CredentialWatcher{
		path:     filepath.Clean(path),
		debounce: defaultDebounce,
		onChange: onChange,
		logger:   xglog.WithComponent("credentials"),
	}
}

// Run blocks until ctx is done. The parent directory is watched so that atomic
// replacements and late creation of the file are both seen.
func (w *CredentialWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create credentials watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info().
		Str(xglog.FieldEvent, "credentials.watch").
		Str(xglog.FieldPath, w.path).
		Msg("watching resolver credentials")

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Str(xglog.FieldEvent, "credentials.watch_error").Msg("credentials watcher error")
		case <-fire:
			fire = nil
			w.logger.Info().
				Str(xglog.FieldEvent, "credentials.changed").
				Str(xglog.FieldPath, w.path).
				Msg("resolver credentials changed, forcing refresh")
			w.onChange()
		}
	}
}
