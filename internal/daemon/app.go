// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/tvrelay/internal/log"
)

// Refresher is the background refresh loop owned by the App.
type Refresher interface {
	Run(ctx context.Context) error
	Kick()
}

// Watcher is a best-effort background watcher.
type Watcher interface {
	Run(ctx context.Context) error
}

// App owns the long-lived runtime lifecycle (refresh loop, credential watcher)
// and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	refresher    Refresher
	watcher      Watcher
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator. watcher may be nil.
func NewApp(logger zerolog.Logger, manager Manager, refresher Refresher, watcher Watcher) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		refresher:    refresher,
		watcher:      watcher,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all owned background subsystems and blocks until ctx is cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.refresher == nil {
		return ErrMissingScheduler
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.refresher.Run(ctx)
	})

	// The credential watcher is best-effort: refreshes keep running on the timer.
	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Warn().Err(err).
					Str(log.FieldEvent, "credentials.watcher_failed").
					Msg("credential watcher stopped")
			}
			return nil
		})
	}

	// SIGHUP forces an immediate refresh of every resolvable channel.
	if a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "refresh.signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received refresh signal")
					a.refresher.Kick()
				}
			}
		})
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
