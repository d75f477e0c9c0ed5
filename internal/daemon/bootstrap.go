// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the relay components together and runs them.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/ManuGH/tvrelay/internal/api"
	"github.com/ManuGH/tvrelay/internal/config"
	"github.com/ManuGH/tvrelay/internal/health"
	"github.com/ManuGH/tvrelay/internal/livecache"
	"github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/playlist"
	"github.com/ManuGH/tvrelay/internal/refresh"
	"github.com/ManuGH/tvrelay/internal/relay"
	"github.com/ManuGH/tvrelay/internal/resolver"
	"github.com/ManuGH/tvrelay/internal/telemetry"
	"github.com/ManuGH/tvrelay/internal/transcoder"
)

// PlaylistFile is the name of the exported playlist inside the data directory.
const PlaylistFile = "playlist.m3u"

// Components are the collaborators Build wires. Nil fields get production
// implementations.
type Components struct {
	Resolver resolver.Resolver
	Spawner  transcoder.Spawner
}

// Build assembles the App from cfg.
func Build(ctx context.Context, cfg config.AppConfig, comps Components) (*App, error) {
	logger := log.WithComponent("daemon")

	cat, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	cache := livecache.New()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tvrelay",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
		tp = nil
	}

	res := comps.Resolver
	if res == nil {
		res = resolver.NewYTDLP(resolver.Config{
			Bin:         cfg.Resolver.Bin,
			Format:      cfg.Resolver.Format,
			CookiesFile: cfg.Resolver.CookiesFile,
			ExtraArgs:   cfg.Resolver.ExtraArgs,
			RateLimit:   cfg.Resolver.RateLimit,
			Burst:       cfg.Resolver.Burst,
			Logger:      log.WithComponent("resolver"),
		})
	}
	sched := refresh.New(refresh.Config{
		Interval:       cfg.Refresh.Interval,
		ResolveTimeout: cfg.Resolver.Timeout,
		Workers:        cfg.Refresh.Workers,
		MaxBackoff:     cfg.Refresh.MaxBackoff,
	}, cat, cache, res)

	pw := &playlist.Writer{
		Path:    filepath.Join(cfg.DataDir, PlaylistFile),
		BaseURL: playlistBaseURL(cfg.Server),
		Catalog: cat,
		Cache:   cache,
	}
	sched.OnCycle(pw.OnCycle)

	var watcher Watcher
	if cfg.Refresh.WatchCookies && cfg.Resolver.CookiesFile != "" {
		watcher = refresh.NewCredentialWatcher(cfg.Resolver.CookiesFile, sched.Kick)
	}

	spawner := comps.Spawner
	if spawner == nil {
		spawner = transcoder.NewFFmpeg(transcoder.Config{
			FFmpegBin:   cfg.FFmpeg.Bin,
			YTDLPBin:    cfg.Resolver.Bin,
			CookiesFile: cfg.Resolver.CookiesFile,
			KillGrace:   cfg.FFmpeg.KillGrace,
			Logger:      log.WithComponent("transcoder"),
		})
	}
	sup := relay.NewSupervisor(relay.Config{
		IdleTimeout:        cfg.Relay.IdleTimeout,
		ClientStallTimeout: cfg.Relay.ClientStallTimeout,
		RestartDelay:       cfg.Relay.RestartDelay,
		MaxRestartDelay:    cfg.Relay.MaxRestartDelay,
		KillGrace:          cfg.FFmpeg.KillGrace,
	}, cat, cache, spawner)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewFreshnessChecker(sched.LastCycle, sched.Interval()))
	if comps.Spawner == nil {
		hm.RegisterChecker(health.NewBinaryChecker("ffmpeg", cfg.FFmpeg.Bin))
	}
	hm.RegisterChecker(health.NewFileChecker("cookies", cfg.Resolver.CookiesFile))

	srv, err := api.New(cfg, api.Deps{
		Catalog: cat,
		Cache:   cache,
		Relay:   sup,
		Health:  hm,
		Refresh: sched,
	})
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Logger:      logger,
		APIHandler:  srv.Handler(),
		MetricsAddr: cfg.Server.MetricsListen,
		Drain:       sup.Shutdown,
	}
	if cfg.Server.MetricsListen != "" {
		deps.MetricsHandler = metricsMux(hm)
	}
	mgr, err := NewManager(cfg.Server, deps)
	if err != nil {
		return nil, err
	}
	if tp != nil {
		mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	}

	logger.Info().
		Int("channels", cat.Len()).
		Int("resolvable", len(cat.Resolvable())).
		Str("listen", cfg.Server.Listen).
		Str("version", cfg.Version).
		Msg("relay assembled")

	return NewApp(logger, mgr, sched, watcher), nil
}

// metricsMux serves metrics and the probes on the dedicated listener.
func metricsMux(hm *health.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", api.MetricsHandler())
	mux.HandleFunc("/healthz", hm.ServeHealth)
	mux.HandleFunc("/readyz", hm.ServeReady)
	return mux
}

// playlistBaseURL is the public URL, or one derived from the listen address.
func playlistBaseURL(s config.ServerConfig) string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	host, port, err := net.SplitHostPort(s.Listen)
	if err != nil {
		return "http://localhost"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
