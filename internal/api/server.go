// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the channel pages, the relay streams and the status surface.
package api

import (
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/tvrelay/internal/api/middleware"
	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/config"
	"github.com/ManuGH/tvrelay/internal/health"
	"github.com/ManuGH/tvrelay/internal/livecache"
	"github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/refresh"
	"github.com/ManuGH/tvrelay/internal/relay"
	"github.com/ManuGH/tvrelay/internal/transcoder"
)

// RefreshStatus is the read side of the refresh scheduler.
type RefreshStatus interface {
	Status() map[string]refresh.ChannelState
	LastCycle() time.Time
}

// Deps are the collaborators of the server.
type Deps struct {
	Catalog *catalog.Catalog
	Cache   *livecache.Cache
	Relay   *relay.Supervisor
	Health  *health.Manager
	Refresh RefreshStatus
}

// Server is the HTTP surface of the relay.
type Server struct {
	cfg     config.AppConfig
	catalog *catalog.Catalog
	cache   *livecache.Cache
	relay   *relay.Supervisor
	health  *health.Manager
	refresh RefreshStatus

	video transcoder.Profile
	audio transcoder.Profile
	pages *template.Template

	trusted []*net.IPNet

	logger  zerolog.Logger
	started time.Time
	router  chi.Router
}

// New creates the server and builds its router.
func New(cfg config.AppConfig, deps Deps) (*Server, error) {
	if deps.Catalog == nil || deps.Cache == nil || deps.Relay == nil {
		return nil, fmt.Errorf("api: catalog, cache and relay are required")
	}
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("api: parse templates: %w", err)
	}
	trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}

	video := transcoder.Video()
	video.AutoRestart = cfg.Relay.VideoAutoRestart
	video.RestartDelay = cfg.Relay.RestartDelay
	audio := transcoder.Audio()
	audio.RestartDelay = cfg.Relay.RestartDelay

	s := &Server{
		cfg:     cfg,
		catalog: deps.Catalog,
		cache:   deps.Cache,
		relay:   deps.Relay,
		health:  deps.Health,
		refresh: deps.Refresh,
		video:   video,
		audio:   audio,
		pages:   pages,
		trusted: trusted,
		logger:  log.WithComponent("api"),
		started: time.Now(),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler serves the Prometheus registry, for a dedicated listener.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,
		EnableMetrics:         true,
		TracingService:        "tvrelay-http",
		EnableLogging:         true,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.cfg.Server.MetricsListen == "" {
		r.Handle("/metrics", MetricsHandler())
	}

	r.Get("/", s.handleHome)
	r.Get("/watch/{channel}", s.handleWatch)
	r.Get("/api/status", s.handleStatus)
	r.Get("/playlist.m3u", s.handlePlaylist)

	r.Group(func(r chi.Router) {
		r.Use(middleware.StreamRateLimit(s.cfg.Server.StreamRateLimit))
		r.Get("/stream/{channel}", s.handleVideo)
		r.Get("/audio/{channel}", s.handleAudio)
	})
	return r
}

// profileFor adapts a base profile to the channel's source kind.
func (s *Server) profileFor(ch catalog.Channel, base transcoder.Profile) transcoder.Profile {
	p := base
	if ch.Source.Kind == catalog.KindResolvable && s.cfg.Relay.ResolvableFeeder == transcoder.FeederYTDLP {
		p.Feeder = transcoder.FeederYTDLP
	}
	return p
}
