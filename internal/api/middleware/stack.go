// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package middleware provides the HTTP ingress middleware of the relay server.
package middleware

import (
	"github.com/go-chi/chi/v5"

	xglog "github.com/ManuGH/tvrelay/internal/log"
)

// StackConfig selects the layers of the ingress stack.
type StackConfig struct {
	EnableSecurityHeaders bool
	CSP                   string
	// MediaPrefixes are served without page headers; nil means DefaultMediaPrefixes.
	MediaPrefixes []string

	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool
}

// NewRouter returns a chi router with the stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack installs, outermost first: panic recovery, request id, security
// headers, HTTP metrics, tracing, access log. The access log sits innermost so
// it sees the request id and trace span and times the full stream.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	if cfg.EnableSecurityHeaders {
		media := cfg.MediaPrefixes
		if media == nil {
			media = DefaultMediaPrefixes
		}
		r.Use(SecurityHeaders(cfg.CSP, media...))
	}
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(OTelHTTP(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(xglog.Middleware())
	}
}
