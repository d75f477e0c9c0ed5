// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ManuGH/tvrelay/internal/api/middleware"
	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/playlist"
	"github.com/ManuGH/tvrelay/internal/refresh"
)

// ChannelStatus is the per-channel entry of /api/status.
type ChannelStatus struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Live        bool       `json:"live"`
	HasURL      bool       `json:"has_url"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Failures    int        `json:"failures,omitempty"`
	NextAttempt *time.Time `json:"next_attempt,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version        string          `json:"version,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	LastCycle      *time.Time      `json:"last_cycle,omitempty"`
	ActiveSessions int             `json:"active_sessions"`
	Processes      int             `json:"processes"`
	Channels       []ChannelStatus `json:"channels"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// handleStatus reports the liveness of every channel. It only reads state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.cache.Snapshot()
	resp := StatusResponse{
		Version:        s.cfg.Version,
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ActiveSessions: s.relay.Active(),
		Processes:      s.relay.Processes(),
		Channels:       make([]ChannelStatus, 0, s.catalog.Len()),
	}
	var states map[string]refresh.ChannelState
	if s.refresh != nil {
		resp.LastCycle = timePtr(s.refresh.LastCycle())
		states = s.refresh.Status()
	}

	for _, ch := range s.catalog.All() {
		cs := ChannelStatus{
			ID:   ch.ID,
			Name: viewOf(ch).Name,
			Kind: string(ch.Source.Kind),
		}
		if ch.Source.Kind == catalog.KindStable {
			cs.Live = true
			cs.HasURL = true
		} else if e, ok := snap[ch.ID]; ok {
			cs.Live = e.Live
			cs.HasURL = e.URL != ""
			cs.ResolvedAt = timePtr(e.ResolvedAt)
		}
		if st, ok := states[ch.ID]; ok {
			cs.Failures = st.Failures
			cs.NextAttempt = timePtr(st.NextAttempt)
			cs.LastError = st.LastError
		}
		resp.Channels = append(resp.Channels, cs)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePlaylist serves the M3U of currently available channels.
func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	base := s.cfg.Server.PublicURL
	if base == "" {
		base = requestBaseURL(r, s.trusted)
	}
	items := playlist.Items(playlist.Available(s.catalog, s.cache), base)

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	if err := playlist.WriteM3U(w, items); err != nil {
		logger := log.WithContext(r.Context(), s.logger)
		logger.Warn().Err(err).
			Str(log.FieldEvent, "playlist.serve_failed").
			Msg("failed to write playlist")
	}
}

var hostPattern = regexp.MustCompile(`^(\[[0-9A-Fa-f:.]+\]|[A-Za-z0-9.-]+)(:[0-9]{1,5})?$`)

// requestBaseURL derives the playlist base from the request. Forwarded
// headers count only when the peer is a trusted proxy; deployments behind
// other proxies should set server.publicURL.
func requestBaseURL(r *http.Request, trusted []*net.IPNet) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if middleware.RemoteIsTrusted(r.RemoteAddr, trusted) {
		switch proto := strings.ToLower(firstValue(r.Header.Get("X-Forwarded-Proto"))); proto {
		case "http", "https":
			scheme = proto
		}
		if fwd := firstValue(r.Header.Get("X-Forwarded-Host")); fwd != "" {
			host = fwd
		}
	}
	if !hostPattern.MatchString(host) {
		host = "localhost"
	}
	return scheme + "://" + host
}

func firstValue(h string) string {
	v, _, _ := strings.Cut(h, ",")
	return strings.TrimSpace(v)
}
