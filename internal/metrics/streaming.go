// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RelaySessionsActive tracks relay sessions currently attached to a client.
	RelaySessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tvrelay_relay_sessions_active",
		Help: "Number of relay sessions currently serving a client",
	}, []string{"profile"})

	// RelaySessionsTotal tracks finished sessions by how they ended.
	RelaySessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_relay_sessions_total",
		Help: "Total relay sessions by profile and end reason",
	}, []string{"profile", "reason"})

	// RelayRestartsTotal counts transcoder restarts inside sessions.
	RelayRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_relay_restarts_total",
		Help: "Total transcoder restarts by profile and cause",
	}, []string{"profile", "cause"})

	// RelayBytesTotal counts bytes forwarded to clients.
	RelayBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_relay_bytes_total",
		Help: "Total bytes forwarded to clients",
	}, []string{"profile"})

	// RelayOpenFailuresTotal counts sessions that could not be opened.
	RelayOpenFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_relay_open_failures_total",
		Help: "Total stream open failures by reason",
	}, []string{"reason"})
)

// SessionStarted marks a session as active.
func SessionStarted(profile string) {
	RelaySessionsActive.WithLabelValues(profile).Inc()
}

// SessionEnded marks a session as finished with the given reason.
func SessionEnded(profile, reason string) {
	RelaySessionsActive.WithLabelValues(profile).Dec()
	RelaySessionsTotal.WithLabelValues(profile, reason).Inc()
}

// IncRelayRestart records a transcoder restart.
func IncRelayRestart(profile, cause string) {
	RelayRestartsTotal.WithLabelValues(profile, cause).Inc()
}

// AddRelayBytes records bytes forwarded to a client.
func AddRelayBytes(profile string, n int) {
	RelayBytesTotal.WithLabelValues(profile).Add(float64(n))
}

// IncOpenFailure records a failed stream open.
func IncOpenFailure(reason string) {
	RelayOpenFailuresTotal.WithLabelValues(reason).Inc()
}
