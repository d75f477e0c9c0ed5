// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts resolver invocations by result and error kind.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_resolutions_total",
		Help: "Total URL resolutions by result and error kind",
	}, []string{"result", "kind"})

	// ResolutionDuration tracks how long the external resolver takes.
	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tvrelay_resolution_duration_seconds",
		Help:    "Duration of external URL resolutions",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30, 45},
	})

	// CacheEntries tracks cache entries by liveness.
	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tvrelay_cache_entries",
		Help: "Live URL cache entries by state",
	}, []string{"state"})

	// RefreshCyclesTotal counts completed refresh cycles.
	RefreshCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvrelay_refresh_cycles_total",
		Help: "Total completed refresh cycles",
	})

	// RefreshCycleDuration tracks the wall time of one refresh cycle.
	RefreshCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tvrelay_refresh_cycle_duration_seconds",
		Help:    "Duration of refresh cycles",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// SchedulerRestartsTotal counts recovered scheduler loop panics.
	SchedulerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvrelay_scheduler_restarts_total",
		Help: "Total supervised restarts of the refresh loop",
	})

	// ChannelBackoff exposes the current backoff per channel.
	ChannelBackoff = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tvrelay_channel_backoff_seconds",
		Help: "Current refresh period per resolvable channel",
	}, []string{"channel"})
)

// ObserveResolution records one resolver call.
func ObserveResolution(success bool, kind string, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
		kind = "none"
	}
	ResolutionsTotal.WithLabelValues(result, kind).Inc()
	ResolutionDuration.Observe(d.Seconds())
}

// SetCacheCounts publishes live and stale entry counts.
func SetCacheCounts(live, stale int) {
	CacheEntries.WithLabelValues("live").Set(float64(live))
	CacheEntries.WithLabelValues("stale").Set(float64(stale))
}

// ObserveRefreshCycle records a completed cycle.
func ObserveRefreshCycle(d time.Duration) {
	RefreshCyclesTotal.Inc()
	RefreshCycleDuration.Observe(d.Seconds())
}

// IncSchedulerRestart records a supervised loop restart.
func IncSchedulerRestart() {
	SchedulerRestartsTotal.Inc()
}

// SetChannelBackoff publishes the effective period of one channel.
func SetChannelBackoff(channel string, d time.Duration) {
	ChannelBackoff.WithLabelValues(channel).Set(d.Seconds())
}
