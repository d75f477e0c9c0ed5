// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TranscoderProcesses tracks live external processes.
	TranscoderProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tvrelay_transcoder_processes",
		Help: "Number of live transcoder processes",
	})

	// TranscoderSpawnsTotal counts spawn attempts by result.
	TranscoderSpawnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_transcoder_spawns_total",
		Help: "Total transcoder spawn attempts by result",
	}, []string{"result"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_proc_terminate_total",
		Help: "Signals sent to process groups by signal and outcome",
	}, []string{"signal", "outcome"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tvrelay_proc_wait_total",
		Help: "Process reap results after termination",
	}, []string{"result"})
)

// ProcessStarted increments the live process gauge.
func ProcessStarted() {
	TranscoderProcesses.Inc()
	TranscoderSpawnsTotal.WithLabelValues("success").Inc()
}

// ProcessReaped decrements the live process gauge.
func ProcessReaped() {
	TranscoderProcesses.Dec()
}

// IncSpawnFailure records a failed spawn.
func IncSpawnFailure() {
	TranscoderSpawnsTotal.WithLabelValues("failure").Inc()
}

// IncProcTerminate records a termination signal.
func IncProcTerminate(signal, outcome string) {
	procTerminateTotal.WithLabelValues(signal, outcome).Inc()
}

// IncProcWait records how a terminated process was reaped.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
