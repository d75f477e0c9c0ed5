// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/ManuGH/tvrelay/internal/transcoder"
	"github.com/rs/zerolog"
)

// Validate reports every problem of cfg at once. All errors match ErrInvalidConfig.
func Validate(cfg AppConfig) error {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...)))
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		fail("logLevel", "unknown level %q", cfg.LogLevel)
	}
	if cfg.Server.Listen == "" {
		fail("server.listen", "must not be empty")
	}
	if cfg.Server.PublicURL != "" {
		if u, err := url.Parse(cfg.Server.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fail("server.publicURL", "must be an absolute http(s) URL, got %q", cfg.Server.PublicURL)
		}
	}
	if err := checkTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		fail("server.trustedProxies", "%v", err)
	}
	if cfg.Server.WriteTimeout <= 0 {
		fail("server.writeTimeout", "must be positive")
	}
	if cfg.Server.StreamRateLimit < 0 {
		fail("server.streamRateLimit", "must not be negative")
	}

	if cfg.Resolver.Bin == "" {
		fail("resolver.bin", "must not be empty")
	}
	if cfg.Resolver.Timeout <= 0 {
		fail("resolver.timeout", "must be positive")
	}
	if cfg.Resolver.RateLimit < 0 {
		fail("resolver.rateLimit", "must not be negative")
	}

	if cfg.Refresh.Interval <= 0 {
		fail("refresh.interval", "must be positive")
	}
	if cfg.Refresh.Workers < 1 {
		fail("refresh.workers", "must be at least 1")
	}
	if cfg.Refresh.MaxBackoff < cfg.Refresh.Interval {
		fail("refresh.maxBackoff", "must not be shorter than refresh.interval")
	}

	if cfg.FFmpeg.Bin == "" {
		fail("ffmpeg.bin", "must not be empty")
	}
	if cfg.FFmpeg.KillGrace <= 0 {
		fail("ffmpeg.killGrace", "must be positive")
	}

	if cfg.Relay.IdleTimeout <= 0 {
		fail("relay.idleTimeout", "must be positive")
	}
	if cfg.Relay.ClientStallTimeout <= 0 {
		fail("relay.clientStallTimeout", "must be positive")
	}
	if cfg.Relay.RestartDelay <= 0 {
		fail("relay.restartDelay", "must be positive")
	}
	switch cfg.Relay.ResolvableFeeder {
	case "", transcoder.FeederYTDLP:
	default:
		fail("relay.resolvableFeeder", "unknown feeder %q", cfg.Relay.ResolvableFeeder)
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			fail("telemetry.exporter", "must be grpc or http, got %q", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			fail("telemetry.endpoint", "must not be empty when tracing is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		fail("telemetry.samplingRate", "must be within [0, 1]")
	}

	if len(cfg.Channels) == 0 {
		fail("channels", "at least one channel is required")
	} else if _, err := cfg.Catalog(); err != nil {
		fail("channels", "%v", err)
	}

	return errors.Join(errs...)
}
