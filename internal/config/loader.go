// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	// 1. Defaults
	cfg, err := Defaults()
	if err != nil {
		return cfg, fmt.Errorf("set defaults: %w", err)
	}
	cfg.Version = l.version

	// 2. File (overlays only the keys it sets; a channels list replaces the default catalog)
	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// 3. Environment (highest priority)
	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	// 4. Validate
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file onto cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies TVRELAY_* variables on top of cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("TVRELAY_LOG_LEVEL", cfg.LogLevel)
	cfg.DataDir = l.envString("TVRELAY_DATA_DIR", cfg.DataDir)

	cfg.Server.Listen = l.envString("TVRELAY_LISTEN", cfg.Server.Listen)
	cfg.Server.MetricsListen = l.envString("TVRELAY_METRICS_LISTEN", cfg.Server.MetricsListen)
	cfg.Server.PublicURL = l.envString("TVRELAY_PUBLIC_URL", cfg.Server.PublicURL)
	cfg.Server.TrustedProxies = l.envString("TVRELAY_TRUSTED_PROXIES", cfg.Server.TrustedProxies)
	cfg.Server.WriteTimeout = l.envDuration("TVRELAY_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration("TVRELAY_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.StreamRateLimit = l.envInt("TVRELAY_STREAM_RATE_LIMIT", cfg.Server.StreamRateLimit)

	cfg.Resolver.Bin = l.envString("TVRELAY_YTDLP_BIN", cfg.Resolver.Bin)
	cfg.Resolver.Format = l.envString("TVRELAY_YTDLP_FORMAT", cfg.Resolver.Format)
	cfg.Resolver.CookiesFile = l.envString("TVRELAY_COOKIES_FILE", cfg.Resolver.CookiesFile)
	cfg.Resolver.ExtraArgs = l.envList("TVRELAY_YTDLP_EXTRA_ARGS", cfg.Resolver.ExtraArgs)
	cfg.Resolver.Timeout = l.envDuration("TVRELAY_RESOLVE_TIMEOUT", cfg.Resolver.Timeout)
	cfg.Resolver.RateLimit = l.envFloat("TVRELAY_RESOLVE_RATE", cfg.Resolver.RateLimit)

	cfg.Refresh.Interval = l.envDuration("TVRELAY_REFRESH_INTERVAL", cfg.Refresh.Interval)
	cfg.Refresh.Workers = l.envInt("TVRELAY_REFRESH_WORKERS", cfg.Refresh.Workers)
	cfg.Refresh.MaxBackoff = l.envDuration("TVRELAY_REFRESH_MAX_BACKOFF", cfg.Refresh.MaxBackoff)
	cfg.Refresh.WatchCookies = l.envBool("TVRELAY_WATCH_COOKIES", cfg.Refresh.WatchCookies)

	cfg.FFmpeg.Bin = l.envString("TVRELAY_FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.KillGrace = l.envDuration("TVRELAY_KILL_GRACE", cfg.FFmpeg.KillGrace)

	cfg.Relay.IdleTimeout = l.envDuration("TVRELAY_IDLE_TIMEOUT", cfg.Relay.IdleTimeout)
	cfg.Relay.ClientStallTimeout = l.envDuration("TVRELAY_CLIENT_STALL_TIMEOUT", cfg.Relay.ClientStallTimeout)
	cfg.Relay.RestartDelay = l.envDuration("TVRELAY_RESTART_DELAY", cfg.Relay.RestartDelay)
	cfg.Relay.VideoAutoRestart = l.envBool("TVRELAY_VIDEO_AUTO_RESTART", cfg.Relay.VideoAutoRestart)
	cfg.Relay.ResolvableFeeder = l.envString("TVRELAY_RESOLVABLE_FEEDER", cfg.Relay.ResolvableFeeder)

	cfg.Telemetry.Enabled = l.envBool("TVRELAY_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TVRELAY_OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TVRELAY_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TVRELAY_TRACE_SAMPLING", cfg.Telemetry.SamplingRate)
}
