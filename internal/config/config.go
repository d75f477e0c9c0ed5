// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration with precedence
// ENV > YAML file > defaults.
package config

import (
	"time"

	"github.com/ManuGH/tvrelay/internal/catalog"
)

// AppConfig is the complete runtime configuration.
type AppConfig struct {
	Version  string `yaml:"-"`
	LogLevel string `yaml:"logLevel"`
	// DataDir holds the exported playlist.
	DataDir string `yaml:"dataDir"`

	Server    ServerConfig    `yaml:"server"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Relay     RelayConfig     `yaml:"relay"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Channels []ChannelConfig `yaml:"channels"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metricsListen"`
	// PublicURL is the base of stream URLs in playlists. Set it when the relay
	// is reachable under a different name than its listen address.
	PublicURL string `yaml:"publicURL"`
	// TrustedProxies lists CIDRs whose X-Forwarded-Proto and X-Forwarded-Host
	// are honoured when /playlist.m3u derives its base from the request.
	TrustedProxies string `yaml:"trustedProxies"`

	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	// WriteTimeout bounds each chunk write of a stream, not the whole response.
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// StreamRateLimit is the number of stream opens per client IP and minute (0 disables).
	StreamRateLimit int `yaml:"streamRateLimit"`
}

// ResolverConfig configures yt-dlp.
type ResolverConfig struct {
	Bin         string        `yaml:"bin"`
	Format      string        `yaml:"format"`
	CookiesFile string        `yaml:"cookiesFile"`
	ExtraArgs   []string      `yaml:"extraArgs"`
	Timeout     time.Duration `yaml:"timeout"`
	// RateLimit paces tool invocations per second (0 disables).
	RateLimit float64 `yaml:"rateLimit"`
	Burst     int     `yaml:"burst"`
}

// RefreshConfig configures the refresh scheduler.
type RefreshConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Workers    int           `yaml:"workers"`
	MaxBackoff time.Duration `yaml:"maxBackoff"`
	// WatchCookies forces a refresh when the cookies file changes.
	WatchCookies bool `yaml:"watchCookies"`
}

// FFmpegConfig configures the transcoder binary.
type FFmpegConfig struct {
	Bin       string        `yaml:"bin"`
	KillGrace time.Duration `yaml:"killGrace"`
}

// RelayConfig configures stream sessions.
type RelayConfig struct {
	IdleTimeout        time.Duration `yaml:"idleTimeout"`
	ClientStallTimeout time.Duration `yaml:"clientStallTimeout"`
	RestartDelay       time.Duration `yaml:"restartDelay"`
	MaxRestartDelay    time.Duration `yaml:"maxRestartDelay"`
	// VideoAutoRestart makes video sessions respawn like audio sessions.
	VideoAutoRestart bool `yaml:"videoAutoRestart"`
	// ResolvableFeeder pipes yt-dlp into ffmpeg for resolvable channels ("" or "ytdlp").
	ResolvableFeeder string `yaml:"resolvableFeeder"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// ChannelConfig is one catalog entry as written in YAML.
type ChannelConfig struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind"`
	Locator string `yaml:"locator"`
	Name    string `yaml:"name,omitempty"`
	Logo    string `yaml:"logo,omitempty"`
	Group   string `yaml:"group,omitempty"`
}

// DefaultResolvableLogo is shown for resolvable channels without a logo.
const DefaultResolvableLogo = "https://upload.wikimedia.org/wikipedia/commons/b/b8/YouTube_Logo_2017.svg"

// Catalog builds the immutable channel catalog.
func (c AppConfig) Catalog() (*catalog.Catalog, error) {
	channels := make([]catalog.Channel, 0, len(c.Channels))
	for _, ch := range c.Channels {
		logo := ch.Logo
		if logo == "" && catalog.Kind(ch.Kind) == catalog.KindResolvable {
			logo = DefaultResolvableLogo
		}
		channels = append(channels, catalog.Channel{
			ID:     ch.ID,
			Source: catalog.Source{Kind: catalog.Kind(ch.Kind), Locator: ch.Locator},
			Name:   ch.Name,
			Logo:   logo,
			Group:  ch.Group,
		})
	}
	return catalog.New(channels)
}
