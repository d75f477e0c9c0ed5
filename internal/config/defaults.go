// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/channels.yaml
var defaultChannelsYAML []byte

// DefaultChannels returns the built-in catalog.
func DefaultChannels() ([]ChannelConfig, error) {
	var channels []ChannelConfig
	dec := yaml.NewDecoder(bytes.NewReader(defaultChannelsYAML))
	dec.KnownFields(true)
	if err := dec.Decode(&channels); err != nil {
		return nil, fmt.Errorf("decode default channels: %w", err)
	}
	return channels, nil
}

// Defaults returns the configuration used when neither file nor environment set a value.
func Defaults() (AppConfig, error) {
	channels, err := DefaultChannels()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		LogLevel: "info",
		DataDir:  "/var/lib/tvrelay",
		Server: ServerConfig{
			Listen:            ":5000",
			MetricsListen:     "",
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			StreamRateLimit:   30,
		},
		Resolver: ResolverConfig{
			Bin:         "yt-dlp",
			Format:      "best[height<=360]",
			CookiesFile: "/mnt/data/cookies.txt",
			Timeout:     45 * time.Second,
			RateLimit:   2,
			Burst:       4,
		},
		Refresh: RefreshConfig{
			Interval:     60 * time.Second,
			Workers:      4,
			MaxBackoff:   16 * time.Minute,
			WatchCookies: true,
		},
		FFmpeg: FFmpegConfig{
			Bin:       "ffmpeg",
			KillGrace: 2 * time.Second,
		},
		Relay: RelayConfig{
			IdleTimeout:        30 * time.Second,
			ClientStallTimeout: 15 * time.Second,
			RestartDelay:       time.Second,
			MaxRestartDelay:    30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Channels: channels,
	}, nil
}
