// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/tvrelay/internal/config"
	"github.com/ManuGH/tvrelay/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkListenAddr(logger, cfg.Server.Listen); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if _, err := exec.LookPath(cfg.FFmpeg.Bin); err != nil {
		return fmt.Errorf("ffmpeg binary not found (%s): %w", cfg.FFmpeg.Bin, err)
	}
	if _, err := exec.LookPath(cfg.Resolver.Bin); err != nil {
		// stable channels still work without the resolver
		logger.Warn().Err(err).Str("bin", cfg.Resolver.Bin).Msg("resolver binary not found; resolvable channels stay offline")
	}
	if cfg.Resolver.CookiesFile != "" {
		if _, err := os.Stat(cfg.Resolver.CookiesFile); err != nil {
			logger.Info().Str(log.FieldPath, cfg.Resolver.CookiesFile).Msg("no resolver credentials present; resolving anonymously")
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	// #nosec G301 -- the exported playlist is meant to be readable
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %w)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("data directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("listen address is valid")
	return nil
}
