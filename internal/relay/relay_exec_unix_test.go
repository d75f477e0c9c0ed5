// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package relay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/livecache"
	"github.com/ManuGH/tvrelay/internal/transcoder"
)

// newExecSupervisor runs a shell script in place of ffmpeg. The script writes
// "term" to the returned marker file when it receives SIGTERM.
func newExecSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	marker := filepath.Join(dir, "terminated")
	script := filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\n" +
		"trap 'echo term > \"" + marker + "\"; exit 0' TERM\n" +
		"while :; do echo chunk; sleep 0.05; done\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755)) // #nosec G306

	cat, err := catalog.New([]catalog.Channel{
		{ID: "stable1", Source: catalog.Source{Kind: catalog.KindStable, Locator: "https://stable.example/1.m3u8"}},
	})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.KillGrace = 2 * time.Second
	spawner := transcoder.NewFFmpeg(transcoder.Config{
		FFmpegBin: script,
		KillGrace: cfg.KillGrace,
		Logger:    zerolog.Nop(),
	})
	sup := NewSupervisor(cfg, cat, livecache.New(), spawner)
	sup.SetLogger(zerolog.Nop())
	return sup, marker
}

func requireTerminatedGracefully(t *testing.T, marker string) {
	t.Helper()
	data, err := os.ReadFile(marker)
	require.NoError(t, err, "transcoder was killed without SIGTERM")
	assert.Equal(t, "term\n", string(data))
}

func TestDrain_CloseSendsSIGTERM(t *testing.T) {
	sup, marker := newExecSupervisor(t)

	s, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)

	s.Close()
	assert.Equal(t, causeClosed, s.EndReason())
	assert.Equal(t, 0, sup.Processes())
	requireTerminatedGracefully(t, marker)
}

func TestDrain_ClientGoneSendsSIGTERM(t *testing.T) {
	sup, marker := newExecSupervisor(t)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := sup.Open(ctx, "stable1", transcoder.Video())
	require.NoError(t, err)
	_, err = s.Next(ctx)
	require.NoError(t, err)

	cancel()
	waitDone(t, s, 3*time.Second)
	assert.Equal(t, causeClientGone, s.EndReason())
	assert.ErrorIs(t, s.Err(), ErrClientGone)
	assert.Equal(t, 0, sup.Processes())
	requireTerminatedGracefully(t, marker)
}
