// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/livecache"
	"github.com/ManuGH/tvrelay/internal/transcoder"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const liveURL = "https://cdn.example/live1.m3u8"

func testConfig() Config {
	return Config{
		IdleTimeout:        time.Second,
		RestartDelay:       5 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		KillGrace:          100 * time.Millisecond,
		ClientStallTimeout: time.Second,
	}
}

func newTestSupervisor(t *testing.T, cfg Config, sp *fakeSpawner) (*Supervisor, *livecache.Cache) {
	t.Helper()
	cat, err := catalog.New([]catalog.Channel{
		{ID: "stable1", Source: catalog.Source{Kind: catalog.KindStable, Locator: "https://stable.example/1.m3u8"}},
		{ID: "live1", Source: catalog.Source{Kind: catalog.KindResolvable, Locator: "https://video.example/watch?v=1"}},
		{ID: "cold", Source: catalog.Source{Kind: catalog.KindResolvable, Locator: "https://video.example/watch?v=2"}},
	})
	require.NoError(t, err)
	cache := livecache.New()
	cache.Put("live1", livecache.Entry{URL: liveURL, ResolvedAt: time.Now(), Live: true})

	sup := NewSupervisor(cfg, cat, cache, sp)
	sup.SetLogger(zerolog.Nop())
	return sup, cache
}

func audioProfile() transcoder.Profile {
	p := transcoder.Audio()
	p.RestartDelay = 5 * time.Millisecond
	return p
}

func readAll(t *testing.T, s *Session) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var chunks []string
	for {
		c, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, string(c))
	}
}

func waitDone(t *testing.T, s *Session, within time.Duration) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(within):
		t.Fatalf("session %s not terminated within %s (state %s)", s.ID(), within, s.State())
	}
}

func TestStableChannelStreamsUntilEOF(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return emit(10) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	s, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	chunks := readAll(t, s)
	require.Len(t, chunks, 10)
	for i, c := range chunks {
		assert.Equal(t, "g1-"+strconv.Itoa(i)+";", c)
	}

	waitDone(t, s, 2*time.Second)
	assert.Equal(t, StateTerminated, s.State())
	assert.Equal(t, causeEOF, s.EndReason())
	assert.NoError(t, s.Err())
	assert.Equal(t, []State{StateIdle, StateSourcing, StateTranscoding, StateDraining, StateTerminated}, s.states())
	assert.Equal(t, 0, sup.Active())
	assert.Equal(t, 0, sup.Processes())
	assert.True(t, sp.allReaped())
	assert.Equal(t, []string{"https://stable.example/1.m3u8"}, sp.inputs)
	s.Close()
}

func TestOpen_Errors(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return emit(1) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	_, err := sup.Open(context.Background(), "nope", transcoder.Video())
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = sup.Open(context.Background(), "cold", transcoder.Video())
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	assert.Zero(t, sp.spawns.Load())
	assert.Equal(t, 0, sup.Active())
}

func TestOpen_SpawnFailure(t *testing.T) {
	sp := &fakeSpawner{failFrom: 1, behave: func(int) behavior { return emit(1) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	_, err := sup.Open(context.Background(), "live1", transcoder.Video())
	require.ErrorIs(t, err, ErrSpawn)
	assert.Equal(t, 0, sup.Active())
	assert.Equal(t, 0, sup.Processes())
}

func TestOpen_StaleURLIsUsed(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return emit(1) }}
	sup, cache := newTestSupervisor(t, testConfig(), sp)
	_, ok := cache.MarkStale("live1")
	require.True(t, ok)

	s, err := sup.Open(context.Background(), "live1", transcoder.Video())
	require.NoError(t, err)
	assert.Len(t, readAll(t, s), 1)
	s.Close()
	assert.Equal(t, []string{liveURL}, sp.inputs)
}

func TestClientDisconnectTearsDown(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return endless() }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := sup.Open(ctx, "live1", transcoder.Video())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.Next(ctx)
		require.NoError(t, err)
	}

	cancel()
	require.Eventually(t, func() bool {
		return sup.Active() == 0 && sup.Processes() == 0 && sp.live.Load() == 0
	}, 2*time.Second, 5*time.Millisecond)
	waitDone(t, s, time.Second)
	assert.Equal(t, causeClientGone, s.EndReason())
	assert.ErrorIs(t, s.Err(), ErrClientGone)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestAudioRestartsWithoutInterleaving(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return emit(3) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	s, err := sup.Open(context.Background(), "live1", audioProfile())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var chunks []string
	for sp.spawns.Load() < 5 {
		c, err := s.Next(ctx)
		require.NoError(t, err)
		chunks = append(chunks, string(c))
	}
	s.Close()

	assert.GreaterOrEqual(t, s.Restarts(), 3)
	assert.LessOrEqual(t, sp.maxLive.Load(), int32(1))
	assert.Equal(t, 0, sup.Processes())
	assert.True(t, sp.allReaped())

	// every generation is delivered whole and in order before the next one
	lastGen, lastIdx := 0, -1
	for _, c := range chunks {
		gen, idx := parseChunk(t, c)
		if gen != lastGen {
			assert.Greater(t, gen, lastGen, "chunk %q from a superseded generation", c)
			if lastGen != 0 {
				assert.Equal(t, 2, lastIdx, "generation %d was cut short", lastGen)
			}
			assert.Equal(t, 0, idx)
			lastGen = gen
		} else {
			assert.Equal(t, lastIdx+1, idx)
		}
		lastIdx = idx
	}
}

func parseChunk(t *testing.T, c string) (gen, idx int) {
	t.Helper()
	c = strings.TrimSuffix(strings.TrimPrefix(c, "g"), ";")
	parts := strings.SplitN(c, "-", 2)
	require.Len(t, parts, 2)
	gen, err := strconv.Atoi(parts[0])
	require.NoError(t, err)
	idx, err = strconv.Atoi(parts[1])
	require.NoError(t, err)
	return gen, idx
}

func TestTranscoderExitEndsVideoSession(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return crash(2) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	s, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)

	assert.Len(t, readAll(t, s), 2)
	waitDone(t, s, 2*time.Second)
	assert.Equal(t, causeExit, s.EndReason())
	require.ErrorIs(t, s.Err(), ErrTranscoderExit)
	assert.ErrorIs(t, s.Err(), errExit)
	assert.EqualValues(t, 1, sp.spawns.Load())
}

func TestIdleStallEndsVideoSession(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	sp := &fakeSpawner{behave: func(int) behavior { return silent() }}
	sup, _ := newTestSupervisor(t, cfg, sp)

	s, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)

	assert.Empty(t, readAll(t, s))
	waitDone(t, s, 2*time.Second)
	assert.Equal(t, causeStall, s.EndReason())
	assert.ErrorIs(t, s.Err(), ErrTranscoderStall)
	assert.True(t, sp.allReaped())
	assert.EqualValues(t, 1, sp.spawns.Load())
}

func TestIdleStallRestartsAudio(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 50 * time.Millisecond
	sp := &fakeSpawner{behave: func(gen int) behavior {
		if gen == 1 {
			return silent()
		}
		return endless()
	}}
	sup, _ := newTestSupervisor(t, cfg, sp)

	s, err := sup.Open(context.Background(), "live1", audioProfile())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "g2-0;", string(c))
	assert.Equal(t, 1, s.Restarts())

	s.Close()
	assert.Equal(t, causeClosed, s.EndReason())
	assert.LessOrEqual(t, sp.maxLive.Load(), int32(1))
}

func TestClientStallDrainsSession(t *testing.T) {
	cfg := testConfig()
	cfg.ClientStallTimeout = 50 * time.Millisecond
	sp := &fakeSpawner{behave: func(int) behavior { return endless() }}
	sup, _ := newTestSupervisor(t, cfg, sp)

	s, err := sup.Open(context.Background(), "live1", audioProfile())
	require.NoError(t, err)

	waitDone(t, s, 2*time.Second)
	assert.Equal(t, causeClientStall, s.EndReason())
	assert.ErrorIs(t, s.Err(), ErrClientStall)
	assert.Equal(t, 0, s.Restarts(), "a client stall never restarts")
	assert.Equal(t, 0, sup.Processes())
}

func TestRestartSpawnFailureKeepsRetrying(t *testing.T) {
	sp := &fakeSpawner{failFrom: 2, behave: func(int) behavior { return emit(1) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	s, err := sup.Open(context.Background(), "live1", audioProfile())
	require.NoError(t, err)

	c, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "g1-0;", string(c))

	require.Eventually(t, func() bool { return sp.spawns.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	s.Close()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, sup.Processes())
}

func TestCloseIsIdempotent(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return endless() }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	s, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)

	assert.NoError(t, s.Err(), "no end cause while running")
	s.Close()
	s.Close()
	assert.Equal(t, StateTerminated, s.State())
	assert.Equal(t, causeClosed, s.EndReason())
	assert.ErrorIs(t, s.Err(), ErrSessionClosed)
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestShutdownClosesSessions(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return endless() }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	a, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)
	b, err := sup.Open(context.Background(), "live1", audioProfile())
	require.NoError(t, err)
	assert.Equal(t, 2, sup.Active())
	assert.LessOrEqual(t, sup.Processes(), sup.Active())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sup.Shutdown(ctx))

	waitDone(t, a, time.Second)
	waitDone(t, b, time.Second)
	assert.Equal(t, 0, sup.Active())
	assert.Equal(t, 0, sup.Processes())

	_, err = sup.Open(context.Background(), "stable1", transcoder.Video())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestCopyWritesAndFlushes(t *testing.T) {
	sp := &fakeSpawner{behave: func(int) behavior { return emit(3) }}
	sup, _ := newTestSupervisor(t, testConfig(), sp)

	s, err := sup.Open(context.Background(), "stable1", transcoder.Video())
	require.NoError(t, err)
	defer s.Close()

	rec := httptest.NewRecorder()
	n, err := Copy(context.Background(), rec, s, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, len("g1-0;g1-1;g1-2;"), n)
	assert.Equal(t, "g1-0;g1-1;g1-2;", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(time.Second, 30*time.Second, 0))
	assert.Equal(t, 4*time.Second, backoffDelay(time.Second, 30*time.Second, 2))
	assert.Equal(t, 30*time.Second, backoffDelay(time.Second, 30*time.Second, 10))
}

func TestCheckTransition(t *testing.T) {
	assert.NoError(t, checkTransition(StateTranscoding, StateRestarting))
	assert.NoError(t, checkTransition(StateRestarting, StateSourcing))
	assert.Error(t, checkTransition(StateTerminated, StateSourcing))
	assert.Error(t, checkTransition(StateIdle, StateTranscoding))
}
