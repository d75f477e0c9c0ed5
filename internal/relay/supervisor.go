// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package relay runs one transcoder per client request and forwards its output.
//
// A session moves through idle, sourcing, transcoding, restarting, draining and
// terminated. It owns at most one live process at a time; a restart reaps the old
// process before the next one is spawned, so output of two generations never mixes.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/livecache"
	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/metrics"
	"github.com/ManuGH/tvrelay/internal/telemetry"
	"github.com/ManuGH/tvrelay/internal/transcoder"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Config tunes sessions.
type Config struct {
	// ChunkSize overrides the profile's read size.
	ChunkSize int
	// IdleTimeout is the longest the transcoder may stay silent.
	IdleTimeout time.Duration
	// RestartDelay is the pause between generations unless the profile sets one.
	RestartDelay time.Duration
	// MaxRestartDelay caps the pause after repeated spawn or sourcing failures.
	MaxRestartDelay time.Duration
	// KillGrace is the SIGTERM to SIGKILL escalation delay.
	KillGrace time.Duration
	// ClientStallTimeout is the longest a chunk may wait for the consumer.
	ClientStallTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = time.Second
	}
	if c.MaxRestartDelay < c.RestartDelay {
		c.MaxRestartDelay = 30 * time.Second
	}
	if c.KillGrace <= 0 {
		c.KillGrace = 2 * time.Second
	}
	if c.ClientStallTimeout <= 0 {
		c.ClientStallTimeout = 15 * time.Second
	}
}

// Supervisor opens sessions and tracks the live ones.
type Supervisor struct {
	cfg     Config
	catalog *catalog.Catalog
	cache   *livecache.Cache
	spawner transcoder.Spawner
	logger  zerolog.Logger

	procs atomic.Int64

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewSupervisor creates a supervisor. The cache is only read.
func NewSupervisor(cfg Config, cat *catalog.Catalog, cache *livecache.Cache, spawner transcoder.Spawner) *Supervisor {
	cfg.setDefaults()
	return &Supervisor{
		cfg:      cfg,
		catalog:  cat,
		cache:    cache,
		spawner:  spawner,
		logger:   xglog.WithComponent("relay"),
		sessions: make(map[string]*Session),
	}
}

// SetLogger overrides the component logger.
func (s *Supervisor) SetLogger(l zerolog.Logger) {
	s.logger = l
}

// Active returns the number of live sessions.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Processes returns the number of spawned, not yet reaped transcoder processes.
func (s *Supervisor) Processes() int {
	return int(s.procs.Load())
}

// Source returns the upstream URL for a channel: the fixed locator of a stable
// channel or the cached URL of a resolvable one. A stale cached URL is still used.
func (s *Supervisor) Source(channelID string) (string, error) {
	ch, ok := s.catalog.Lookup(channelID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	if ch.Source.Kind == catalog.KindStable {
		return ch.Source.Locator, nil
	}
	e, ok := s.cache.Get(channelID)
	if !ok || e.URL == "" {
		return "", fmt.Errorf("%w: %s", ErrSourceUnavailable, channelID)
	}
	return e.URL, nil
}

// Open starts a session for channelID. The first process is spawned before Open
// returns, so a spawn failure is reported here. The session ends when ctx is done,
// when Close is called or when the stream ends.
func (s *Supervisor) Open(ctx context.Context, channelID string, p transcoder.Profile) (*Session, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	sess := s.newSession(ctx, channelID, p)
	sess.transition(StateSourcing)

	input, err := s.Source(channelID)
	if err == nil {
		var proc transcoder.Process
		if proc, err = s.spawn(sess.ctx, p, input); err == nil {
			if !s.register(sess) {
				s.reap(proc, s.cfg.KillGrace)
				err = ErrShuttingDown
			} else {
				metrics.SessionStarted(p.Name)
				stop := context.AfterFunc(ctx, func() { sess.cancel(ErrClientGone) })
				sess.logger.Info().
					Str(xglog.FieldEvent, "relay.open").
					Int(xglog.FieldPID, proc.PID()).
					Msg("relay session opened")
				go sess.run(proc, stop)
				return sess, nil
			}
		}
	}

	metrics.IncOpenFailure(openFailureReason(err))
	sess.abort(err)
	return nil, err
}

func openFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownChannel):
		return "unknown_channel"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrShuttingDown):
		return "shutdown"
	default:
		return "other"
	}
}

func (s *Supervisor) newSession(ctx context.Context, channelID string, p transcoder.Profile) *Session {
	id := uuid.NewString()
	sctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	sctx = xglog.ContextWithSessionID(sctx, id)
	ch, _ := s.catalog.Lookup(channelID)
	sctx, span := telemetry.Tracer(telemetry.TracerRelay).Start(sctx, "relay.session",
		trace.WithAttributes(telemetry.ChannelAttributes(channelID, string(ch.Source.Kind))...))

	chunk := s.cfg.ChunkSize
	if chunk <= 0 {
		chunk = p.ChunkSize
	}
	if chunk <= 0 {
		chunk = 4 << 10
	}
	delay := p.RestartDelay
	if delay <= 0 {
		delay = s.cfg.RestartDelay
	}

	return &Session{
		id:           id,
		channel:      channelID,
		profile:      p,
		sup:          s,
		chunkSize:    chunk,
		restartDelay: delay,
		ctx:          sctx,
		cancel:       cancel,
		span:         span,
		out:          make(chan []byte),
		terminated:   make(chan struct{}),
		state:        StateIdle,
		history:      []State{StateIdle},
		logger: xglog.WithContext(ctx, s.logger).With().
			Str(xglog.FieldSessionID, id).
			Str(xglog.FieldChannel, channelID).
			Str(xglog.FieldProfile, p.Name).
			Logger(),
	}
}

func (s *Supervisor) register(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Supervisor) unregister(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

// spawn starts a process for a session. Session cancellation must not reach
// the spawner: teardown goes through reap so the group gets SIGTERM and
// KillGrace before SIGKILL. ctx still carries the span and log values.
func (s *Supervisor) spawn(ctx context.Context, p transcoder.Profile, input string) (transcoder.Process, error) {
	proc, err := s.spawner.Spawn(context.WithoutCancel(ctx), p, input)
	if err != nil {
		if !errors.Is(err, ErrSpawn) {
			err = fmt.Errorf("%w: %w", ErrSpawn, err)
		}
		return nil, err
	}
	s.procs.Add(1)
	return proc, nil
}

// reap terminates proc and blocks until it is gone.
func (s *Supervisor) reap(proc transcoder.Process, grace time.Duration) error {
	err := proc.Terminate(grace)
	s.procs.Add(-1)
	return err
}

// Shutdown closes every live session and rejects new ones.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	live := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	if len(live) > 0 {
		s.logger.Info().
			Str(xglog.FieldEvent, "relay.shutdown").
			Int("sessions", len(live)).
			Msg("draining relay sessions")
	}

	var wg sync.WaitGroup
	for _, sess := range live {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Close()
		}(sess)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
