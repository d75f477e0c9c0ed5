// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/metrics"
	"github.com/ManuGH/tvrelay/internal/telemetry"
	"github.com/ManuGH/tvrelay/internal/transcoder"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// End causes, also used as metric labels.
const (
	causeEOF         = "eof"
	causeExit        = "exit"
	causeStall       = "stall"
	causeClientStall = "client_stall"
	causeClosed      = "closed"
	causeClientGone  = "client_gone"
	causeSpawn       = "spawn_failure"
	causeSource      = "source_unavailable"
)

// Session is one client's stream. Next and Close may be called from different
// goroutines; Next must not be called concurrently with itself.
type Session struct {
	id           string
	channel      string
	profile      transcoder.Profile
	sup          *Supervisor
	chunkSize    int
	restartDelay time.Duration
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	span   trace.Span

	out        chan []byte
	terminated chan struct{}

	restarts atomic.Int32
	bytes    atomic.Int64

	// lastExit is the exit error of the final generation, owned by run.
	lastExit error

	mu      sync.Mutex
	state   State
	history []State
	reason  string
	err     error
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Channel returns the channel id.
func (s *Session) Channel() string { return s.channel }

// Profile returns the transcoding profile.
func (s *Session) Profile() transcoder.Profile { return s.profile }

// Restarts returns how many times the transcoder was restarted.
func (s *Session) Restarts() int { return int(s.restarts.Load()) }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EndReason returns why the session ended, or "" while it runs.
func (s *Session) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Err returns why the session ended: nil while it runs or after a clean end
// of stream. Otherwise it matches one of ErrTranscoderExit, ErrTranscoderStall,
// ErrClientStall, ErrClientGone, ErrSessionClosed or the open error.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session is terminated and its process reaped.
func (s *Session) Done() <-chan struct{} { return s.terminated }

// Next returns the next chunk, or io.EOF once the stream ended.
func (s *Session) Next(ctx context.Context) ([]byte, error) {
	select {
	case chunk, ok := <-s.out:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drains the session and blocks until it is terminated. Idempotent.
func (s *Session) Close() {
	s.cancel(ErrSessionClosed)
	<-s.terminated
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	if err := checkTransition(from, to); err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("relay state machine violation")
		return
	}
	s.state = to
	s.history = append(s.history, to)
	s.mu.Unlock()

	s.logger.Debug().
		Str(xglog.FieldEvent, "relay.state").
		Str(xglog.FieldOldState, string(from)).
		Str(xglog.FieldNewState, string(to)).
		Msg("relay state changed")
}

func (s *Session) states() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.history...)
}

// abort ends a session that never got a process.
func (s *Session) abort(err error) {
	s.cancel(err)
	s.transition(StateDraining)
	s.mu.Lock()
	s.reason = openFailureReason(err)
	s.err = err
	s.mu.Unlock()
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
	s.span.End()
	s.transition(StateTerminated)
	close(s.out)
	close(s.terminated)
	s.logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "relay.open_failed").
		Msg("relay session could not be opened")
}

func (s *Session) run(proc transcoder.Process, stopWatch func() bool) {
	defer stopWatch()
	reason := s.loop(proc)

	s.sup.unregister(s)
	metrics.SessionEnded(s.profile.Name, reason)
	s.span.SetAttributes(telemetry.RelayAttributes(s.id, s.profile.Name, s.Restarts(), s.bytes.Load())...)
	s.span.End()

	endErr := endError(reason, s.lastExit)
	s.mu.Lock()
	s.reason = reason
	s.err = endErr
	s.mu.Unlock()
	s.transition(StateTerminated)
	s.logger.Info().
		AnErr("cause", endErr).
		Str(xglog.FieldEvent, "relay.end").
		Str("reason", reason).
		Int("restarts", s.Restarts()).
		Int64("bytes", s.bytes.Load()).
		Msg("relay session ended")

	s.cancel(nil)
	close(s.out)
	close(s.terminated)
}

// loop runs generations until the stream ends. It returns the end cause and
// leaves the session in Draining with no live process.
func (s *Session) loop(proc transcoder.Process) string {
	failures := 0
	for {
		s.transition(StateTranscoding)
		gen := startGeneration(proc, s.chunkSize)
		cause := s.pump(gen)

		restart := s.profile.AutoRestart && s.ctx.Err() == nil && cause != causeClientStall
		if restart {
			s.transition(StateRestarting)
		} else {
			s.transition(StateDraining)
		}
		exitErr := gen.stop(s.sup, s.sup.cfg.KillGrace)
		if cause == causeEOF && exitErr != nil {
			cause = causeExit
		}
		if !restart {
			s.lastExit = exitErr
			if s.ctx.Err() != nil {
				return s.cancelCause()
			}
			return cause
		}

		// restarting: the old process is gone, source and spawn again
		for {
			s.restarts.Add(1)
			metrics.IncRelayRestart(s.profile.Name, cause)
			delay := backoffDelay(s.restartDelay, s.sup.cfg.MaxRestartDelay, failures)
			s.logger.Warn().
				Err(exitErr).
				Str(xglog.FieldEvent, "relay.restart").
				Str("cause", cause).
				Int(xglog.FieldAttempt, s.Restarts()).
				Dur(xglog.FieldBackoff, delay).
				Msg("restarting transcoder")

			if !s.sleep(delay) {
				s.transition(StateDraining)
				return s.cancelCause()
			}
			s.transition(StateSourcing)
			next, err := s.respawn()
			if err == nil {
				proc = next
				failures = 0
				break
			}
			if s.ctx.Err() != nil {
				s.transition(StateDraining)
				return s.cancelCause()
			}
			failures++
			exitErr = err
			cause = causeSpawn
			if errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrUnknownChannel) {
				cause = causeSource
			}
			s.transition(StateRestarting)
		}
	}
}

func (s *Session) respawn() (transcoder.Process, error) {
	input, err := s.sup.Source(s.channel)
	if err != nil {
		return nil, err
	}
	return s.sup.spawn(s.ctx, s.profile, input)
}

// pump forwards chunks of one generation until it ends, stalls or the session is cancelled.
func (s *Session) pump(gen *generation) string {
	idleTimeout := s.sup.cfg.IdleTimeout
	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return s.cancelCause()
		case <-idle.C:
			s.logger.Warn().
				Err(ErrTranscoderStall).
				Str(xglog.FieldEvent, "relay.stall").
				Dur("idle_timeout", idleTimeout).
				Msg("transcoder produced no output")
			return causeStall
		case chunk, ok := <-gen.chunks:
			if !ok {
				return causeEOF
			}
			if cause := s.deliver(chunk); cause != "" {
				return cause
			}
			s.bytes.Add(int64(len(chunk)))
			metrics.AddRelayBytes(s.profile.Name, len(chunk))
			idle.Reset(idleTimeout)
		}
	}
}

func (s *Session) deliver(chunk []byte) string {
	stall := time.NewTimer(s.sup.cfg.ClientStallTimeout)
	defer stall.Stop()
	select {
	case s.out <- chunk:
		return ""
	case <-stall.C:
		s.logger.Warn().
			Err(ErrClientStall).
			Str(xglog.FieldEvent, "relay.client_stall").
			Msg("client stopped reading, draining")
		return causeClientStall
	case <-s.ctx.Done():
		return s.cancelCause()
	}
}

func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) cancelCause() string {
	switch context.Cause(s.ctx) {
	case ErrClientGone:
		return causeClientGone
	default:
		return causeClosed
	}
}

// endError maps an end cause onto the error reported by Session.Err.
func endError(cause string, exitErr error) error {
	switch cause {
	case causeEOF:
		return nil
	case causeExit:
		return fmt.Errorf("%w: %w", ErrTranscoderExit, exitErr)
	case causeStall:
		return ErrTranscoderStall
	case causeClientStall:
		return ErrClientStall
	case causeClientGone:
		return ErrClientGone
	default:
		return ErrSessionClosed
	}
}

func backoffDelay(base, maxDelay time.Duration, failures int) time.Duration {
	d := base
	for i := 0; i < failures && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// generation is one transcoder process and the goroutine reading its stdout.
type generation struct {
	proc   transcoder.Process
	chunks chan []byte
	quit   chan struct{}
	done   chan struct{}
}

func startGeneration(proc transcoder.Process, size int) *generation {
	g := &generation{
		proc:   proc,
		chunks: make(chan []byte),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go g.read(size)
	return g
}

func (g *generation) read(size int) {
	defer close(g.done)
	defer close(g.chunks)
	r := g.proc.Stdout()
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case g.chunks <- buf[:n]:
			case <-g.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// stop reaps the process and waits for the reader, discarding unread output.
func (g *generation) stop(sup *Supervisor, grace time.Duration) error {
	err := sup.reap(g.proc, grace)
	close(g.quit)
	<-g.done
	return err
}
