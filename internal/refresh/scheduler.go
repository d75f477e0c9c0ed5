// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package refresh keeps the live URL cache fresh by periodically resolving every
// resolvable channel of the catalog.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/tvrelay/internal/catalog"
	"github.com/ManuGH/tvrelay/internal/livecache"
	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/metrics"
	"github.com/ManuGH/tvrelay/internal/resolver"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownChannel = errors.New("channel is not resolvable")
	ErrLoopPanic      = errors.New("refresh loop panicked")
	ErrResolverPanic  = errors.New("resolver panicked")
)

// Config tunes the scheduler.
type Config struct {
	// Interval is the base refresh period. It must be shorter than the upstream URL expiry.
	Interval time.Duration
	// ResolveTimeout bounds each resolver call.
	ResolveTimeout time.Duration
	// Workers caps concurrent resolver calls across all channels.
	Workers int
	// MaxBackoff caps the per-channel period after consecutive failures.
	MaxBackoff time.Duration
	// RestartDelay is the pause before a crashed loop is restarted.
	RestartDelay time.Duration
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 45 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxBackoff < c.Interval {
		c.MaxBackoff = 16 * c.Interval
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = time.Second
	}
}

// ChannelState is the scheduler's bookkeeping for one channel.
type ChannelState struct {
	Failures    int
	Period      time.Duration
	NextAttempt time.Time
	LastAttempt time.Time
	LastError   string
}

type channelState struct {
	ChannelState
	bo *backoff.ExponentialBackOff
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// Scheduler refreshes resolvable channels. It is the only writer of the cache.
type Scheduler struct {
	cfg      Config
	catalog  *catalog.Catalog
	cache    *livecache.Cache
	resolver resolver.Resolver
	logger   zerolog.Logger
	now      func() time.Time

	work   []string
	sem    *semaphore.Weighted
	flight singleflight.Group
	kick   chan struct{}

	mu        sync.Mutex
	state     map[string]*channelState
	lastCycle time.Time
	listeners []func(context.Context)
}

// New creates a scheduler over the resolvable channels of cat.
func New(cfg Config, cat *catalog.Catalog, cache *livecache.Cache, r resolver.Resolver, opts ...Option) *Scheduler {
	cfg.setDefaults()
	s := &Scheduler{
		cfg:      cfg,
		catalog:  cat,
		cache:    cache,
		resolver: r,
		logger:   xglog.WithComponent("refresh"),
		now:      time.Now,
		work:     cat.Resolvable(),
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		kick:     make(chan struct{}, 1),
		state:    make(map[string]*channelState),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, id := range s.work {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = cfg.Interval
		bo.MaxInterval = cfg.MaxBackoff
		bo.Multiplier = 2
		bo.RandomizationFactor = 0
		s.state[id] = &channelState{ChannelState: ChannelState{Period: cfg.Interval}, bo: bo}
	}
	return s
}

// OnCycle registers fn to run after every completed refresh cycle.
func (s *Scheduler) OnCycle(fn func(context.Context)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Kick requests an immediate forced cycle from the running loop. Non-blocking.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// LastCycle returns the completion time of the most recent cycle.
func (s *Scheduler) LastCycle() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycle
}

// Interval returns the configured base period.
func (s *Scheduler) Interval() time.Duration {
	return s.cfg.Interval
}

// Status returns a copy of the per-channel bookkeeping.
func (s *Scheduler) Status() map[string]ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ChannelState, len(s.state))
	for id, st := range s.state {
		out[id] = st.ChannelState
	}
	return out
}

// Run drives refresh cycles until ctx is cancelled. A panic in the loop is
// recovered and the loop restarted after RestartDelay; it never stops silently.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Str(xglog.FieldEvent, "refresh.start").
		Int("channels", len(s.work)).
		Dur("interval", s.cfg.Interval).
		Int("workers", s.cfg.Workers).
		Msg("refresh scheduler started")

	for {
		err := s.loop(ctx)
		if ctx.Err() != nil {
			s.logger.Info().Str(xglog.FieldEvent, "refresh.stop").Msg("refresh scheduler stopped")
			return nil
		}
		metrics.IncSchedulerRestart()
		s.logger.Error().
			Err(err).
			Str(xglog.FieldEvent, "refresh.loop_restart").
			Dur("delay", s.cfg.RestartDelay).
			Msg("refresh loop crashed, restarting")

		t := time.NewTimer(s.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *Scheduler) loop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrLoopPanic, r, debug.Stack())
		}
	}()

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-s.kick:
			s.RefreshAll(ctx)
		}
	}
}

// RunCycle performs one refresh cycle over channels whose period has elapsed.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.cycle(ctx, false)
}

// RefreshAll performs one cycle ignoring per-channel backoff.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	s.cycle(ctx, true)
}

func (s *Scheduler) cycle(ctx context.Context, force bool) {
	start := time.Now()
	due := s.due(force)

	var wg sync.WaitGroup
	for _, id := range due {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = s.Trigger(ctx, id)
		}(id)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.lastCycle = s.now()
	listeners := append([]func(context.Context){}, s.listeners...)
	s.mu.Unlock()

	live, stale := s.cache.Counts()
	metrics.SetCacheCounts(live, stale)
	metrics.ObserveRefreshCycle(time.Since(start))
	s.logger.Info().
		Str(xglog.FieldEvent, "refresh.cycle_done").
		Int("attempted", len(due)).
		Int("live", live).
		Int("stale", stale).
		Dur("duration", time.Since(start)).
		Msg("refresh cycle complete")

	for _, fn := range listeners {
		fn(ctx)
	}
}

func (s *Scheduler) due(force bool) []string {
	now := s.now()
	// tolerate ticker jitter so a channel on the base period is not skipped
	slack := s.cfg.Interval / 4

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.work))
	for _, id := range s.work {
		st := s.state[id]
		if force || st.NextAttempt.IsZero() || !now.Before(st.NextAttempt.Add(-slack)) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Trigger resolves one channel now. Concurrent triggers for the same channel join
// the call already in flight; the resolver is never invoked twice at once for one channel.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	if _, ok := s.state[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	_, err, _ := s.flight.Do(id, func() (any, error) {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
		return nil, s.refreshOne(ctx, id)
	})
	return err
}

func (s *Scheduler) refreshOne(ctx context.Context, id string) error {
	locator := s.locator(id)
	logger := s.logger.With().Str(xglog.FieldChannel, id).Logger()

	start := time.Now()
	direct, err := s.resolveSafe(ctx, locator)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		// shutdown in progress; leave the cache untouched
		return ctx.Err()
	}

	now := s.now()
	if err == nil {
		s.cache.Put(id, livecache.Entry{URL: direct, ResolvedAt: now, Live: true})
		period := s.recordSuccess(id, now)
		metrics.ObserveResolution(true, "", elapsed)
		metrics.SetChannelBackoff(id, period)
		logger.Info().
			Str(xglog.FieldEvent, "refresh.resolved").
			Str("source_host", hostOf(direct)).
			Dur("duration", elapsed).
			Msg("channel resolved")
		return nil
	}

	kind := resolver.KindOf(err)
	_, hadEntry := s.cache.MarkStale(id)
	failures, period := s.recordFailure(id, now, err)
	metrics.ObserveResolution(false, kind, elapsed)
	metrics.SetChannelBackoff(id, period)

	evt := logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "refresh.failed").
		Str("kind", kind).
		Int("failures", failures).
		Dur(xglog.FieldBackoff, period).
		Bool("stale_url_kept", hadEntry).
		Dur("duration", elapsed)
	var re *resolver.Error
	if errors.As(err, &re) {
		evt = evt.Int(xglog.FieldExitCode, re.ExitCode).Str("stderr", re.Stderr)
	}
	evt.Msg("channel resolution failed")
	return err
}

// resolveSafe converts a resolver panic into an error so one channel cannot take
// down the worker goroutine.
func (s *Scheduler) resolveSafe(ctx context.Context, locator string) (direct string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrResolverPanic, r)
		}
	}()
	return s.resolver.Resolve(ctx, locator, s.cfg.ResolveTimeout)
}

func (s *Scheduler) locator(id string) string {
	ch, _ := s.catalog.Lookup(id)
	return ch.Source.Locator
}

func (s *Scheduler) recordSuccess(id string, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state[id]
	st.bo.Reset()
	st.Failures = 0
	st.Period = s.cfg.Interval
	st.LastAttempt = now
	st.LastError = ""
	st.NextAttempt = now.Add(st.Period)
	return st.Period
}

func (s *Scheduler) recordFailure(id string, now time.Time, err error) (int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state[id]
	st.Failures++
	st.Period = st.bo.NextBackOff()
	st.LastAttempt = now
	st.LastError = err.Error()
	st.NextAttempt = now.Add(st.Period)
	return st.Failures, st.Period
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
