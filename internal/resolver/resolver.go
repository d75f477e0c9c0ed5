// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resolver turns an opaque channel locator into a direct playable URL by
// invoking an external resolution tool once, under a hard wall-clock timeout.
// Retry policy belongs to the caller.
package resolver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/procgroup"
	"github.com/ManuGH/tvrelay/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Resolver resolves one locator into a direct URL.
type Resolver interface {
	Resolve(ctx context.Context, locator string, timeout time.Duration) (string, error)
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, locator string, timeout time.Duration) (string, error)

// Resolve calls f.
func (f Func) Resolve(ctx context.Context, locator string, timeout time.Duration) (string, error) {
	return f(ctx, locator, timeout)
}

const (
	defaultFormat = "best[height<=360]"
	stderrTail    = 4 << 10
	waitDelay     = 2 * time.Second
)

// Config configures the yt-dlp backed resolver.
type Config struct {
	Bin         string // yt-dlp binary (name on PATH or absolute path)
	Format      string // -f selector, defaults to "best[height<=360]"
	CookiesFile string // optional credential bundle, passed only if the file exists
	ExtraArgs   []string

	// RateLimit paces tool invocations across all channels (per second, 0 = unlimited).
	RateLimit float64
	Burst     int

	Logger zerolog.Logger
}

// YTDLP resolves locators with yt-dlp -g.
type YTDLP struct {
	cfg     Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewYTDLP creates a yt-dlp resolver.
func NewYTDLP(cfg Config) *YTDLP {
	if cfg.Bin == "" {
		cfg.Bin = "yt-dlp"
	}
	if cfg.Format == "" {
		cfg.Format = defaultFormat
	}
	y := &YTDLP{cfg: cfg, logger: cfg.Logger}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		y.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return y
}

// Args returns the argument vector for one locator.
func (y *YTDLP) Args(locator string) []string {
	args := make([]string, 0, 6+len(y.cfg.ExtraArgs))
	if y.cfg.CookiesFile != "" {
		if _, err := os.Stat(y.cfg.CookiesFile); err == nil {
			args = append(args, "--cookies", y.cfg.CookiesFile)
		}
	}
	args = append(args, y.cfg.ExtraArgs...)
	args = append(args, "-f", y.cfg.Format, "-g", "--", locator)
	return args
}

// Resolve runs the tool once. The timeout is enforced independently of any
// timeout flags of the tool itself; on expiry the tool's whole process group is killed.
func (y *YTDLP) Resolve(ctx context.Context, locator string, timeout time.Duration) (string, error) {
	ctx, span := telemetry.Tracer(telemetry.TracerResolver).Start(ctx, "resolver.resolve")
	defer span.End()

	if y.limiter != nil {
		if err := y.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("resolver rate limit wait: %w", err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- binary is operator configured and the locator is passed after "--"
	cmd := exec.CommandContext(runCtx, y.cfg.Bin, y.Args(locator)...)
	procgroup.Set(cmd)
	cmd.Cancel = procgroup.CancelGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	y.logger.Debug().
		Str(xglog.FieldEvent, "resolver.exec").
		Str(xglog.FieldLocator, locator).
		Strs("args", cmd.Args[1:]).
		Msg("invoking resolver")

	err := cmd.Run()
	if err != nil {
		rerr := classify(ctx, runCtx, locator, err, stderr.String())
		if rerr == nil {
			// parent cancelled (shutdown), not a resolution failure
			span.SetStatus(codes.Error, "cancelled")
			return "", fmt.Errorf("resolve %s: %w", locator, ctx.Err())
		}
		span.SetAttributes(
			attribute.String(telemetry.ResolverErrorKindKey, string(rerr.Kind)),
			attribute.Int(telemetry.ResolverExitCodeKey, rerr.ExitCode),
		)
		span.SetStatus(codes.Error, string(rerr.Kind))
		return "", rerr
	}

	direct := firstURL(stdout.Bytes())
	if direct == "" {
		span.SetStatus(codes.Error, string(KindNoUsableFormat))
		return "", &Error{Kind: KindNoUsableFormat, Locator: locator, ExitCode: 0, Stderr: stderr.String()}
	}
	span.SetStatus(codes.Ok, "")
	return direct, nil
}

func classify(parent, run context.Context, locator string, err error, stderr string) *Error {
	if parent.Err() != nil {
		return nil
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Locator: locator, ExitCode: -1, Stderr: stderr, Err: context.DeadlineExceeded}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Error{Kind: KindToolFailure, Locator: locator, ExitCode: exitErr.ExitCode(), Stderr: stderr}
	}
	// Start failure: missing binary, permissions.
	return &Error{Kind: KindToolFailure, Locator: locator, ExitCode: -1, Stderr: stderr, Err: err}
}

// firstURL returns the first non-empty stdout line if it is an absolute http(s) URL.
func firstURL(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ""
		}
		return line
	}
	return ""
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
