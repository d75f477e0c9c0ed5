// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcoder spawns ffmpeg processes that turn an upstream URL into a
// byte stream on stdout.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/ManuGH/tvrelay/internal/metrics"
	"github.com/ManuGH/tvrelay/internal/procgroup"
	"github.com/rs/zerolog"
)

// Process is one running transcoder.
type Process interface {
	// Stdout is the media output. It reaches EOF once the process and its group exit.
	Stdout() io.Reader
	// Wait blocks until the process is reaped and returns its exit error.
	Wait() error
	// Terminate sends SIGTERM to the process group, escalates to SIGKILL after
	// grace and returns once the process is reaped. Idempotent. It must be called
	// once per process, also after a natural exit, to release the output pipe.
	Terminate(grace time.Duration) error
	PID() int
}

// Spawner starts transcoder processes.
type Spawner interface {
	Spawn(ctx context.Context, p Profile, input string) (Process, error)
}

// Config configures the ffmpeg spawner.
type Config struct {
	FFmpegBin   string
	YTDLPBin    string
	CookiesFile string
	// KillGrace bounds Terminate when ctx is cancelled and the process is killed by exec.
	KillGrace time.Duration
	Logger    zerolog.Logger
}

// FFmpeg spawns ffmpeg, optionally fed by yt-dlp.
type FFmpeg struct {
	cfg    Config
	logger zerolog.Logger
}

// NewFFmpeg creates a spawner.
func NewFFmpeg(cfg Config) *FFmpeg {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.YTDLPBin == "" {
		cfg.YTDLPBin = "yt-dlp"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 2 * time.Second
	}
	return &FFmpeg{cfg: cfg, logger: cfg.Logger}
}

// FeederArgs returns the yt-dlp argument vector streaming url to stdout.
func (f *FFmpeg) FeederArgs(url string) []string {
	var args []string
	if f.cfg.CookiesFile != "" {
		if _, err := os.Stat(f.cfg.CookiesFile); err == nil {
			args = append(args, "--cookies", f.cfg.CookiesFile)
		}
	}
	return append(args, "--quiet", "--no-part", "-o", "-", "--", url)
}

// Spawn starts the pipeline for p reading from input. The returned process is
// killed as a group if ctx is cancelled.
func (f *FFmpeg) Spawn(ctx context.Context, p Profile, input string) (Process, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, ErrInvalidInput)
	}
	logger := xglog.WithContext(ctx, f.logger).With().Str(xglog.FieldProfile, p.Name).Logger()

	proc := &process{
		ring:   newLineRing(32),
		done:   make(chan struct{}),
		logger: logger,
	}

	// stdout is a plain pipe owned by us so that Wait never races the reader.
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %w", ErrSpawn, err)
	}

	ffInput := input
	var feedR, feedW *os.File
	if p.Feeder == FeederYTDLP {
		feedR, feedW, err = os.Pipe()
		if err != nil {
			closeAll(outR, outW)
			return nil, fmt.Errorf("%w: feeder pipe: %w", ErrSpawn, err)
		}
		proc.feeder = f.command(ctx, f.cfg.YTDLPBin, f.FeederArgs(input))
		proc.feeder.Stdout = feedW
		proc.feederErr = &lineLogger{logger: logger, stage: StageFeeder, ring: proc.ring}
		proc.feeder.Stderr = proc.feederErr
		ffInput = StdinInput
	}

	proc.cmd = f.command(ctx, f.cfg.FFmpegBin, p.Args(ffInput))
	proc.cmd.Stdout = outW
	if feedR != nil {
		proc.cmd.Stdin = feedR
	}
	proc.ffErr = &lineLogger{logger: logger, stage: StageFFmpeg, ring: proc.ring}
	proc.cmd.Stderr = proc.ffErr

	if proc.feeder != nil {
		if err := proc.feeder.Start(); err != nil {
			closeAll(outR, outW, feedR, feedW)
			metrics.IncSpawnFailure()
			return nil, fmt.Errorf("%w: %w", ErrSpawn, &StageError{Stage: StageFeeder, Err: err})
		}
		metrics.ProcessStarted()
	}
	if err := proc.cmd.Start(); err != nil {
		closeAll(outR, outW, feedR, feedW)
		if proc.feeder != nil {
			_ = procgroup.CancelGroup(proc.feeder)()
			_ = proc.feeder.Wait()
			metrics.ProcessReaped()
		}
		metrics.IncSpawnFailure()
		return nil, fmt.Errorf("%w: %w", ErrSpawn, &StageError{Stage: StageFFmpeg, Err: err})
	}
	metrics.ProcessStarted()

	// the children hold their own copies now
	closeAll(outW, feedR, feedW)
	proc.stdout = outR

	logger.Debug().
		Str(xglog.FieldEvent, "transcoder.spawn").
		Int(xglog.FieldPID, proc.cmd.Process.Pid).
		Bool("feeder", proc.feeder != nil).
		Str("command", proc.cmd.String()).
		Msg("transcoder started")

	go proc.reap(f.cfg.KillGrace)
	return proc, nil
}

func (f *FFmpeg) command(ctx context.Context, bin string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- binaries come from config
	procgroup.Set(cmd)
	cmd.Cancel = procgroup.CancelGroup(cmd)
	cmd.WaitDelay = f.cfg.KillGrace
	return cmd
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

type process struct {
	cmd       *exec.Cmd
	feeder    *exec.Cmd
	ffErr     *lineLogger
	feederErr *lineLogger
	stdout    *os.File
	ring      *lineRing
	logger    zerolog.Logger

	done     chan struct{}
	err      error
	termOnce sync.Once
	termErr  error
}

func (p *process) Stdout() io.Reader { return p.stdout }

func (p *process) PID() int { return p.cmd.Process.Pid }

func (p *process) Wait() error {
	<-p.done
	return p.err
}

// StderrTail returns the last stderr lines of both stages.
func (p *process) StderrTail(n int) []string {
	return p.ring.last(n)
}

// reap waits for ffmpeg, then stops the feeder, then records the combined result.
func (p *process) reap(grace time.Duration) {
	ffErr := p.cmd.Wait()
	p.ffErr.flush()
	metrics.ProcessReaped()

	var errs []error
	if ffErr != nil {
		errs = append(errs, &StageError{Stage: StageFFmpeg, Err: ffErr})
	}
	if p.feeder != nil {
		waitCh := make(chan error, 1)
		go func() { waitCh <- p.feeder.Wait() }()
		feederErr := procgroup.Terminate(p.feeder, waitCh, grace)
		p.feederErr.flush()
		metrics.ProcessReaped()
		// the feeder dies of SIGPIPE or our SIGTERM once ffmpeg is gone
		if feederErr != nil && ffErr == nil && !signaled(feederErr) {
			errs = append(errs, &StageError{Stage: StageFeeder, Err: feederErr})
		}
	}
	p.err = errors.Join(errs...)
	if p.err != nil {
		p.logger.Debug().
			Err(p.err).
			Str(xglog.FieldEvent, "transcoder.exit").
			Strs("stderr", p.ring.last(8)).
			Msg("transcoder exited")
	}
	close(p.done)
}

func (p *process) Terminate(grace time.Duration) error {
	p.termOnce.Do(func() {
		select {
		case <-p.done:
			p.termErr = p.err
			return
		default:
		}
		waitCh := make(chan error, 1)
		go func() {
			<-p.done
			waitCh <- p.err
		}()
		p.termErr = procgroup.Terminate(p.cmd, waitCh, grace)
	})
	<-p.done
	_ = p.stdout.Close()
	return p.termErr
}

func signaled(err error) bool {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return false
	}
	return ee.ExitCode() == -1
}
