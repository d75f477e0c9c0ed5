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

	"github.com/ManuGH/tvrelay/internal/transcoder"
)

var (
	errExit  = errors.New("exit status 1")
	errCrash = errors.New("crash")
)

// behavior drives one fake process. It writes to w until it returns, a write
// fails or stop is closed.
type behavior func(gen int, w io.Writer, stop <-chan struct{}) error

// emit writes n chunks tagged with the generation, then exits cleanly.
func emit(n int) behavior {
	return func(gen int, w io.Writer, _ <-chan struct{}) error {
		for i := 0; i < n; i++ {
			if _, err := fmt.Fprintf(w, "g%d-%d;", gen, i); err != nil {
				return err
			}
		}
		return nil
	}
}

// crash writes n chunks, then the process exits with errExit.
func crash(n int) behavior {
	return func(gen int, w io.Writer, stop <-chan struct{}) error {
		if err := emit(n)(gen, w, stop); err != nil {
			return err
		}
		return errCrash
	}
}

// endless writes chunks until the process is terminated.
func endless() behavior {
	return func(gen int, w io.Writer, _ <-chan struct{}) error {
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(w, "g%d-%d;", gen, i); err != nil {
				return err
			}
		}
	}
}

// silent never writes and never exits on its own.
func silent() behavior {
	return func(_ int, _ io.Writer, stop <-chan struct{}) error {
		<-stop
		return errExit
	}
}

type fakeSpawner struct {
	mu       sync.Mutex
	behave   func(gen int) behavior
	failFrom int // spawn attempts >= failFrom fail when > 0
	inputs   []string

	spawns  atomic.Int32
	live    atomic.Int32
	maxLive atomic.Int32
	procs   []*fakeProc
}

func (f *fakeSpawner) Spawn(_ context.Context, _ transcoder.Profile, input string) (transcoder.Process, error) {
	gen := int(f.spawns.Add(1))
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.failFrom > 0 && gen >= f.failFrom {
		return nil, fmt.Errorf("%w: fake spawn %d", transcoder.ErrSpawn, gen)
	}

	n := f.live.Add(1)
	for {
		m := f.maxLive.Load()
		if n <= m || f.maxLive.CompareAndSwap(m, n) {
			break
		}
	}

	r, w := io.Pipe()
	p := &fakeProc{pid: 1000 + gen, r: r, w: w, done: make(chan struct{}), sp: f}
	f.mu.Lock()
	f.procs = append(f.procs, p)
	f.mu.Unlock()

	b := f.behave(gen)
	go func() {
		switch err := b(gen, w, p.done); {
		case err == nil:
			p.exit(nil)
		case errors.Is(err, errCrash):
			p.exit(errExit)
		}
	}()
	return p, nil
}

func (f *fakeSpawner) allReaped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		select {
		case <-p.done:
		default:
			return false
		}
	}
	return true
}

type fakeProc struct {
	pid  int
	r    *io.PipeReader
	w    *io.PipeWriter
	sp   *fakeSpawner
	done chan struct{}
	once sync.Once
	err  error
}

func (p *fakeProc) Stdout() io.Reader { return p.r }
func (p *fakeProc) PID() int          { return p.pid }

func (p *fakeProc) Wait() error {
	<-p.done
	return p.err
}

func (p *fakeProc) Terminate(time.Duration) error {
	p.exit(errExit)
	_ = p.r.Close()
	return p.Wait()
}

func (p *fakeProc) exit(err error) {
	p.once.Do(func() {
		p.err = err
		_ = p.w.Close()
		p.sp.live.Add(-1)
		close(p.done)
	})
}
