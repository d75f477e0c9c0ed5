// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"bytes"
	"sync"

	xglog "github.com/ManuGH/tvrelay/internal/log"
	"github.com/rs/zerolog"
)

const maxLineLen = 4 << 10

// lineRing keeps the last lines a process wrote to stderr.
type lineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	full  bool
}

func newLineRing(capacity int) *lineRing {
	if capacity < 1 {
		capacity = 32
	}
	return &lineRing{lines: make([]string, capacity)}
}

func (r *lineRing) add(line string) {
	r.mu.Lock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// last returns up to n lines, oldest first.
func (r *lineRing) last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ordered []string
	if r.full {
		ordered = append(ordered, r.lines[r.head:]...)
	}
	ordered = append(ordered, r.lines[:r.head]...)
	if n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// lineLogger is an io.Writer for a process' stderr. Every complete line is
// logged at debug level and kept in the ring. exec.Cmd drives it from a single
// goroutine, so it never blocks the stdout path.
type lineLogger struct {
	logger zerolog.Logger
	stage  string
	ring   *lineRing
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			if l.buf.Len() > maxLineLen {
				l.emit(l.buf.Next(l.buf.Len()))
			}
			return len(p), nil
		}
		l.emit(l.buf.Next(i + 1))
	}
}

// flush emits a trailing partial line.
func (l *lineLogger) flush() {
	if l.buf.Len() > 0 {
		l.emit(l.buf.Next(l.buf.Len()))
	}
}

func (l *lineLogger) emit(raw []byte) {
	line := string(bytes.TrimRight(raw, "\r\n"))
	if line == "" {
		return
	}
	l.ring.add(l.stage + ": " + line)
	l.logger.Debug().
		Str(xglog.FieldStage, l.stage).
		Str("line", line).
		Msg("transcoder stderr")
}
