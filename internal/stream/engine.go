// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// DefaultReadSize is the size of each body read (4KB).
const DefaultReadSize = 4 * 1024

// =============================================================================
// TYPES
// =============================================================================

// Sink receives the full accumulated text on every flush.
// *model.StreamTarget satisfies Sink.
type Sink interface {
	Update(content string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(content string) error

// Update calls f(content).
func (f SinkFunc) Update(content string) error {
	return f(content)
}

// Error is returned when reading the body fails mid-stream, preserving the
// text accumulated before the failure.
type Error struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine drives a streaming response body into a Sink.
// An Engine holds no per-stream state and may be shared.
type Engine struct {
	interval  time.Duration
	readSize  int
	afterFunc AfterFunc
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithFlushInterval sets the coalescing window.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithReadSize sets the size of each body read.
func WithReadSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.readSize = n
		}
	}
}

// WithAfterFunc replaces the timer source, for tests.
func WithAfterFunc(f AfterFunc) Option {
	return func(e *Engine) {
		e.afterFunc = f
	}
}

// WithLogger sets the logger used for skipped frames.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an Engine with a 50ms flush interval.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		interval: DefaultFlushInterval,
		readSize: DefaultReadSize,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Interval returns the flush interval.
func (e *Engine) Interval() time.Duration {
	return e.interval
}

// Run reads body until it ends and returns the accumulated text.
//
// Deltas are applied in arrival order. The sink sees the latest accumulated
// text at most once per flush interval, and once more, synchronously, when
// the body ends, so the final delta always reaches it. On a read error the
// pending flush is dropped and an *Error carrying the partial text is
// returned; the caller decides what the sink shows instead.
func (e *Engine) Run(ctx context.Context, body io.Reader, sink Sink) (string, error) {
	start := time.Now()
	sched := NewScheduler(e.interval, e.afterFunc)

	var acc strings.Builder
	lines := LineBuffer{OnDiscard: func(size int) {
		e.metrics.incMalformed()
		e.logger.Warn("discarding oversized stream record", "bytes", size, "limit", MaxLineSize)
	}}
	buf := make([]byte, e.readSize)

	publish := func() {
		snapshot := acc.String()
		sched.Schedule(func() {
			e.metrics.incFlushes()
			if err := sink.Update(snapshot); err != nil {
				e.logger.Warn("stream write rejected", "error", err)
			}
		})
	}

	fail := func(err error) (string, error) {
		sched.Cancel()
		e.metrics.observe("error", time.Since(start).Seconds())
		return acc.String(), &Error{Partial: acc.String(), Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			applied := false
			for _, line := range lines.Feed(buf[:n]) {
				if e.applyLine(line, &acc) {
					applied = true
				}
			}
			if applied {
				publish()
			}
		}

		if errors.Is(readErr, io.EOF) {
			if rest := lines.Pending(); rest != "" {
				e.logger.Debug("discarding unterminated stream record", "bytes", len(rest))
			}
			sched.Flush()
			e.metrics.observe("ok", time.Since(start).Seconds())
			return acc.String(), nil
		}
		if readErr != nil {
			return fail(readErr)
		}
	}
}

// applyLine decodes one line and appends its delta to acc.
// It reports whether acc changed.
func (e *Engine) applyLine(line string, acc *strings.Builder) bool {
	payload, ok := ParseFrame(line)
	if !ok {
		return false
	}
	e.metrics.incFrames()

	delta, ok, err := DecodeDelta(payload)
	if err != nil {
		e.metrics.incMalformed()
		e.logger.Warn("skipping malformed stream frame", "error", err)
		return false
	}
	if !ok {
		return false
	}

	acc.WriteString(delta)
	e.metrics.incDeltas()
	return true
}
