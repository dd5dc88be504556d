// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
	"time"
)

// DefaultFlushInterval is the coalescing window for transcript writes.
const DefaultFlushInterval = 50 * time.Millisecond

// Timer is the subset of *time.Timer the Scheduler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc arms a timer that calls f once after d.
type AfterFunc func(d time.Duration, f func()) Timer

// realAfterFunc adapts time.AfterFunc to AfterFunc.
func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Scheduler holds at most one outstanding deferred task.
//
// Schedule arms the timer only when nothing is pending; while a task is
// pending, a new Schedule replaces it in place and the existing timer runs
// the replacement. Tasks run with the scheduler lock held, so a task started
// by the timer and a task started by Flush never interleave, and a flushed
// task is never followed by a stale one.
type Scheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	afterFunc AfterFunc
	timer     Timer
	gen       uint64
	pending   func()
	runs      int
}

// NewScheduler creates a scheduler with the given interval.
// A nil afterFunc uses time.AfterFunc.
func NewScheduler(interval time.Duration, afterFunc AfterFunc) *Scheduler {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Scheduler{interval: interval, afterFunc: afterFunc}
}

// Schedule registers fn as the pending task.
func (s *Scheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = fn
	if s.timer == nil {
		s.gen++
		gen := s.gen
		s.timer = s.afterFunc(s.interval, func() { s.fire(gen) })
	}
}

// Flush cancels the timer and runs the pending task synchronously.
// It reports whether a task ran.
func (s *Scheduler) Flush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	return s.runLocked()
}

// Cancel drops the pending task without running it.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.pending = nil
}

// Pending reports whether a task is waiting to run.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Runs returns the number of tasks executed so far.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// fire is the timer callback. A callback from a timer that was stopped or
// superseded after it had already fired is ignored.
func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.timer == nil {
		return
	}
	s.timer = nil
	s.runLocked()
}

func (s *Scheduler) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) runLocked() bool {
	fn := s.pending
	s.pending = nil
	if fn == nil {
		return false
	}
	s.runs++
	fn()
	return true
}
