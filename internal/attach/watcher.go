// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/visionchat/internal/model"
)

// DefaultSettle is how long a dropped file must stay unchanged before it is
// inspected, so that a copy in progress is not read half-written.
const DefaultSettle = 300 * time.Millisecond

// DropEvent reports the outcome for one file that appeared in the drop
// directory.
type DropEvent struct {
	Path       string
	Attachment model.Attachment
	Err        error
}

// Watcher offers files created in a drop directory to a Queue.
type Watcher struct {
	dir     string
	queue   *Queue
	watcher *fsnotify.Watcher
	settle  time.Duration
	logger  *slog.Logger
	notify  func(DropEvent)

	mu      sync.Mutex
	pending map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithSettle sets how long a file must be quiet before it is queued.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithNotify registers a callback for every accepted or rejected file.
// It runs on the watcher goroutine.
func WithNotify(fn func(DropEvent)) WatcherOption {
	return func(w *Watcher) {
		w.notify = fn
	}
}

// NewWatcher creates a watcher for dir. The directory is created if missing.
func NewWatcher(dir string, q *Queue, opts ...WatcherOption) (*Watcher, error) {
	if dir == "" {
		return nil, errors.New("drop directory not set")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create drop directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		dir:     dir,
		queue:   q,
		watcher: fsw,
		settle:  DefaultSettle,
		logger:  slog.New(slog.DiscardHandler),
		pending: make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start begins watching. Files already in the directory are ignored.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	go w.loop()
	w.logger.Info("watching drop directory", "dir", w.dir)
	return nil
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	tick := w.settle / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("drop directory watcher error", "error", err)

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.offer(path)
			}
		}
	}
}

// settled removes and returns the paths that have been quiet long enough.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) offer(path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	a, err := w.queue.Add(path)
	if err != nil {
		w.logger.Warn("dropped file rejected", "path", path, "error", err)
	} else {
		w.logger.Info("dropped file attached", "name", a.Name, "type", a.MediaType, "size", a.Size)
	}
	if w.notify != nil {
		w.notify(DropEvent{Path: path, Attachment: a, Err: err})
	}
}
