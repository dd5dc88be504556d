// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/model"
	"github.com/jeranaias/visionchat/internal/stream"
)

// FailureText is the assistant message shown when a request fails.
const FailureText = "Sorry, there was an error processing your request."

var (
	// ErrBusy is returned by Submit while another request is outstanding.
	ErrBusy = errors.New("a request is already in progress")

	// ErrEmptyInput is returned for blank input with no pending attachments,
	// or when none of the pending attachments of a blank input could be read.
	ErrEmptyInput = errors.New("nothing to send")
)

// Backend sends the transcript to the model endpoint.
// *cloud.Client satisfies Backend.
type Backend interface {
	OpenStream(ctx context.Context, history []model.Message) (io.ReadCloser, error)
	Complete(ctx context.Context, history []model.Message) (model.Message, error)
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies what changed.
type EventKind int

const (
	// EventTranscript is sent after the transcript changes.
	EventTranscript EventKind = iota
	// EventLoading is sent when a request starts or settles.
	EventLoading
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventTranscript:
		return "transcript"
	case EventLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Event is delivered to the Observer.
type Event struct {
	Kind     EventKind
	Loading  bool
	Snapshot []model.Message
}

// Observer receives events. It is called from the goroutine running Submit
// or from the stream flush timer, never concurrently.
type Observer func(Event)

// =============================================================================
// CONTROLLER
// =============================================================================

// Config holds configuration for a Controller.
type Config struct {
	// Stream selects incremental responses. When false the whole answer is
	// fetched in one response.
	Stream bool

	// Logger receives submission and failure records.
	Logger *slog.Logger
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{Stream: true}
}

// Controller owns one transcript and its pending attachments.
type Controller struct {
	backend    Backend
	engine     *stream.Engine
	transcript *model.Transcript
	queue      *attach.Queue
	stream     bool
	logger     *slog.Logger

	mu       sync.Mutex
	loading  bool
	observer Observer

	notifyMu sync.Mutex
}

// New creates a Controller. A nil engine or queue gets a default one.
func New(backend Backend, engine *stream.Engine, queue *attach.Queue, cfg Config) *Controller {
	if engine == nil {
		engine = stream.NewEngine()
	}
	if queue == nil {
		queue = attach.NewQueue(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		backend:    backend,
		engine:     engine,
		transcript: model.NewTranscript(),
		queue:      queue,
		stream:     cfg.Stream,
		logger:     logger,
	}
}

// SetObserver registers the event callback. Passing nil removes it.
func (c *Controller) SetObserver(fn Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// Transcript returns the session transcript.
func (c *Controller) Transcript() *model.Transcript {
	return c.transcript
}

// Attachments returns the pending attachment queue.
func (c *Controller) Attachments() *attach.Queue {
	return c.queue
}

// Loading reports whether a request is outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Streaming reports whether responses are streamed.
func (c *Controller) Streaming() bool {
	return c.stream
}

// Submit sends input with every pending attachment and blocks until the
// answer has been written to the transcript.
//
// The pending queue is cleared whether or not the request succeeds. The
// returned error is for logging and exit codes only; the transcript already
// shows the failure. Blank input whose attachments all fail to encode returns
// ErrEmptyInput and leaves the transcript unchanged.
func (c *Controller) Submit(ctx context.Context, input string) error {
	text := strings.TrimSpace(input)
	if text == "" && c.queue.Len() == 0 {
		return ErrEmptyInput
	}

	if !c.begin() {
		return ErrBusy
	}
	defer c.finish()

	files := c.queue.Drain()
	images := c.encode(files)
	if text == "" && len(images) == 0 {
		return fmt.Errorf("%w: no attachment could be read", ErrEmptyInput)
	}

	var parts []model.ContentPart
	if len(images) > 0 {
		parts = make([]model.ContentPart, 0, len(images)+1)
		if text != "" {
			parts = append(parts, model.TextPart(text))
		}
		parts = append(parts, images...)
	}
	c.transcript.AppendUser(text, parts, files)
	c.notify(EventTranscript)

	history := c.transcript.History()
	c.logger.Info("submitting message",
		"messages", len(history),
		"images", len(images),
		"stream", c.stream,
	)

	start := time.Now()
	var err error
	if c.stream {
		err = c.runStream(ctx, history)
	} else {
		err = c.runBuffered(ctx, history)
	}
	if err == nil {
		c.logger.Info("response complete", "duration", time.Since(start))
	}
	return err
}

func (c *Controller) begin() bool {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return false
	}
	c.loading = true
	c.mu.Unlock()

	c.notify(EventLoading)
	return true
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()

	c.notify(EventLoading)
}

// encode converts attachments to image parts. Files that fail are skipped.
func (c *Controller) encode(files []model.Attachment) []model.ContentPart {
	parts := make([]model.ContentPart, 0, len(files))
	for _, f := range files {
		part, err := attach.Encode(f)
		if err != nil {
			c.logger.Warn("skipping attachment", "file", f.Name, "error", err)
			continue
		}
		if part.Type != model.PartImage || part.Data == "" {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}

func (c *Controller) runStream(ctx context.Context, history []model.Message) error {
	body, err := c.backend.OpenStream(ctx, history)
	if err != nil {
		c.fail(nil, err)
		return err
	}
	defer body.Close()

	target, err := c.transcript.BeginAssistant()
	if err != nil {
		c.fail(nil, err)
		return err
	}
	c.notify(EventTranscript)

	sink := stream.SinkFunc(func(content string) error {
		if err := target.Update(content); err != nil {
			return err
		}
		c.notify(EventTranscript)
		return nil
	})

	if _, err := c.engine.Run(ctx, body, sink); err != nil {
		c.fail(target, err)
		return err
	}
	target.Close()
	c.notify(EventTranscript)
	return nil
}

func (c *Controller) runBuffered(ctx context.Context, history []model.Message) error {
	msg, err := c.backend.Complete(ctx, history)
	if err != nil {
		c.fail(nil, err)
		return err
	}
	c.transcript.AppendAssistant(msg)
	c.notify(EventTranscript)
	return nil
}

// fail records err and leaves exactly one failure message: the placeholder
// when there is one, otherwise a new message.
func (c *Controller) fail(target *model.StreamTarget, err error) {
	c.logger.Error("chat request failed", "error", err)

	if target != nil {
		if target.Fail(FailureText) == nil {
			c.notify(EventTranscript)
			return
		}
		target.Close()
	}
	c.transcript.AppendError(FailureText)
	c.notify(EventTranscript)
}

func (c *Controller) notify(kind EventKind) {
	c.mu.Lock()
	fn := c.observer
	loading := c.loading
	c.mu.Unlock()
	if fn == nil {
		return
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	ev := Event{Kind: kind, Loading: loading}
	if kind == EventTranscript {
		ev.Snapshot = c.transcript.Messages()
	}
	fn(ev)
}
