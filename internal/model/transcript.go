// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"sync"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrStreamInFlight is returned when a placeholder is requested while
	// another StreamTarget is still open.
	ErrStreamInFlight = errors.New("a streaming response is already in progress")

	// ErrTargetClosed is returned when writing through a closed StreamTarget.
	ErrTargetClosed = errors.New("stream target is closed")

	// ErrNotLast is returned when the placeholder is no longer the last
	// message of the transcript.
	ErrNotLast = errors.New("stream target is not the last message")
)

// =============================================================================
// TRANSCRIPT TYPE
// =============================================================================

// Transcript is the ordered, append-only message list of one session.
// Callers only ever receive copies of messages; content changes after
// insertion go through a StreamTarget.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
	active   *StreamTarget
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{messages: make([]Message, 0, 16)}
}

// AppendUser appends a user message. Parts may be nil for plain text.
func (t *Transcript) AppendUser(content string, parts []ContentPart, files []Attachment) Message {
	msg := NewMessage(RoleUser, content)
	msg.Parts = parts
	msg.Files = files

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg.clone())
	return msg
}

// AppendAssistant appends a completed assistant message verbatim.
// A missing ID or timestamp is filled in.
func (t *Transcript) AppendAssistant(msg Message) Message {
	msg.Role = RoleAssistant
	msg.Streaming = false
	if msg.ID == "" {
		msg.ID = NewMessage(RoleAssistant, "").ID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg.clone())
	return msg
}

// AppendError appends the fixed-text failure message.
func (t *Transcript) AppendError(text string) Message {
	msg := NewMessage(RoleAssistant, text)
	msg.Error = true
	return t.AppendAssistant(msg)
}

// BeginAssistant appends an empty assistant placeholder and returns the only
// handle allowed to change its content.
func (t *Transcript) BeginAssistant() (*StreamTarget, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active != nil {
		return nil, ErrStreamInFlight
	}

	msg := NewMessage(RoleAssistant, "")
	msg.Streaming = true
	t.messages = append(t.messages, msg)

	target := &StreamTarget{
		transcript: t,
		index:      len(t.messages) - 1,
		id:         msg.ID,
	}
	t.active = target
	return target, nil
}

// Messages returns a copy of every message in order.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

// History returns the messages to send upstream: failure notices and empty
// placeholders are left out.
func (t *Transcript) History() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Error || m.Streaming || m.IsEmpty() {
			continue
		}
		out = append(out, m.clone())
	}
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Last returns the last message, or false if the transcript is empty.
func (t *Transcript) Last() (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1].clone(), true
}

// Streaming reports whether a StreamTarget is open.
func (t *Transcript) Streaming() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active != nil
}

// =============================================================================
// STREAM TARGET
// =============================================================================

// StreamTarget identifies the placeholder assistant message that a streaming
// response writes into. Writes are rejected once the target is closed or
// when the placeholder is no longer the last message.
type StreamTarget struct {
	transcript *Transcript
	index      int
	id         string
	closed     bool
}

// ID returns the ID of the placeholder message.
func (s *StreamTarget) ID() string {
	return s.id
}

// Update replaces the placeholder content with the full accumulated text.
func (s *StreamTarget) Update(content string) error {
	t := s.transcript
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	t.messages[s.index].Content = content
	return nil
}

// Fail replaces the placeholder content with the failure text and closes the
// target. The placeholder becomes the single failure message for the request.
func (s *StreamTarget) Fail(text string) error {
	t := s.transcript
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	msg := &t.messages[s.index]
	msg.Content = text
	msg.Error = true
	s.closeLocked()
	return nil
}

// Close finalizes the placeholder. Closing twice is a no-op.
func (s *StreamTarget) Close() {
	t := s.transcript
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.closed {
		return
	}
	s.closeLocked()
}

// Closed reports whether the target no longer accepts writes.
func (s *StreamTarget) Closed() bool {
	t := s.transcript
	t.mu.RLock()
	defer t.mu.RUnlock()
	return s.closed
}

func (s *StreamTarget) checkLocked() error {
	t := s.transcript
	if s.closed {
		return ErrTargetClosed
	}
	if s.index != len(t.messages)-1 || t.messages[s.index].ID != s.id {
		return ErrNotLast
	}
	return nil
}

func (s *StreamTarget) closeLocked() {
	s.closed = true
	if s.index < len(s.transcript.messages) {
		s.transcript.messages[s.index].Streaming = false
	}
	if s.transcript.active == s {
		s.transcript.active = nil
	}
}
