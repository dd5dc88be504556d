// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// CONTENT PARTS
// =============================================================================

// PartType identifies the kind of a ContentPart.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of a multipart message.
// Image parts carry a base64 data URI in Data.
type ContentPart struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	Data string   `json:"data,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart returns an image content part holding a data URI.
func ImagePart(dataURI string) ContentPart {
	return ContentPart{Type: PartImage, Data: dataURI}
}

// Attachment describes a local file the user selected for a message.
type Attachment struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
}

// IsImage reports whether the attachment has an image media type.
func (a Attachment) IsImage() bool {
	return len(a.MediaType) > 6 && a.MediaType[:6] == "image/"
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in the transcript.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Content is the plain text form. When Parts is non-empty it is the
	// authoritative content and Content mirrors its text part.
	Content string        `json:"content"`
	Parts   []ContentPart `json:"parts,omitempty"`

	// Files lists the attachments submitted with a user message.
	Files []Attachment `json:"files,omitempty"`

	// Error marks the fixed-text assistant message written on request failure.
	Error bool `json:"error,omitempty"`

	// Streaming is true while a StreamTarget still writes to this message.
	Streaming bool `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// IsMultipart reports whether the message carries content parts.
func (m Message) IsMultipart() bool {
	return len(m.Parts) > 0
}

// IsEmpty returns true if the message has neither text nor parts.
func (m Message) IsEmpty() bool {
	return m.Content == "" && len(m.Parts) == 0
}

// ImageCount returns the number of inline image parts.
func (m Message) ImageCount() int {
	n := 0
	for _, p := range m.Parts {
		if p.Type == PartImage {
			n++
		}
	}
	return n
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Content)
	if len(runes) <= maxLen || maxLen < 4 {
		return m.Content
	}
	return string(runes[:maxLen-3]) + "..."
}

// clone returns a copy that shares no slices with m.
func (m Message) clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = append([]ContentPart(nil), m.Parts...)
	}
	if m.Files != nil {
		c.Files = append([]Attachment(nil), m.Files...)
	}
	return c
}
