// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/visionchat/internal/model"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// ImageURL is the payload of an image_url content part.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multipart message on the wire.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Content is a message body: a plain string, or an array of parts when
// Parts is non-empty.
type Content struct {
	Text  string
	Parts []ContentPart
}

// MarshalJSON encodes Content as a string or a part array.
func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.Parts) > 0 {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string, a part array or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case data[0] == '[':
		var parts []ContentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		var text []string
		for _, p := range parts {
			if p.Type == "text" {
				text = append(text, p.Text)
			}
		}
		*c = Content{Text: strings.Join(text, "\n"), Parts: parts}
		return nil
	default:
		return fmt.Errorf("content must be a string or an array, got %s", string(data[:1]))
	}
}

// ChatMessage represents a single message in a chat request or response.
type ChatMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// ChatRequest is the body sent to the chat-completions endpoint.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ChatResponse is a buffered chat-completions response.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// apiErrorResponse is the error envelope. The message may be an object with
// code and message, or a bare string.
type apiErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

type apiErrorDetail struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// =============================================================================
// CONVERSION
// =============================================================================

// FromModel converts a transcript message to its wire form.
func FromModel(m model.Message) ChatMessage {
	msg := ChatMessage{Role: m.Role.String(), Content: Content{Text: m.Content}}
	if !m.IsMultipart() {
		return msg
	}

	msg.Content.Parts = make([]ContentPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case model.PartText:
			if p.Text == "" {
				continue
			}
			msg.Content.Parts = append(msg.Content.Parts, ContentPart{Type: "text", Text: p.Text})
		case model.PartImage:
			msg.Content.Parts = append(msg.Content.Parts, ContentPart{
				Type:     "image_url",
				ImageURL: &ImageURL{URL: p.Data},
			})
		}
	}
	return msg
}

// FromModels converts a transcript slice.
func FromModels(msgs []model.Message) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = FromModel(m)
	}
	return out
}

// ToModel converts a response message to a transcript message, keeping its
// content as sent.
func ToModel(c ChatMessage) model.Message {
	role := model.Role(c.Role)
	if role == "" {
		role = model.RoleAssistant
	}
	m := model.NewMessage(role, c.Content.Text)
	for _, p := range c.Content.Parts {
		switch {
		case p.Type == "text":
			m.Parts = append(m.Parts, model.TextPart(p.Text))
		case p.Type == "image_url" && p.ImageURL != nil:
			m.Parts = append(m.Parts, model.ImagePart(p.ImageURL.URL))
		}
	}
	return m
}
