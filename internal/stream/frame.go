// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// dataPrefix marks the records carrying a payload. Other records
	// (event:, id:, comments) are ignored.
	dataPrefix = "data: "

	// DoneSentinel is the payload that marks the end of a completion. It is
	// skipped; the read loop still ends only when the body ends.
	DoneSentinel = "[DONE]"
)

// Chunk is one decoded streaming frame.
type Chunk struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Choices []struct {
		Delta struct {
			Role    string  `json:"role,omitempty"`
			Content *string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Delta returns choices[0].delta.content. The second result is false when
// the frame has no choices or the content field is absent or null.
func (c *Chunk) Delta() (string, bool) {
	if len(c.Choices) == 0 || c.Choices[0].Delta.Content == nil {
		return "", false
	}
	return *c.Choices[0].Delta.Content, true
}

// ParseFrame extracts the payload of a "data: " record.
func ParseFrame(line string) (string, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}
	return line[len(dataPrefix):], true
}

// MalformedFrameError reports a data record whose payload is not valid JSON.
type MalformedFrameError struct {
	Payload string
	Err     error
}

// Error implements the error interface.
func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed stream frame %q: %v", truncate(e.Payload, 80), e.Err)
}

// Unwrap returns the underlying decode error.
func (e *MalformedFrameError) Unwrap() error {
	return e.Err
}

// DecodeDelta decodes a frame payload into its content delta.
// The sentinel and frames without a delta return ok == false and a nil error.
// Payloads that are not valid JSON return a *MalformedFrameError.
func DecodeDelta(payload string) (delta string, ok bool, err error) {
	if payload == DoneSentinel {
		return "", false, nil
	}

	var chunk Chunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false, &MalformedFrameError{Payload: payload, Err: err}
	}

	delta, ok = chunk.Delta()
	if !ok || delta == "" {
		return "", false, nil
	}
	return delta, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
