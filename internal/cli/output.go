// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/jeranaias/visionchat/internal/model"
	"github.com/jeranaias/visionchat/internal/session"
	"github.com/jeranaias/visionchat/internal/util"
)

// deltaWriter writes the growth of the latest assistant message to w as
// snapshots arrive, so streamed answers appear as they are produced.
type deltaWriter struct {
	mu      sync.Mutex
	w       io.Writer
	id      string
	printed int
	text    strings.Builder
}

func newDeltaWriter(w io.Writer) *deltaWriter {
	return &deltaWriter{w: w}
}

// observe is a session.Observer.
func (d *deltaWriter) observe(ev session.Event) {
	if ev.Kind != session.EventTranscript || len(ev.Snapshot) == 0 {
		return
	}
	last := ev.Snapshot[len(ev.Snapshot)-1]
	if last.Role != model.RoleAssistant || last.Error {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if last.ID != d.id {
		d.id = last.ID
		d.printed = 0
	}
	if len(last.Content) <= d.printed {
		return
	}
	delta := last.Content[d.printed:]
	d.printed = len(last.Content)
	d.text.WriteString(delta)
	_, _ = io.WriteString(d.w, delta)
}

// Text returns everything written since the last Reset.
func (d *deltaWriter) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.String()
}

// Reset forgets the written text, keeping the current message ID so a late
// snapshot of an answered message is not printed twice.
func (d *deltaWriter) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text.Reset()
}

// renderMarkdown renders content for terminal display.
// Returns the original content if rendering fails.
func renderMarkdown(content, theme string, width int) string {
	style := glamour.WithAutoStyle()
	if theme == "dark" || theme == "light" {
		style = glamour.WithStandardStyle(theme)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width-2))
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// displayLines counts the terminal rows text occupies at width.
func displayLines(text string, width int) int {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	n := 0
	for _, line := range strings.Split(text, "\n") {
		w := util.StringWidth(line)
		if w == 0 {
			n++
			continue
		}
		n += (w + width - 1) / width
	}
	return n
}

// replaceStreamed erases the raw streamed text from the terminal and writes
// its Markdown rendering in its place.
func replaceStreamed(w io.Writer, text, theme string) {
	width := TerminalWidth(w)
	out := termenv.NewOutput(w)
	out.ClearLines(displayLines(text, width) - 1)
	_, _ = io.WriteString(w, "\r")
	_, _ = io.WriteString(w, renderMarkdown(text, theme, width))
}
