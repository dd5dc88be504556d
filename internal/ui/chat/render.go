// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/visionchat/internal/model"
	"github.com/jeranaias/visionchat/internal/ui/styles"
	"github.com/jeranaias/visionchat/internal/util"
)

// renderer turns transcript messages into styled text for the viewport.
// Completed assistant messages are cached by ID.
type renderer struct {
	theme *styles.Theme
	width int
	md    *glamour.TermRenderer
	cache map[string]cachedRender
}

type cachedRender struct {
	content string
	out     string
}

func newRenderer(theme *styles.Theme, width int) *renderer {
	r := &renderer{theme: theme, cache: make(map[string]cachedRender)}
	r.setWidth(width)
	return r
}

// setWidth rebuilds the markdown renderer when the wrap width changes.
func (r *renderer) setWidth(width int) {
	if width < 20 {
		width = 20
	}
	if width == r.width && r.md != nil {
		return
	}
	r.width = width
	r.cache = make(map[string]cachedRender)

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.theme.GlamourStyle()),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		// Fallback to plain text if renderer initialization fails
		md = nil
	}
	r.md = md
}

// markdown renders content, returning it unchanged on failure.
func (r *renderer) markdown(content string) string {
	if r.md == nil {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// transcript renders every message separated by blank lines.
func (r *renderer) transcript(msgs []model.Message) string {
	if len(msgs) == 0 {
		return r.theme.Hint.Render("Ask about an image: /attach <path>, paste a path, or drop files into the drop folder.")
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, r.message(m))
	}
	return strings.Join(parts, "\n\n")
}

func (r *renderer) message(m model.Message) string {
	header := r.label(m) + " " + r.theme.Timestamp.Render(m.CreatedAt.Format("15:04"))

	switch {
	case m.Role == model.RoleUser:
		body := m.Content
		if files := r.files(m.Files); files != "" {
			if body != "" {
				body += "\n"
			}
			body += files
		}
		return header + "\n" + r.theme.UserBubble.MaxWidth(r.width).Render(body)

	case m.Error:
		return header + "\n" + r.theme.ErrorBubble.Render(m.Content)

	case m.Streaming && m.Content == "":
		return header + "\n" + r.theme.Hint.Render("...")

	case m.Streaming:
		return header + "\n" + r.theme.AssistantBody.Render(r.markdown(m.Content))
	}

	if c, ok := r.cache[m.ID]; ok && c.content == m.Content {
		return header + "\n" + c.out
	}
	out := r.theme.AssistantBody.Render(r.markdown(m.Content))
	r.cache[m.ID] = cachedRender{content: m.Content, out: out}
	return header + "\n" + out
}

func (r *renderer) label(m model.Message) string {
	if m.Role == model.RoleUser {
		return r.theme.UserLabel.Render(m.Role.DisplayName())
	}
	return r.theme.AssistantLabel.Render(m.Role.DisplayName())
}

func (r *renderer) files(files []model.Attachment) string {
	if len(files) == 0 {
		return ""
	}
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = fmt.Sprintf("[image] %s (%s)", util.TruncateWidth(f.Name, r.width-20), util.FormatBytes(f.Size))
	}
	return strings.Join(lines, "\n")
}

// chips renders the pending attachments on one line.
func (r *renderer) chips(items []model.Attachment) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, a := range items {
		b.WriteString(r.theme.ChipIndex.Render(fmt.Sprintf("%d", i+1)))
		b.WriteString(r.theme.Chip.Render(util.TruncateWidth(a.Name, 24) + " " + util.FormatBytes(a.Size)))
	}
	return b.String()
}
