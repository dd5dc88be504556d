// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/model"
	"github.com/jeranaias/visionchat/internal/session"
	"github.com/jeranaias/visionchat/internal/stream"
	"github.com/jeranaias/visionchat/internal/ui/styles"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type replyBackend struct {
	body string
	err  error
}

func (b replyBackend) OpenStream(context.Context, []model.Message) (io.ReadCloser, error) {
	if b.err != nil {
		return nil, b.err
	}
	return io.NopCloser(strings.NewReader(b.body)), nil
}

func (b replyBackend) Complete(context.Context, []model.Message) (model.Message, error) {
	return model.Message{}, errors.New("not used")
}

func newTestModel(t *testing.T, b session.Backend) Model {
	t.Helper()
	ctrl := session.New(b, stream.NewEngine(), attach.NewQueue(0), session.DefaultConfig())
	m := New(context.Background(), ctrl, styles.NewTheme(styles.ThemeDark), Options{ModelName: "llava:7b"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func writePNG(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, pngHeader, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func typeText(m Model, s string) Model {
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return updated.(Model)
}

func pressEnter(m Model) (Model, tea.Cmd) {
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

// =============================================================================
// SUBMISSION TESTS
// =============================================================================

func TestSubmit_RoundTrip(t *testing.T) {
	m := newTestModel(t, replyBackend{body: `data: {"choices":[{"delta":{"content":"A red ball"}}]}` + "\n"})
	m = typeText(m, "what is this?")

	m, cmd := pressEnter(m)
	if cmd == nil {
		t.Fatal("Enter should start a submission")
	}
	if !m.Loading() {
		t.Error("model should be loading after Enter")
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	done := m.submitCmd("what is this?")()
	updated, _ := m.Update(done)
	m = updated.(Model)

	if m.Loading() {
		t.Error("model still loading after SubmitDoneMsg")
	}
	msgs := m.Messages()
	if len(msgs) != 2 || msgs[1].Content != "A red ball" {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(m.View(), "ball") {
		t.Error("answer not rendered")
	}
}

func TestSubmit_IgnoredWhileLoading(t *testing.T) {
	m := newTestModel(t, replyBackend{})
	m.loading = true
	m = typeText(m, "again")

	m, cmd := pressEnter(m)
	if cmd != nil {
		t.Error("Enter must do nothing while a request is outstanding")
	}
	if m.input.Value() != "again" {
		t.Error("input should be kept while loading")
	}
}

func TestSubmit_BlankIgnored(t *testing.T) {
	m := newTestModel(t, replyBackend{})
	m = typeText(m, "   ")
	if _, cmd := pressEnter(m); cmd != nil {
		t.Error("blank input without attachments should not submit")
	}
}

func TestSubmitDone_FailureNotice(t *testing.T) {
	m := newTestModel(t, replyBackend{err: errors.New("connection refused")})
	done := m.submitCmd("hi")()

	updated, _ := m.Update(done)
	m = updated.(Model)
	if !m.noticeErr || !strings.Contains(m.Notice(), "connection refused") {
		t.Errorf("notice = %q", m.Notice())
	}
	last := m.Messages()[len(m.Messages())-1]
	if last.Content != session.FailureText {
		t.Errorf("last message = %q", last.Content)
	}
}

// =============================================================================
// ATTACHMENT TESTS
// =============================================================================

func TestSlashCommands(t *testing.T) {
	path := writePNG(t, "cat.png")
	m := newTestModel(t, replyBackend{})

	m = typeText(m, "/attach "+path)
	m, _ = pressEnter(m)
	if m.ctrl.Attachments().Len() != 1 {
		t.Fatalf("attachments = %d, want 1 (notice %q)", m.ctrl.Attachments().Len(), m.Notice())
	}
	if !strings.Contains(m.View(), "cat.png") {
		t.Error("attachment chip not shown")
	}

	m = typeText(m, "/files")
	m, _ = pressEnter(m)
	if !strings.Contains(m.Notice(), "1. cat.png") {
		t.Errorf("/files notice = %q", m.Notice())
	}

	m = typeText(m, "/detach 1")
	m, _ = pressEnter(m)
	if m.ctrl.Attachments().Len() != 0 {
		t.Error("/detach did not remove the attachment")
	}

	m = typeText(m, "/bogus")
	m, _ = pressEnter(m)
	if !m.noticeErr {
		t.Error("unknown command should set an error notice")
	}

	m = typeText(m, "/quit")
	_, cmd := pressEnter(m)
	if cmd == nil {
		t.Fatal("/quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("/quit should quit")
	}
}

func TestPastedPathQueues(t *testing.T) {
	path := writePNG(t, "pasted.png")
	m := newTestModel(t, replyBackend{})

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("'" + path + "'"), Paste: true})
	m = updated.(Model)
	if m.ctrl.Attachments().Len() != 1 {
		t.Fatalf("pasted path not queued (notice %q)", m.Notice())
	}
	if m.input.Value() != "" {
		t.Error("pasted path should not be typed into the input")
	}
}

func TestAttach_RejectsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\n"), 0600); err != nil {
		t.Fatal(err)
	}
	m := newTestModel(t, replyBackend{})
	m = typeText(m, "/attach "+path)
	m, _ = pressEnter(m)

	if m.ctrl.Attachments().Len() != 0 || !m.noticeErr {
		t.Errorf("pdf should be rejected, notice %q", m.Notice())
	}
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestSessionEvents(t *testing.T) {
	m := newTestModel(t, replyBackend{})

	updated, cmd := m.Update(SessionEventMsg{Event: session.Event{Kind: session.EventLoading, Loading: true}})
	m = updated.(Model)
	if !m.Loading() || cmd == nil {
		t.Error("loading event should start the spinner")
	}

	snapshot := []model.Message{model.NewMessage(model.RoleUser, "hello there")}
	updated, _ = m.Update(SessionEventMsg{Event: session.Event{Kind: session.EventTranscript, Snapshot: snapshot}})
	m = updated.(Model)
	if len(m.Messages()) != 1 || !strings.Contains(m.View(), "hello there") {
		t.Error("transcript event not applied")
	}
}

func TestDropMsg(t *testing.T) {
	m := newTestModel(t, replyBackend{})

	updated, _ := m.Update(DropMsg{Event: attach.DropEvent{Path: "/tmp/drop/x.pdf", Err: attach.ErrUnsupportedType}})
	m = updated.(Model)
	if !m.noticeErr || !strings.Contains(m.Notice(), "x.pdf") {
		t.Errorf("notice = %q", m.Notice())
	}

	updated, _ = m.Update(DropMsg{Event: attach.DropEvent{Path: "/tmp/drop/shot.png"}})
	m = updated.(Model)
	if m.noticeErr || !strings.Contains(m.Notice(), "shot.png") {
		t.Errorf("notice = %q", m.Notice())
	}
}
