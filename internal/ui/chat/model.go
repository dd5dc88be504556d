// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/model"
	"github.com/jeranaias/visionchat/internal/session"
	"github.com/jeranaias/visionchat/internal/ui/styles"
)

// Layout heights, kept in sync with View.
const (
	headerHeight = 1
	chipsHeight  = 1
	inputHeight  = 3
	statusHeight = 1
)

// Options describe what the status bar shows.
type Options struct {
	ModelName string
	Endpoint  string
	DropDir   string
	// WordWrap caps the Markdown wrap width; 0 follows the window.
	WordWrap int
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx   context.Context
	ctrl  *session.Controller
	theme *styles.Theme
	keys  KeyMap
	opts  Options

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	render   *renderer

	messages  []model.Message
	loading   bool
	notice    string
	noticeErr bool

	width  int
	height int
}

// New creates the chat screen for ctrl. ctx bounds every submission.
func New(ctx context.Context, ctrl *session.Controller, theme *styles.Theme, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your images..."
	ti.CharLimit = 8192
	ti.Focus()

	vp := viewport.New(80, 20)

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		theme:    theme,
		keys:     DefaultKeyMap(),
		opts:     opts,
		viewport: vp,
		input:    ti,
		spinner:  theme.LoadingSpinner(),
		render:   newRenderer(theme, 80),
		messages: ctrl.Transcript().Messages(),
	}
	m.refresh(true)
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case SessionEventMsg:
		return m.handleSessionEvent(msg.Event)

	case SubmitDoneMsg:
		return m.handleSubmitDone(msg)

	case DropMsg:
		return m.handleDrop(msg.Event)

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	vpHeight := msg.Height - headerHeight - chipsHeight - inputHeight - statusHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.Width = msg.Width - 6

	wrap := msg.Width
	if m.opts.WordWrap > 0 && m.opts.WordWrap < wrap {
		wrap = m.opts.WordWrap
	}
	m.render.setWidth(wrap)
	m.refresh(true)
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case msg.Paste:
		if path, ok := attach.ParsePastedPath(string(msg.Runes)); ok {
			return m.attachPath(path), nil
		}

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Detach):
		return m.detach(m.ctrl.Attachments().Len() - 1), nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSubmit sends the input. Enter does nothing while loading.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	value := m.input.Value()
	trimmed := strings.TrimSpace(value)

	if strings.HasPrefix(trimmed, "/") {
		m.input.Reset()
		return m.handleCommand(trimmed)
	}
	if path, ok := attach.ParsePastedPath(trimmed); ok {
		m.input.Reset()
		return m.attachPath(path), nil
	}
	if trimmed == "" && m.ctrl.Attachments().Len() == 0 {
		return m, nil
	}

	m.input.Reset()
	m.loading = true
	m.notice = ""
	return m, tea.Batch(m.submitCmd(value), m.spinner.Tick)
}

func (m Model) submitCmd(text string) tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return SubmitDoneMsg{Err: ctrl.Submit(ctx, text)}
	}
}

func (m Model) handleSessionEvent(ev session.Event) (tea.Model, tea.Cmd) {
	switch ev.Kind {
	case session.EventTranscript:
		m.messages = ev.Snapshot
		m.refresh(false)
	case session.EventLoading:
		if ev.Loading && !m.loading {
			m.loading = true
			return m, m.spinner.Tick
		}
		m.loading = ev.Loading
	}
	return m, nil
}

func (m Model) handleSubmitDone(msg SubmitDoneMsg) (tea.Model, tea.Cmd) {
	m.loading = m.ctrl.Loading()
	m.messages = m.ctrl.Transcript().Messages()
	m.refresh(false)

	switch {
	case msg.Err == nil:
	case errors.Is(msg.Err, session.ErrBusy), errors.Is(msg.Err, session.ErrEmptyInput):
		m.setNotice(msg.Err.Error(), false)
	default:
		m.setNotice("request failed: "+msg.Err.Error(), true)
	}
	return m, nil
}

func (m Model) handleDrop(ev attach.DropEvent) (tea.Model, tea.Cmd) {
	name := filepath.Base(ev.Path)
	if ev.Err != nil {
		m.setNotice(fmt.Sprintf("ignored %s: %v", name, ev.Err), true)
		return m, nil
	}
	m.setNotice("attached "+name+" from drop folder", false)
	return m, nil
}

// attachPath queues path and reports the outcome.
func (m Model) attachPath(path string) Model {
	a, err := m.ctrl.Attachments().Add(path)
	if err != nil {
		m.setNotice(err.Error(), true)
		return m
	}
	m.setNotice("attached "+a.Name, false)
	return m
}

// detach removes the attachment at index i.
func (m Model) detach(i int) Model {
	a, ok := m.ctrl.Attachments().Remove(i)
	if !ok {
		m.setNotice("no attachment to remove", true)
		return m
	}
	m.setNotice("removed "+a.Name, false)
	return m
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
}

// refresh re-renders the transcript, following the bottom when the view was
// already there.
func (m *Model) refresh(force bool) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.render.transcript(m.messages))
	if force || atBottom || m.loading {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat screen.
func (m Model) View() string {
	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.render.chips(m.ctrl.Attachments().Items()),
		m.theme.InputBorder.Width(max(m.width-2, 10)).Render(m.input.View()),
		m.renderStatus(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("visionchat")
	if m.opts.ModelName != "" {
		title += " " + m.theme.HeaderModel.Render(m.opts.ModelName)
	}
	return m.theme.Header.Width(max(m.width, 1)).Render(title)
}

func (m Model) renderStatus() string {
	var left string
	switch {
	case m.loading:
		left = m.spinner.View() + " " + m.theme.StatusBusy.Render("waiting for response")
	case m.notice != "" && m.noticeErr:
		left = m.theme.NoticeError.Render(m.notice)
	case m.notice != "":
		left = m.theme.Notice.Render(m.notice)
	default:
		left = m.theme.StatusOK.Render("ready")
	}

	var help []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	right := m.theme.Hint.Render(strings.Join(help, "  "))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return m.theme.StatusBar.Render(left)
	}
	return m.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}

// Messages returns the transcript snapshot the view shows.
func (m Model) Messages() []model.Message {
	return m.messages
}

// Loading reports whether the view considers a request outstanding.
func (m Model) Loading() bool {
	return m.loading
}

// Notice returns the status line message.
func (m Model) Notice() string {
	return m.notice
}
