// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/session"
)

// SessionEventMsg carries a controller event into the program.
type SessionEventMsg struct {
	Event session.Event
}

// SubmitDoneMsg is sent when a submission returns.
type SubmitDoneMsg struct {
	Err error
}

// DropMsg reports a file that arrived in the drop directory.
type DropMsg struct {
	Event attach.DropEvent
}

// Observer returns a session observer that forwards events to p.
func Observer(p *tea.Program) session.Observer {
	return func(e session.Event) {
		p.Send(SessionEventMsg{Event: e})
	}
}

// DropNotifier returns a drop-directory callback that forwards events to p.
func DropNotifier(p *tea.Program) func(attach.DropEvent) {
	return func(e attach.DropEvent) {
		p.Send(DropMsg{Event: e})
	}
}
