// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/util"
)

const helpText = "/attach <path>  /detach [n]  /files  /help  /quit"

// handleCommand runs a slash command typed into the input.
func (m Model) handleCommand(line string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/attach", "/a":
		if arg == "" {
			m.setNotice("usage: /attach <path>", true)
			return m, nil
		}
		path, ok := attach.ParsePastedPath(arg)
		if !ok {
			path = util.ExpandHome(arg)
		}
		return m.attachPath(path), nil

	case "/detach", "/d":
		i := m.ctrl.Attachments().Len() - 1
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				m.setNotice("usage: /detach [n]", true)
				return m, nil
			}
			i = n - 1
		}
		return m.detach(i), nil

	case "/files", "/f":
		items := m.ctrl.Attachments().Items()
		if len(items) == 0 {
			m.setNotice("no pending attachments", false)
			return m, nil
		}
		names := make([]string, len(items))
		for i, a := range items {
			names[i] = fmt.Sprintf("%d. %s (%s)", i+1, a.Name, util.FormatBytes(a.Size))
		}
		m.setNotice(strings.Join(names, ", "), false)
		return m, nil

	case "/help", "/h", "/?":
		notice := helpText
		if m.opts.DropDir != "" {
			notice += "  (drop folder: " + m.opts.DropDir + ")"
		}
		m.setNotice(notice, false)
		return m, nil

	case "/quit", "/q", "/exit":
		return m, tea.Quit
	}

	m.setNotice("unknown command "+name+"; "+helpText, true)
	return m, nil
}
