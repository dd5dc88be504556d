// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the chat screen of the visionchat TUI.

The screen is a Bubble Tea model with a scrolling transcript, a single-line
input, the pending attachment chips and a status bar. Submissions run in a
tea.Cmd; the session controller reports transcript changes through an
Observer that forwards them into the program with Program.Send.

# Key Components

## Model (model.go)

Holds view state only. The transcript lives in the session controller; the
model keeps the latest snapshot it was sent.

## Commands (commands.go)

Slash commands typed into the input:

	/attach <path>   queue an image
	/detach [n]      remove attachment n (default: the last one)
	/files           list pending attachments
	/help            show commands
	/quit            exit

Pasting or dragging a file path into the input queues it.

## Rendering (render.go)

Assistant messages are rendered as Markdown with glamour; user messages and
failures use lipgloss boxes from the styles package.
*/
package chat
