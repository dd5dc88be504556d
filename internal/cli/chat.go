// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/config"
	"github.com/jeranaias/visionchat/internal/session"
	"github.com/jeranaias/visionchat/internal/util"
)

const chatPrompt = "you> "

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI that keeps its history in historyFile.
// An empty historyFile disables persistence.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// Prompt reads a line of input. Non-blank lines are added to the history.
func (c *ChatCLI) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// prompter reads one line of input.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// HandleChat runs the line-oriented chat. It returns the process exit code.
func HandleChat(ctx context.Context, env Env, args Args) int {
	ctrl, client, err := BuildSession(env)
	if err != nil {
		fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
		return 1
	}

	if !args.Quiet {
		fmt.Fprintln(env.Stdout, TitleStyle.Render("visionchat")+" "+DimStyle.Render(client.Model()+" @ "+client.Endpoint()))
		fmt.Fprintln(env.Stdout, DimStyle.Render("/attach <path>  /detach [n]  /files  /quit   (Ctrl+D to exit)"))
	}

	historyFile, err := config.HistoryPath()
	if err != nil {
		historyFile = ""
	}
	line := NewChatCLI(historyFile)
	defer line.Close()

	return runChat(ctx, env, ctrl, line)
}

// runChat is the read-submit loop, separated from the terminal for tests.
func runChat(ctx context.Context, env Env, ctrl *session.Controller, in prompter) int {
	out := newDeltaWriter(env.Stdout)
	ctrl.SetObserver(out.observe)

	for {
		if ctx.Err() != nil {
			return 0
		}

		input, err := in.Prompt(chatPrompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Fprintln(env.Stdout)
			return 0
		}
		if err != nil {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}

		trimmed := strings.TrimSpace(input)
		if strings.HasPrefix(trimmed, "/") {
			if quit := runChatCommand(env, ctrl, trimmed); quit {
				return 0
			}
			continue
		}
		if path, ok := attach.ParsePastedPath(trimmed); ok {
			attachFile(env, ctrl, path)
			continue
		}
		if trimmed == "" && ctrl.Attachments().Len() == 0 {
			continue
		}

		assistantLabel.Fprint(env.Stdout, "assistant> ")
		out.Reset()
		err = ctrl.Submit(ctx, input)
		if !strings.HasSuffix(out.Text(), "\n") {
			fmt.Fprintln(env.Stdout)
		}
		if err != nil {
			errorLabel.Fprintln(env.Stdout, session.FailureText)
			env.logger().Debug("chat submission failed", "error", err)
		}
	}
}

// runChatCommand handles a slash command and reports whether to exit.
func runChatCommand(env Env, ctrl *session.Controller, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/q", "/exit":
		return true

	case "/attach", "/a":
		if arg == "" {
			errorLabel.Fprintln(env.Stdout, "usage: /attach <path>")
			return false
		}
		path, ok := attach.ParsePastedPath(arg)
		if !ok {
			path = util.ExpandHome(arg)
		}
		attachFile(env, ctrl, path)

	case "/detach", "/d":
		i := ctrl.Attachments().Len() - 1
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				errorLabel.Fprintln(env.Stdout, "usage: /detach [n]")
				return false
			}
			i = n - 1
		}
		if a, ok := ctrl.Attachments().Remove(i); ok {
			noticeLabel.Fprintln(env.Stdout, "removed "+a.Name)
		} else {
			errorLabel.Fprintln(env.Stdout, "no attachment to remove")
		}

	case "/files", "/f":
		items := ctrl.Attachments().Items()
		if len(items) == 0 {
			noticeLabel.Fprintln(env.Stdout, "no pending attachments")
			return false
		}
		for i, a := range items {
			noticeLabel.Fprintf(env.Stdout, "%d. %s (%s)\n", i+1, a.Name, util.FormatBytes(a.Size))
		}

	case "/help", "/h", "/?":
		fmt.Fprintln(env.Stdout, DimStyle.Render("/attach <path>  /detach [n]  /files  /quit"))

	default:
		errorLabel.Fprintln(env.Stdout, "unknown command "+name)
	}
	return false
}

func attachFile(env Env, ctrl *session.Controller, path string) {
	a, err := ctrl.Attachments().Add(path)
	if err != nil {
		errorLabel.Fprintln(env.Stdout, err.Error())
		return
	}
	noticeLabel.Fprintf(env.Stdout, "attached %s (%s)\n", a.Name, util.FormatBytes(a.Size))
}
