// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/visionchat/internal/session"
	"github.com/jeranaias/visionchat/internal/util"
)

// HandleAsk sends one question with any --file images and streams the
// answer to stdout. It returns the process exit code.
func HandleAsk(ctx context.Context, env Env, args Args) int {
	if strings.TrimSpace(args.Query) == "" && len(args.Files) == 0 {
		fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+` no question given. Usage: visionchat ask [-f FILE]... "question"`)
		return 1
	}

	ctrl, _, err := BuildSession(env)
	if err != nil {
		fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
		return 1
	}

	for _, f := range args.Files {
		a, err := ctrl.Attachments().Add(util.ExpandHome(f))
		if err != nil {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}
		if !args.Quiet {
			fmt.Fprintln(env.Stderr, DimStyle.Render(fmt.Sprintf("attached %s (%s, %s)", a.Name, a.MediaType, util.FormatBytes(a.Size))))
		}
	}

	out := newDeltaWriter(env.Stdout)
	ctrl.SetObserver(out.observe)

	err = ctrl.Submit(ctx, args.Query)
	text := out.Text()
	if err != nil {
		if text != "" {
			fmt.Fprintln(env.Stdout)
		}
		fmt.Fprintln(env.Stderr, ErrorStyle.Render(session.FailureText))
		if !args.Quiet {
			fmt.Fprintln(env.Stderr, DimStyle.Render(err.Error()))
		}
		return 1
	}

	if text != "" && IsTerminal(env.Stdout) {
		replaceStreamed(env.Stdout, text, env.Config.UI.Theme)
		return 0
	}
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(env.Stdout)
	}
	return 0
}
