// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/visionchat/internal/config"
)

// HandleKey runs "key set|status|clear". It returns the exit code.
//
// SECURITY: The key is never accepted as an argument, where it would land in
// shell history; "set" reads it from the terminal without echo or from stdin.
func HandleKey(env Env, args Args) int {
	ks := env.Config.KeyStore()

	switch args.Subcommand {
	case "set":
		if len(args.Raw) > 0 {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" pass the key on stdin, not as an argument")
			return 1
		}
		key, err := readSecret(env, "API key: ")
		if err != nil {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}
		if err := ks.Store(key); err != nil {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}
		fmt.Fprintf(env.Stdout, "%s key stored in %s (fingerprint %s)\n",
			SuccessStyle.Render("ok"), ks.Path(), config.Fingerprint(key))
		return 0

	case "status", "":
		key, source, err := env.Config.ResolveAPIKey()
		switch {
		case errors.Is(err, config.ErrNoCredential):
			fmt.Fprintln(env.Stdout, "api key: [not set]")
			return 0
		case err != nil:
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}
		fmt.Fprintf(env.Stdout, "api key: %s from %s\n", config.Redact(key), source)
		return 0

	case "clear", "delete", "rm":
		if err := ks.Delete(); err != nil {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}
		fmt.Fprintln(env.Stdout, SuccessStyle.Render("ok")+" key file removed")
		return 0

	default:
		fmt.Fprintf(env.Stderr, "%s unknown key subcommand %q (set, status, clear)\n", ErrorStyle.Render("Error:"), args.Subcommand)
		return 1
	}
}

// readSecret reads a secret without echo from a terminal, or the first line
// of a non-terminal stdin.
func readSecret(env Env, prompt string) (string, error) {
	if f, ok := env.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(env.Stderr, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(env.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(env.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
