// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the line-oriented commands
// of visionchat.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed command-line arguments with global and command flags
//   - Env: Configuration, logger and streams shared by every command
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdAsk:
//	    os.Exit(cli.HandleAsk(ctx, env, args))
//	case cli.CmdChat:
//	    os.Exit(cli.HandleChat(ctx, env, args))
//	}
//
// # Commands Overview
//
//   - (none), tui: Full-screen chat (default)
//   - ask: One question, answer streamed to stdout
//   - chat: Line-oriented chat with history
//   - config: Show, locate or create the configuration file
//   - key: Store, inspect or remove the API key file
//   - version, help
package cli
