// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdConfig
	CmdKey
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdConfig:
		return "config"
	case CmdKey:
		return "key"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet    bool
	Verbose  bool
	Model    string
	URL      string
	Buffered bool
	Theme    string

	// Command-specific
	Query      string
	Files      []string
	Subcommand string
	Force      bool

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `visionchat - chat with a vision-language model from the terminal

Usage:
  visionchat                          Start the full-screen chat (default)
  visionchat ask [-f FILE]... "text"  Ask one question, stream the answer
  visionchat chat                     Line-oriented chat with history
  visionchat config [show|path|init]  Configuration
  visionchat key [set|status|clear]   Manage the API key file
  visionchat version                  Show version
  visionchat help                     Show this help

Global flags:
  -m, --model NAME   Model to request
      --url URL      Chat-completions endpoint URL
      --buffered     Wait for the whole answer instead of streaming
      --theme NAME   auto, dark or light
  -q, --quiet        Only print the answer
  -v, --verbose      Log debug records to stderr

Images (jpeg, png, gif, webp) are sent inline. The API key is read from
$VISIONCHAT_API_KEY, a .env file, or the key file (see "visionchat key").

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "visionchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	// If no remaining args, default to TUI
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs

	case "chat", "c":
		return CmdChat, parsedArgs

	case "config":
		parseSubcommandArgs(&parsedArgs, remaining, "show")
		return CmdConfig, parsedArgs

	case "key":
		parseSubcommandArgs(&parsedArgs, remaining, "status")
		return CmdKey, parsedArgs

	case "version", "--version":
		return CmdVersion, parsedArgs

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs

	default:
		// Treat unknown command as a question for convenience
		parseAskArgs(&parsedArgs, append([]string{cmd}, remaining...))
		return CmdAsk, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from args and returns remaining args.
// Flags after "ask" are left for parseAskArgs.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--buffered", "--no-stream":
			parsedArgs.Buffered = true
		case "-m", "--model":
			if i+1 < len(args) {
				i++
				parsedArgs.Model = args[i]
			}
		case "--url":
			if i+1 < len(args) {
				i++
				parsedArgs.URL = args[i]
			}
		case "--theme":
			if i+1 < len(args) {
				i++
				parsedArgs.Theme = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsedArgs.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--url="):
				parsedArgs.URL = strings.TrimPrefix(arg, "--url=")
			case strings.HasPrefix(arg, "--theme="):
				parsedArgs.Theme = strings.TrimPrefix(arg, "--theme=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs
}

// parseAskArgs parses ask command specific arguments.
func parseAskArgs(args *Args, remaining []string) {
	var query []string

	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]

		switch arg {
		case "-f", "--file", "-i", "--image":
			if i+1 < len(remaining) {
				i++
				args.Files = append(args.Files, remaining[i])
			}
		case "--":
			query = append(query, remaining[i+1:]...)
			i = len(remaining)
		default:
			switch {
			case strings.HasPrefix(arg, "--file="):
				args.Files = append(args.Files, strings.TrimPrefix(arg, "--file="))
			case strings.HasPrefix(arg, "--image="):
				args.Files = append(args.Files, strings.TrimPrefix(arg, "--image="))
			case !strings.HasPrefix(arg, "-") || arg == "-":
				query = append(query, arg)
			}
		}
	}

	args.Query = strings.Join(query, " ")
}

// parseSubcommandArgs reads an optional subcommand and --force.
func parseSubcommandArgs(args *Args, remaining []string, def string) {
	args.Subcommand = def
	var rest []string
	for _, arg := range remaining {
		if arg == "--force" {
			args.Force = true
			continue
		}
		rest = append(rest, arg)
	}
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "-") {
		args.Subcommand = strings.ToLower(rest[0])
		rest = rest[1:]
	}
	args.Raw = rest
}
