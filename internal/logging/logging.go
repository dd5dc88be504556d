// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger shared by every package.
//
// Records are written with log/slog's text handler to a log file, because the
// TUI owns the terminal. When the file cannot be opened the line-oriented
// commands fall back to stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a slog
// level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures New.
type Options struct {
	// Level is a level name understood by ParseLevel.
	Level string
	// File is the log file path. Empty means Fallback.
	File string
	// Fallback receives records when File is empty or cannot be opened.
	// Nil discards them.
	Fallback io.Writer
}

// New returns a logger and a close function for the underlying file.
// A file that cannot be opened is reported on stderr and replaced by Fallback.
func New(opts Options) (*slog.Logger, func() error) {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	noop := func() error { return nil }

	if opts.File != "" {
		f, err := openLogFile(opts.File)
		if err == nil {
			return slog.New(slog.NewTextHandler(f, handlerOpts)), f.Close
		}
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", opts.File, err)
	}

	if opts.Fallback == nil {
		return slog.New(slog.DiscardHandler), noop
	}
	return slog.New(slog.NewTextHandler(opts.Fallback, handlerOpts)), noop
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
