// visionchat - A terminal chat client for vision language models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/cli"
	"github.com/jeranaias/visionchat/internal/config"
	"github.com/jeranaias/visionchat/internal/logging"
	"github.com/jeranaias/visionchat/internal/stream"
	"github.com/jeranaias/visionchat/internal/ui/chat"
	"github.com/jeranaias/visionchat/internal/ui/styles"
	"github.com/jeranaias/visionchat/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd, args := cli.Parse(argv)

	// Commands that need no configuration.
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return 0
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	cli.ApplyArgs(cfg, args)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}
	config.SetGlobal(cfg)

	logger, closeLog := newLogger(cmd, cfg, args)
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := cli.DefaultEnv(cfg, logger)
	env.Metrics = startMetrics(ctx, cfg.Metrics.Listen, logger)

	switch cmd {
	case cli.CmdTUI:
		return runTUI(ctx, env)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, env, args)
	case cli.CmdChat:
		return cli.HandleChat(ctx, env, args)
	case cli.CmdConfig:
		return cli.HandleConfig(env, args)
	case cli.CmdKey:
		return cli.HandleKey(env, args)
	default:
		cli.PrintUsage(os.Stderr)
		return 1
	}
}

// newLogger writes to the configured log file. The line-oriented commands
// fall back to stderr; -v raises the level to debug.
func newLogger(cmd cli.Command, cfg *config.Config, args cli.Args) (*slog.Logger, func() error) {
	opts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}
	if args.Verbose {
		opts.Level = "debug"
	}
	if cmd != cli.CmdTUI && !args.Quiet {
		opts.Fallback = os.Stderr
		if args.Verbose {
			opts.File = ""
		}
	}
	return logging.New(opts)
}

// startMetrics registers the stream metrics and serves them on listen.
// An empty listen address keeps the metrics in memory only.
func startMetrics(ctx context.Context, listen string, logger *slog.Logger) *stream.Metrics {
	if listen == "" {
		m, _ := stream.NewMetrics(nil)
		return m
	}

	reg := prometheus.NewRegistry()
	m, err := stream.NewMetrics(reg)
	if err != nil {
		logger.Warn("failed to register metrics", "error", err)
		m, _ = stream.NewMetrics(nil)
		return m
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return m
}

// runTUI starts the full-screen chat.
func runTUI(ctx context.Context, env cli.Env) int {
	cfg := env.Config
	ctrl, client, err := cli.BuildSession(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	dropDir := util.ExpandHome(cfg.Attachments.DropDir)
	theme := styles.NewTheme(cfg.UI.Theme)
	m := chat.New(ctx, ctrl, theme, chat.Options{
		ModelName: client.Model(),
		Endpoint:  client.Endpoint(),
		DropDir:   dropDir,
		WordWrap:  cfg.UI.WordWrap,
	})

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	ctrl.SetObserver(chat.Observer(p))

	if dropDir != "" {
		w, err := attach.NewWatcher(dropDir, ctrl.Attachments(),
			attach.WithWatcherLogger(env.Logger),
			attach.WithNotify(chat.DropNotifier(p)),
		)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			env.Logger.Warn("drop folder disabled", "dir", dropDir, "error", err)
		} else {
			defer w.Close()
		}
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return 1
	}
	return 0
}
