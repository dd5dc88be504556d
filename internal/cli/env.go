// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jeranaias/visionchat/internal/attach"
	"github.com/jeranaias/visionchat/internal/cloud"
	"github.com/jeranaias/visionchat/internal/config"
	"github.com/jeranaias/visionchat/internal/session"
	"github.com/jeranaias/visionchat/internal/stream"
)

// Env carries what every command needs.
type Env struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *stream.Metrics

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultEnv returns an Env on the process streams.
func DefaultEnv(cfg *config.Config, logger *slog.Logger) Env {
	return Env{
		Config: cfg,
		Logger: logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// ApplyArgs copies global flag overrides into the configuration.
func ApplyArgs(cfg *config.Config, args Args) {
	if args.Model != "" {
		cfg.Endpoint.Model = args.Model
	}
	if args.URL != "" {
		cfg.Endpoint.URL = args.URL
	}
	if args.Buffered {
		cfg.Endpoint.Stream = false
	}
	if args.Theme != "" {
		cfg.UI.Theme = args.Theme
	}
}

// NewClient resolves the credential and builds the endpoint client. A
// missing credential is allowed; endpoints that need one answer 401.
func NewClient(env Env) (*cloud.Client, error) {
	cfg := env.Config
	key, source, err := cfg.ResolveAPIKey()
	switch {
	case errors.Is(err, config.ErrNoCredential):
		env.logger().Info("no API key configured, sending requests without Authorization")
	case err != nil:
		return nil, fmt.Errorf("failed to load API key: %w", err)
	default:
		env.logger().Debug("API key loaded", "source", source, "fingerprint", config.Fingerprint(key))
	}

	return cloud.NewClient(cfg.Endpoint.URL, key, cfg.Endpoint.Model,
		cloud.WithTimeout(cfg.Endpoint.Timeout()),
		cloud.WithLogger(env.logger()),
		cloud.WithUserAgent("visionchat/"+Version),
	), nil
}

// NewController wires the client, stream engine and attachment queue into a
// session controller.
func NewController(env Env, backend session.Backend) *session.Controller {
	cfg := env.Config
	engine := stream.NewEngine(
		stream.WithFlushInterval(cfg.UI.FlushInterval()),
		stream.WithLogger(env.logger()),
		stream.WithMetrics(env.Metrics),
	)
	return session.New(backend, engine, attach.NewQueue(cfg.Attachments.MaxBytes), session.Config{
		Stream: cfg.Endpoint.Stream,
		Logger: env.logger(),
	})
}

// BuildSession is NewClient followed by NewController.
func BuildSession(env Env) (*session.Controller, *cloud.Client, error) {
	client, err := NewClient(env)
	if err != nil {
		return nil, nil, err
	}
	return NewController(env, client), client, nil
}
