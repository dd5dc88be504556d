// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for visionchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env loading, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - EndpointConfig: Chat-completions URL, model and response mode
//   - CredentialsConfig: Where the bearer token is read from
//   - FileKeyStore: Owner-only token file
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (VISIONCHAT_*), including those set by ./.env
//   - ~/.visionchat/config.toml
//   - ~/.visionchat/config.json
//   - Built-in defaults
//
// The bearer token is never part of the file. It comes from the variable
// named by credentials.api_key_env or from the key file.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	key, source, err := cfg.ResolveAPIKey()
package config
