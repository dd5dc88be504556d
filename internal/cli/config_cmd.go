// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/visionchat/internal/config"
)

// HandleConfig runs "config show|path|init". It returns the exit code.
func HandleConfig(env Env, args Args) int {
	switch args.Subcommand {
	case "show", "":
		return showConfig(env)
	case "path":
		path, err := config.ConfigPathTOML()
		if err != nil {
			fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
			return 1
		}
		fmt.Fprintln(env.Stdout, path)
		return 0
	case "init":
		return initConfig(env, args.Force)
	default:
		fmt.Fprintf(env.Stderr, "%s unknown config subcommand %q (show, path, init)\n", ErrorStyle.Render("Error:"), args.Subcommand)
		return 1
	}
}

func showConfig(env Env) int {
	cfg := env.Config
	fmt.Fprintln(env.Stdout, TitleStyle.Render("visionchat configuration"))
	fmt.Fprintln(env.Stdout, cfg.String())

	key, source, err := cfg.ResolveAPIKey()
	switch {
	case errors.Is(err, config.ErrNoCredential):
		fmt.Fprintln(env.Stdout, RenderLabel("api key")+DimStyle.Render("[not set]"))
	case err != nil:
		fmt.Fprintln(env.Stdout, RenderLabel("api key")+ErrorStyle.Render(err.Error()))
	default:
		fmt.Fprintln(env.Stdout, RenderLabel("api key")+config.Redact(key)+DimStyle.Render(" ("+string(source)+")"))
	}
	return 0
}

func initConfig(env Env, force bool) int {
	path, err := config.ConfigPathTOML()
	if err != nil {
		fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
		return 1
	}
	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(env.Stderr, "%s %s already exists (use --force to overwrite)\n", ErrorStyle.Render("Error:"), path)
		return 1
	}
	if err := config.Save(config.Default()); err != nil {
		fmt.Fprintln(env.Stderr, ErrorStyle.Render("Error:")+" "+err.Error())
		return 1
	}
	fmt.Fprintln(env.Stdout, SuccessStyle.Render("wrote")+" "+path)
	return 0
}
