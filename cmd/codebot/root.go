// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/codebot/codebot/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the codebot CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codebot",
		Short: "codebot - authentication core",
		Long: `codebot serves user registration, login and session checks over HTTP,
with Argon2id password hashing, sliding idle sessions and per-client rate limits.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/codebot/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig resolves the configuration for cmd, honoring the flags
// registered with config.BindFlags when cmd has them.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{File: configFile, Flags: cmd.Flags()})
}
