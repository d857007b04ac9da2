// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeBot Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codebot/codebot/internal/config"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration serve would run with, after the config file,
environment and flags are applied. Passwords in URLs are masked.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
	config.BindFlags(show.Flags())
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [FILE]",
		Short: "Check a config file against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigValidate,
	})

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return oops.Code("CONFIG_MARSHAL_FAILED").Wrap(err)
	}
	cmd.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := config.Load(config.Options{File: path}); err != nil {
		return err
	}

	if path == "" {
		cmd.Println("configuration is valid")
		return nil
	}
	cmd.Printf("%s is valid\n", path)
	return nil
}
