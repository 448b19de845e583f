// root.go: Root command and shared command state
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/agilira/argus"
	"github.com/spf13/cobra"

	modloader "github.com/agilira/go-modloader"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "modloader",
		Short: "Resolve plugin sets and manage the disabled-plugin list",
		Long: `modloader discovers plugin manifests on the configured search paths,
runs the module resolution pipeline and prints the resulting load order.

The disable and enable commands edit the persisted disabled-plugin set.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "modloader.yaml", "resolver configuration file (JSON, YAML or TOML)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newResolveCommand(opts),
		newDisableCommand(opts),
		newEnableCommand(opts),
	)
	return cmd
}

// env is the state loaded once per command run.
type env struct {
	cfg    modloader.ResolverConfig
	logger modloader.Logger
	audit  *argus.AuditLogger
}

func loadEnv(cmd *cobra.Command, opts *rootOptions) (*env, error) {
	logger := newCharmLogger(cmd.ErrOrStderr(), opts.verbose)

	cfg, err := modloader.LoadResolverConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if cfg.Audit.Enabled {
		audit, err := argus.NewAuditLogger(cfg.AuditConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create audit logger: %w", err)
		}
		e.audit = audit
	}
	return e, nil
}

func (e *env) close() {
	if e.audit != nil {
		if err := e.audit.Close(); err != nil {
			e.logger.Warn("Failed to close audit logger", "error", err)
		}
	}
}

func (e *env) store() (*modloader.DisabledStore, error) {
	if e.cfg.DisabledPluginsFile == "" {
		return nil, modloader.NewConfigValidationError("disabled_plugins_file is not configured", nil)
	}
	store := modloader.NewDisabledStore(e.cfg.DisabledPluginsFile, e.logger)
	if e.audit != nil {
		store.WithAuditLogger(e.audit)
	}
	return store, nil
}
