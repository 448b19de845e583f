// store.go: The disable and enable commands
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	modloader "github.com/agilira/go-modloader"
)

func newDisableCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <plugin-id>...",
		Short: "Add plugins to the disabled set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editDisabledSet(cmd, opts, args, true)
		},
	}
}

func newEnableCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <plugin-id>...",
		Short: "Remove plugins from the disabled set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editDisabledSet(cmd, opts, args, false)
		},
	}
}

func editDisabledSet(cmd *cobra.Command, opts *rootOptions, args []string, disable bool) error {
	e, err := loadEnv(cmd, opts)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := e.store()
	if err != nil {
		return err
	}

	ids := make([]modloader.ModuleID, len(args))
	for i, arg := range args {
		ids[i] = modloader.ParseModuleID(arg)
	}

	var changed bool
	if disable {
		changed, err = store.Disable(ids...)
	} else {
		changed, err = store.Enable(ids...)
	}
	if err != nil {
		return err
	}

	if !changed {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes")
		return nil
	}
	verb := "Enabled"
	if disable {
		verb = "Disabled"
	}
	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, id)
	}
	return nil
}
