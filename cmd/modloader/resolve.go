// resolve.go: The resolve command
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	modloader "github.com/agilira/go-modloader"
)

func newResolveCommand(opts *rootOptions) *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Discover plugins and print the load order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			res, metrics, err := e.resolve(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printResolution(out, res)
			if showMetrics && metrics != nil {
				printMetrics(out, metrics.GetMetrics())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print collected metrics after resolution")
	return cmd
}

func (e *env) resolve(cmd *cobra.Command) (*modloader.Resolution, modloader.MetricsCollector, error) {
	var disabled modloader.IDSet
	if e.cfg.DisabledPluginsFile != "" {
		store, err := e.store()
		if err != nil {
			return nil, nil, err
		}
		if disabled, err = store.Load(); err != nil {
			return nil, nil, err
		}
	}

	rc, err := e.cfg.NewResolutionContext(disabled)
	if err != nil {
		return nil, nil, err
	}

	set, err := modloader.NewDiscoverer(e.cfg.SearchPaths, e.logger).Discover(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	metrics := e.cfg.NewMetricsCollector(e.logger)
	opts := []modloader.ResolverOption{modloader.WithLogger(e.logger)}
	if metrics != nil {
		opts = append(opts, modloader.WithMetrics(metrics))
	}

	res, err := modloader.NewResolver(rc, opts...).Resolve(set)
	if err != nil {
		return nil, nil, err
	}
	return res, metrics, nil
}

func printResolution(w io.Writer, res *modloader.Resolution) {
	fmt.Fprintln(w, "Load order:")
	for i, m := range res.Hierarchy.Order() {
		line := fmt.Sprintf("  %3d. %s", i+1, moduleLabel(m))
		if loader, ok := res.Hierarchy.Loader(m); ok {
			if loader.Module() != m {
				line += " (loader " + loader.ID().String() + ")"
			}
			if parents := loader.Parents(); len(parents) > 0 {
				names := make([]string, len(parents))
				for j, p := range parents {
					names[j] = p.ID().String()
				}
				line += " <- " + strings.Join(names, ", ")
			}
		}
		fmt.Fprintln(w, line)
	}

	if len(res.Exclusions) == 0 {
		return
	}
	fmt.Fprintln(w, "Excluded:")
	for _, ex := range res.Exclusions {
		fmt.Fprintf(w, "  %s: %s\n", ex.Descriptor, ex.Reason)
	}
}

func moduleLabel(m modloader.Module) string {
	if d, ok := m.(*modloader.ModuleDescriptor); ok {
		return d.String()
	}
	return m.ModuleID().String() + " [content of " + m.Main().ID.String() + "]"
}

func printMetrics(w io.Writer, metrics map[string]interface{}) {
	fmt.Fprintln(w, "Metrics:")
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %v\n", k, metrics[k])
	}
}
