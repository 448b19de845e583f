// helpers_test.go: Descriptor builders shared by the package tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type descriptorOption func(*ModuleDescriptor)

// plugin builds a bound descriptor in the default namespace.
func plugin(id, version string, opts ...descriptorOption) *ModuleDescriptor {
	d := &ModuleDescriptor{ID: NewModuleID(id), Version: version}
	for _, opt := range opts {
		opt(d)
	}
	return d.Bind()
}

func requires(ids ...string) descriptorOption {
	return func(d *ModuleDescriptor) {
		for _, id := range ids {
			d.Dependencies = append(d.Dependencies, PluginEdge{Target: NewModuleID(id), Required: true})
		}
	}
}

func legacyRequires(ids ...string) descriptorOption {
	return func(d *ModuleDescriptor) {
		for _, id := range ids {
			d.Dependencies = append(d.Dependencies, PluginEdge{Target: NewModuleID(id), Required: true, Legacy: true})
		}
	}
}

func optionallyUses(ids ...string) descriptorOption {
	return func(d *ModuleDescriptor) {
		for _, id := range ids {
			d.Dependencies = append(d.Dependencies, PluginEdge{Target: NewModuleID(id), Legacy: true})
		}
	}
}

func aliases(ids ...string) descriptorOption {
	return func(d *ModuleDescriptor) {
		for _, id := range ids {
			d.Aliases = append(d.Aliases, NewModuleID(id))
		}
	}
}

func buildRange(since, until string) descriptorOption {
	return func(d *ModuleDescriptor) {
		d.SinceBuild = since
		d.UntilBuild = until
	}
}

func packagePrefix(prefix string) descriptorOption {
	return func(d *ModuleDescriptor) { d.PackagePrefix = prefix }
}

func incompatibleWith(ids ...string) descriptorOption {
	return func(d *ModuleDescriptor) {
		for _, id := range ids {
			d.IncompatibleWith = append(d.IncompatibleWith, NewModuleID(id))
		}
	}
}

func extensionPoints(points ...ExtensionPoint) descriptorOption {
	return func(d *ModuleDescriptor) { d.ExtensionPoints = append(d.ExtensionPoints, points...) }
}

func extends(names ...string) descriptorOption {
	return func(d *ModuleDescriptor) { d.Extensions = append(d.Extensions, names...) }
}

func requireRestart() descriptorOption {
	return func(d *ModuleDescriptor) { d.RequireRestart = true }
}

func implementationDetail() descriptorOption {
	return func(d *ModuleDescriptor) { d.ImplementationDetail = true }
}

func withContent(subs ...*SubModuleDescriptor) descriptorOption {
	return func(d *ModuleDescriptor) { d.Content = append(d.Content, subs...) }
}

// content builds a content module; bind it through withContent.
func content(id string, rule LoadingRule, deps ...DependencyEdge) *SubModuleDescriptor {
	return &SubModuleDescriptor{ID: NewModuleID(id), Rule: rule, Dependencies: deps}
}

func moduleEdge(id string) DependencyEdge {
	return ModuleEdge{Target: NewModuleID(id)}
}

func source(ds ...*ModuleDescriptor) DiscoveredSet {
	return DiscoveredSet{{Kind: SourceCustom, Descriptors: ds}}
}

func modID(s string) ModuleID { return NewModuleID(s) }

func moduleIDs(ms []Module) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ModuleID().String()
	}
	return out
}

func descriptorIDs(ds []*ModuleDescriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID.String()
	}
	return out
}

func newTestContext() *ResolutionContext {
	return NewResolutionContext(BuildNumber{})
}

// resolve runs a resolver over set and fails the test on error.
func resolve(t *testing.T, rc *ResolutionContext, set DiscoveredSet, opts ...ResolverOption) *Resolution {
	t.Helper()
	res, err := NewResolver(rc, opts...).Resolve(set)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// reasonOf returns the exclusion reason of d and fails when d was not
// excluded.
func reasonOf(t *testing.T, res *Resolution, d *ModuleDescriptor) ExclusionReason {
	t.Helper()
	r, ok := res.Reason(d)
	require.Truef(t, ok, "%s should be excluded", d)
	return r
}

func loaderOf(t *testing.T, res *Resolution, m Module) *Loader {
	t.Helper()
	l, ok := res.Hierarchy.Loader(m)
	require.Truef(t, ok, "%s should have a loader", m.ModuleID())
	return l
}
