// unload_check_test.go: Restart-free unload decision tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCanUnloadWithoutRestart(t *testing.T) {
	tests := []struct {
		name    string
		loaded  func() DiscoveredSet
		target  string
		blocked bool
	}{
		{
			name: "PlainPlugin",
			loaded: func() DiscoveredSet {
				return source(plugin("com.example.a", "1.0"))
			},
			target: "com.example.a",
		},
		{
			name: "RequiresRestart",
			loaded: func() DiscoveredSet {
				return source(plugin("com.example.a", "1.0", requireRestart()))
			},
			target:  "com.example.a",
			blocked: true,
		},
		{
			name: "DeclaresNonDynamicExtensionPoint",
			loaded: func() DiscoveredSet {
				return source(plugin("com.example.a", "1.0",
					extensionPoints(ExtensionPoint{Name: "com.example.a.handlers"})))
			},
			target:  "com.example.a",
			blocked: true,
		},
		{
			name: "DeclaresDynamicExtensionPoint",
			loaded: func() DiscoveredSet {
				return source(plugin("com.example.a", "1.0",
					extensionPoints(ExtensionPoint{Name: "com.example.a.handlers", Dynamic: true})))
			},
			target: "com.example.a",
		},
		{
			name: "ContributesToNonDynamicExtensionPoint",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers"})),
					plugin("com.example.a", "1.0", extends("com.example.host.handlers")))
			},
			target:  "com.example.a",
			blocked: true,
		},
		{
			name: "ContributesToDynamicExtensionPoint",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers", Dynamic: true})),
					plugin("com.example.a", "1.0", extends("com.example.host.handlers")))
			},
			target: "com.example.a",
		},
		{
			name: "ContentModuleContributes",
			loaded: func() DiscoveredSet {
				sub := content("com.example.a.impl", LoadingEmbedded)
				sub.Extensions = []string{"com.example.host.handlers"}
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers"})),
					plugin("com.example.a", "1.0", withContent(sub)))
			},
			target:  "com.example.a.impl",
			blocked: true,
		},
		{
			name: "OptionalDependentContributes",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers"})),
					plugin("com.example.a", "1.0"),
					plugin("com.example.b", "1.0", optionallyUses("com.example.a"), extends("com.example.host.handlers")))
			},
			target:  "com.example.a",
			blocked: true,
		},
		{
			name: "TransitiveOptionalDependentContributes",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers"})),
					plugin("com.example.a", "1.0"),
					plugin("com.example.b", "1.0", optionallyUses("com.example.a")),
					plugin("com.example.c", "1.0", optionallyUses("com.example.b"), extends("com.example.host.handlers")))
			},
			target:  "com.example.a",
			blocked: true,
		},
		{
			name: "RequiredDependentIsUnloadedWithTarget",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers", Dynamic: true})),
					plugin("com.example.a", "1.0"),
					plugin("com.example.b", "1.0", requires("com.example.a"), extends("com.example.host.handlers")))
			},
			target: "com.example.a",
		},
		{
			name: "RequiredDependentContributesToNonDynamicExtensionPoint",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.static"})),
					plugin("com.example.target", "1.0"),
					plugin("com.example.dep", "1.0", requires("com.example.target"), extends("com.example.host.static")))
			},
			target:  "com.example.target",
			blocked: true,
		},
		{
			name: "RequiredDependentRequiresRestart",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.target", "1.0"),
					plugin("com.example.dep2", "1.0", requires("com.example.target"), requireRestart()))
			},
			target:  "com.example.target",
			blocked: true,
		},
		{
			name: "RequiredDependentsBlockTogether",
			loaded: func() DiscoveredSet {
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.static"})),
					plugin("com.example.target", "1.0"),
					plugin("com.example.dep", "1.0", requires("com.example.target"), extends("com.example.host.static")),
					plugin("com.example.dep2", "1.0", requires("com.example.target"), requireRestart()))
			},
			target:  "com.example.target",
			blocked: true,
		},
		{
			name: "OptionalContentDependentContributes",
			loaded: func() DiscoveredSet {
				opt := content("com.example.c.opt", LoadingOptional, moduleEdge("com.example.a"))
				opt.Extensions = []string{"com.example.host.handlers"}
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers"})),
					plugin("com.example.a", "1.0"),
					plugin("com.example.c", "1.0", withContent(opt)))
			},
			target:  "com.example.a",
			blocked: true,
		},
		{
			name: "OptionalContentDependentContributesToDynamicPoint",
			loaded: func() DiscoveredSet {
				opt := content("com.example.c.opt", LoadingOptional, moduleEdge("com.example.a"))
				opt.Extensions = []string{"com.example.host.handlers"}
				return source(
					plugin("com.example.host", "1.0", extensionPoints(ExtensionPoint{Name: "com.example.host.handlers", Dynamic: true})),
					plugin("com.example.a", "1.0"),
					plugin("com.example.c", "1.0", withContent(opt)))
			},
			target: "com.example.a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := startRuntime(t, NewResolver(newTestContext()), tt.loaded())

			err := rt.CheckCanUnloadWithoutRestart(modID(tt.target))
			if !tt.blocked {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeUnloadRequiresRestart), "unexpected error: %v", err)

			before := moduleIDs(rt.LoadedModules())
			unloadErr := rt.Unload(context.Background(), modID(tt.target))
			assert.True(t, HasErrorCode(unloadErr, ErrCodeUnloadRequiresRestart))
			assert.Equal(t, before, moduleIDs(rt.LoadedModules()), "a blocked unload changes nothing")
		})
	}
}

func TestCheckCanUnloadWithoutRestart_UnknownModule(t *testing.T) {
	rt := NewRuntime(NewResolver(newTestContext()), nil)

	err := rt.CheckCanUnloadWithoutRestart(modID("com.example.missing"))
	require.Error(t, err)
	assert.True(t, HasErrorCode(err, ErrCodeModuleNotFound))
}
