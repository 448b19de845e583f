// dependency_resolver_test.go: Dependency closure and re-admission tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyClosure_MissingDependencyCascades(t *testing.T) {
	// Discovery order puts the dependent before its missing dependency so
	// the cascade needs more than one pass.
	top := plugin("com.example.top", "1.0", requires("com.example.mid"))
	mid := plugin("com.example.mid", "1.0", requires("com.example.missing"))
	free := plugin("com.example.free", "1.0")

	type unresolvedEdge struct {
		owner  string
		target string
	}
	var unresolved []unresolvedEdge
	res := resolve(t, newTestContext(), source(top, mid, free),
		WithUnresolvedEdgeHandler(func(owner Module, edge DependencyEdge) {
			unresolved = append(unresolved, unresolvedEdge{owner.ModuleID().String(), edge.TargetID().String()})
		}))

	assert.Equal(t, []*ModuleDescriptor{free}, res.Enabled)

	midReason := reasonOf(t, res, mid)
	assert.Equal(t, ExclusionMissingRequiredDependency, midReason.Kind)
	assert.Equal(t, modID("com.example.missing"), midReason.ID)

	topReason := reasonOf(t, res, top)
	assert.Equal(t, ExclusionMissingRequiredDependency, topReason.Kind)
	assert.Equal(t, modID("com.example.mid"), topReason.ID)

	assert.Equal(t, []unresolvedEdge{{"com.example.mid", "com.example.missing"}}, unresolved)
}

func TestDependencyClosure_OptionalDependencyDoesNotExclude(t *testing.T) {
	a := plugin("com.example.a", "1.0", optionallyUses("com.example.missing"))

	res := resolve(t, newTestContext(), source(a))

	assert.Equal(t, []*ModuleDescriptor{a}, res.Enabled)
	assert.Empty(t, res.Exclusions)
}

func TestDependencyClosure_ReadmitsDisabledDependencyOfEssential(t *testing.T) {
	rc := newTestContext()
	rc.Essential.Add(modID("com.example.core"))
	rc.Disabled.Add(modID("com.example.lib"))
	rc.Disabled.Add(modID("com.example.unused"))
	core := plugin("com.example.core", "1.0", requires("com.example.lib"))
	lib := plugin("com.example.lib", "1.0")
	unused := plugin("com.example.unused", "1.0")

	res := resolve(t, rc, source(core, lib, unused))

	assert.Equal(t, []*ModuleDescriptor{core, lib}, res.Enabled)
	_, excluded := res.Reason(lib)
	assert.False(t, excluded, "a disabled plugin required by an essential plugin is re-admitted")
	assert.Equal(t, ExclusionIsMarkedDisabled, reasonOf(t, res, unused).Kind)
	assert.Equal(t, []string{"com.example.lib", "com.example.core"}, moduleIDs(res.Hierarchy.Order()))
}

func TestDependencyClosure_DisabledDependencyOfOrdinaryPlugin(t *testing.T) {
	rc := newTestContext()
	rc.Disabled.Add(modID("com.example.lib"))
	app := plugin("com.example.app", "1.0", requires("com.example.lib"))
	lib := plugin("com.example.lib", "1.0")

	res := resolve(t, rc, source(app, lib))

	assert.Empty(t, res.Enabled)
	assert.Equal(t, ExclusionIsMarkedDisabled, reasonOf(t, res, lib).Kind)
	reason := reasonOf(t, res, app)
	assert.Equal(t, ExclusionMissingRequiredDependency, reason.Kind)
	assert.Equal(t, modID("com.example.lib"), reason.ID)
}

func TestDependencyClosure_ExplicitSubset(t *testing.T) {
	rc := newTestContext()
	rc.ExplicitSubset = NewIDSet(modID("com.example.app"))
	rc.Disabled.Add(modID("com.example.lib"))
	app := plugin("com.example.app", "1.0", requires("com.example.lib"))
	lib := plugin("com.example.lib", "1.0", requires("com.example.base"))
	base := plugin("com.example.base", "1.0")
	other := plugin("com.example.other", "1.0")

	res := resolve(t, rc, source(app, lib, base, other))

	assert.Equal(t, []*ModuleDescriptor{app, lib, base}, res.Enabled)
	assert.Equal(t, ExclusionNotRequiredForExplicitSubset, reasonOf(t, res, other).Kind)
	assert.Equal(t, []string{"com.example.base", "com.example.lib", "com.example.app"}, moduleIDs(res.Hierarchy.Order()))
}

func TestDependencyClosure_ContentModules(t *testing.T) {
	t.Run("OptionalContentDegrades", func(t *testing.T) {
		opt := content("com.example.a.cloud", LoadingOptional, moduleEdge("com.example.cloud.api"))
		a := plugin("com.example.a", "1.0", withContent(opt))

		res := resolve(t, newTestContext(), source(a))

		assert.Equal(t, []*ModuleDescriptor{a}, res.Enabled)
		assert.Empty(t, res.Exclusions)
		assert.False(t, res.IsEnabled(modID("com.example.a.cloud")))
		assert.Equal(t, []string{"com.example.a"}, moduleIDs(res.Hierarchy.Order()))
	})

	t.Run("RequiredContentExcludesOwner", func(t *testing.T) {
		req := content("com.example.a.core", LoadingRequired, moduleEdge("com.example.cloud.api"))
		a := plugin("com.example.a", "1.0", withContent(req))
		dependent := plugin("com.example.b", "1.0", requires("com.example.a"))

		res := resolve(t, newTestContext(), source(a, dependent))

		assert.Empty(t, res.Enabled)
		reason := reasonOf(t, res, a)
		assert.Equal(t, ExclusionMissingRequiredDependency, reason.Kind)
		assert.Equal(t, modID("com.example.cloud.api"), reason.ID)
		assert.Equal(t, ExclusionMissingRequiredDependency, reasonOf(t, res, dependent).Kind)
	})

	t.Run("ModuleDependencyOnOptionalContent", func(t *testing.T) {
		api := content("com.example.cloud.api", LoadingOptional)
		cloud := plugin("com.example.cloud", "1.0", withContent(api))
		user := plugin("com.example.user", "1.0", withContent(
			content("com.example.user.cloud", LoadingOptional, moduleEdge("com.example.cloud.api"))))

		res := resolve(t, newTestContext(), source(cloud, user))

		assert.True(t, res.IsEnabled(modID("com.example.cloud.api")))
		assert.True(t, res.IsEnabled(modID("com.example.user.cloud")))
	})
}

func TestDependencyClosure_RequiredIfAvailable(t *testing.T) {
	newOwner := func() (*ModuleDescriptor, *SubModuleDescriptor) {
		sub := content("com.example.a.cloud", LoadingOptional, moduleEdge("com.example.cloud"))
		sub.RequiredIfAvailable = modID("com.example.cloud")
		return plugin("com.example.a", "1.0", withContent(sub)), sub
	}

	t.Run("PromotedWhenCandidateExists", func(t *testing.T) {
		rc := newTestContext()
		a, sub := newOwner()
		cloud := plugin("com.example.cloud", "1.0")

		res := resolve(t, rc, source(a, cloud))

		assert.Equal(t, LoadingRequired, rc.EffectiveRule(sub))
		assert.True(t, res.IsEnabled(modID("com.example.a.cloud")))
	})

	t.Run("StaysOptionalWithoutCandidate", func(t *testing.T) {
		rc := newTestContext()
		a, sub := newOwner()

		res := resolve(t, rc, source(a))

		assert.Equal(t, LoadingOptional, rc.EffectiveRule(sub))
		assert.Equal(t, []*ModuleDescriptor{a}, res.Enabled)
		assert.False(t, res.IsEnabled(modID("com.example.a.cloud")))
	})

	t.Run("CapabilityMapDecides", func(t *testing.T) {
		rc := newTestContext()
		rc.ProductMode = "server"
		rc.Capabilities = NewStaticCapabilityMap("server").Provide("server", modID("com.example.cloud"))
		a, sub := newOwner()

		res := resolve(t, rc, source(a))

		// Promoted by the capability map, then the owner fails because the
		// capability has no loadable module.
		assert.Equal(t, LoadingRequired, rc.EffectiveRule(sub))
		assert.Empty(t, res.Enabled)
		assert.Equal(t, ExclusionMissingRequiredDependency, reasonOf(t, res, a).Kind)
	})
}

func TestDependencyClosure_EmbeddedContentFollowsOwner(t *testing.T) {
	emb := content("com.example.a.impl", LoadingEmbedded)
	a := plugin("com.example.a", "1.0", withContent(emb))
	b := plugin("com.example.b", "1.0", withContent(
		content("com.example.b.impl", LoadingRequired, moduleEdge("com.example.a.impl"))))

	res := resolve(t, newTestContext(), source(a, b))
	require.Equal(t, []*ModuleDescriptor{a, b}, res.Enabled)
	assert.True(t, res.IsEnabled(modID("com.example.a.impl")))
	assert.True(t, res.IsEnabled(modID("com.example.b.impl")))
}
