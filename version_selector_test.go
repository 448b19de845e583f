// version_selector_test.go: Version and compatibility selection tests
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

func TestSelectVersions_GreatestVersionWithinSource(t *testing.T) {
	old := plugin("com.example.git", "1.0")
	newer := plugin("com.example.git", "2.0")
	middle := plugin("com.example.git", "1.5")

	res := resolve(t, newTestContext(), source(old, newer, middle))

	assert.Equal(t, []*ModuleDescriptor{newer}, res.Enabled)
	for _, d := range []*ModuleDescriptor{old, middle} {
		reason := reasonOf(t, res, d)
		assert.Equal(t, ExclusionVersionSuperseded, reason.Kind)
		assert.Equal(t, modID("com.example.git"), reason.ID)
		assert.Equal(t, "2.0", reason.Detail)
	}
}

func TestSelectVersions_EarlierSourceWins(t *testing.T) {
	bundled := plugin("com.example.git", "1.0")
	custom := plugin("com.example.git", "3.0")
	set := DiscoveredSet{
		{Kind: SourceSystemPropertyProvided, Descriptors: []*ModuleDescriptor{bundled}},
		{Kind: SourceCustom, Descriptors: []*ModuleDescriptor{custom}},
	}

	res := resolve(t, newTestContext(), set)

	assert.Equal(t, []*ModuleDescriptor{bundled}, res.Enabled)
	assert.Equal(t, ExclusionVersionSuperseded, reasonOf(t, res, custom).Kind)
}

func TestSelectVersions_EqualVersionsKeepFirst(t *testing.T) {
	first := plugin("com.example.git", "1.0")
	second := plugin("com.example.git", "1.0")

	res := resolve(t, newTestContext(), source(first, second))

	assert.Equal(t, []*ModuleDescriptor{first}, res.Enabled)
	assert.Equal(t, ExclusionVersionSuperseded, reasonOf(t, res, second).Kind)
}

func TestSelectVersions_BuildCompatibility(t *testing.T) {
	rc := NewResolutionContext(MustParseBuildNumber("IC-241.15989"))
	tooOld := plugin("com.example.old", "1.0", buildRange("", "233.*"))
	tooNew := plugin("com.example.new", "1.0", buildRange("242", ""))
	fits := plugin("com.example.fits", "1.0", buildRange("241", "241.*"))
	// The newest version is incompatible, so the older compatible one wins.
	gitNew := plugin("com.example.git", "2.0", buildRange("242.1", ""))
	gitOld := plugin("com.example.git", "1.0", buildRange("233", ""))

	res := resolve(t, rc, source(tooOld, tooNew, fits, gitNew, gitOld))

	assert.Equal(t, []*ModuleDescriptor{fits, gitOld}, res.Enabled)

	until := reasonOf(t, res, tooOld)
	assert.Equal(t, ExclusionUntilBuildViolation, until.Kind)
	assert.Equal(t, "233.*", until.Detail)

	since := reasonOf(t, res, tooNew)
	assert.Equal(t, ExclusionSinceBuildViolation, since.Kind)
	assert.Equal(t, "242", since.Detail)

	assert.Equal(t, ExclusionSinceBuildViolation, reasonOf(t, res, gitNew).Kind)
}

func TestSelectVersions_AllCandidatesIncompatible(t *testing.T) {
	rc := NewResolutionContext(MustParseBuildNumber("241.1"))
	a := plugin("com.example.a", "1.0", buildRange("250", ""))
	b := plugin("com.example.a", "2.0", buildRange("", "200"))

	res := resolve(t, rc, source(a, b))

	assert.Empty(t, res.Enabled)
	assert.Len(t, res.Exclusions, 2)
}

func TestSelectVersions_Expired(t *testing.T) {
	rc := newTestContext()
	rc.Expired.Add(modID("com.example.trial"))
	rc.Essential.Add(modID("com.example.trial"))
	trial := plugin("com.example.trial", "1.0")

	res := resolve(t, rc, source(trial))

	assert.Empty(t, res.Enabled)
	assert.Equal(t, ExclusionExpired, reasonOf(t, res, trial).Kind)
}

func TestSelectVersions_LoadingDisabledCompletely(t *testing.T) {
	rc := newTestContext()
	rc.DisableLoadingCompletely = true
	rc.AlwaysOn.Add(modID("com.example.core"))
	core := plugin("com.example.core", "1.0")
	extra := plugin("com.example.extra", "1.0")

	res := resolve(t, rc, source(core, extra))

	assert.Equal(t, []*ModuleDescriptor{core}, res.Enabled)
	assert.Equal(t, ExclusionLoadingDisabledCompletely, reasonOf(t, res, extra).Kind)
}

func TestSelectVersions_Disabled(t *testing.T) {
	rc := newTestContext()
	rc.Disabled.Add(modID("com.example.off"))
	rc.Disabled.Add(modID("com.example.core"))
	rc.Essential.Add(modID("com.example.core"))
	off := plugin("com.example.off", "1.0")
	core := plugin("com.example.core", "1.0")

	res := resolve(t, rc, source(off, core))

	assert.Equal(t, []*ModuleDescriptor{core}, res.Enabled, "essential plugins ignore the disabled set")
	assert.Equal(t, ExclusionIsMarkedDisabled, reasonOf(t, res, off).Kind)
}

func TestSelectVersions_IncompatiblePlugins(t *testing.T) {
	a := plugin("com.example.a", "1.0", incompatibleWith("com.example.legacy"))
	b := plugin("com.example.b", "1.0", aliases("com.example.legacy"))
	c := plugin("com.example.c", "1.0", incompatibleWith("com.example.missing"))

	res := resolve(t, newTestContext(), source(a, b, c))

	assert.Equal(t, []*ModuleDescriptor{b, c}, res.Enabled)
	reason := reasonOf(t, res, a)
	assert.Equal(t, ExclusionIsIncompatibleWithAnotherPlugin, reason.Kind)
	assert.Equal(t, modID("com.example.b"), reason.ID)
}

func TestSelectVersions_SkipsDescriptorsWithoutID(t *testing.T) {
	logger := NewTestLogger()
	valid := plugin("com.example.a", "1.0")
	set := DiscoveredSet{{Kind: SourceCustom, Descriptors: []*ModuleDescriptor{{Version: "1.0"}, nil, valid}}}

	res, err := NewResolver(newTestContext(), WithLogger(logger)).Resolve(set)
	require.NoError(t, err)

	assert.Equal(t, []*ModuleDescriptor{valid}, res.Enabled)
	assert.True(t, logger.HasMessage("WARN", "Skipping descriptor without id"))
}
