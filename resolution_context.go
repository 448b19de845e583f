// resolution_context.go: Explicit per-run resolution inputs
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sort"
	"sync"
)

// IDSet is a set of module ids.
type IDSet map[ModuleID]struct{}

// NewIDSet creates a set from ids, normalizing each one.
func NewIDSet(ids ...ModuleID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id.Normalize()] = struct{}{}
	}
	return s
}

// Contains reports membership. A nil set contains nothing.
func (s IDSet) Contains(id ModuleID) bool {
	if s == nil {
		return false
	}
	_, ok := s[id.Normalize()]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id ModuleID) {
	s[id.Normalize()] = struct{}{}
}

// Sorted returns the ids ordered by their string form.
func (s IDSet) Sorted() []ModuleID {
	out := make([]ModuleID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ResolutionContext carries everything a resolution run depends on. One
// context is created per host (or per test) and passed to the Resolver;
// the pipeline keeps no package-level state.
type ResolutionContext struct {
	// BuildNumber is the target platform build. A zero value disables the
	// compatibility check.
	BuildNumber BuildNumber
	ProductMode string

	Disabled  IDSet
	Expired   IDSet
	Essential IDSet
	AlwaysOn  IDSet

	// ExplicitSubset, when non-nil, restricts loading to these ids plus
	// essential and always-on ids and their required dependencies.
	ExplicitSubset IDSet

	DisableLoadingCompletely bool

	// Capabilities resolves required-if-available targets. When nil, a
	// target counts as available if any candidate declares it.
	Capabilities CapabilityMap

	mu    sync.Mutex
	rules map[*SubModuleDescriptor]LoadingRule
}

// NewResolutionContext creates a context for the given target build.
func NewResolutionContext(build BuildNumber) *ResolutionContext {
	return &ResolutionContext{
		BuildNumber: build,
		Disabled:    NewIDSet(),
		Expired:     NewIDSet(),
		Essential:   NewIDSet(),
		AlwaysOn:    NewIDSet(),
	}
}

// IsEssential reports whether id is essential.
func (rc *ResolutionContext) IsEssential(id ModuleID) bool {
	return rc.Essential.Contains(id)
}

// EffectiveRule returns the loading rule of sub after conditional
// promotion. Before promotion was resolved it returns the declared rule.
func (rc *ResolutionContext) EffectiveRule(sub *SubModuleDescriptor) LoadingRule {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if r, ok := rc.rules[sub]; ok {
		return r
	}
	return sub.Rule
}

// resolveConditionalRules decides the effective rule of every optional
// content module declaring a required-if-available target. A decision is
// taken once per content module and then kept for the lifetime of the
// context.
func (rc *ResolutionContext) resolveConditionalRules(descriptors []*ModuleDescriptor, caps CapabilityMap, logger Logger) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.rules == nil {
		rc.rules = make(map[*SubModuleDescriptor]LoadingRule)
	}
	for _, d := range descriptors {
		for _, sub := range d.Content {
			if sub.Rule != LoadingOptional || sub.RequiredIfAvailable.IsZero() {
				continue
			}
			if _, done := rc.rules[sub]; done {
				continue
			}
			avail := caps.Lookup(sub.RequiredIfAvailable)
			if avail.Available {
				rc.rules[sub] = LoadingRequired
				logger.Debug("Content module promoted to required",
					"module", sub.ID.String(), "target", sub.RequiredIfAvailable.String())
			} else {
				rc.rules[sub] = LoadingOptional
				logger.Debug("Content module stays optional",
					"module", sub.ID.String(), "target", sub.RequiredIfAvailable.String(), "reason", avail.Reason)
			}
		}
	}
}
