// capability.go: Product-mode capability lookups for conditional content modules
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sync"
)

// Availability is the answer of a CapabilityMap lookup.
type Availability struct {
	Available bool
	Reason    string
}

// CapabilityMap tells whether a module id is available in the current
// product mode. It drives the promotion of optional content modules that
// declare a required-if-available target.
type CapabilityMap interface {
	Lookup(id ModuleID) Availability
}

// StaticCapabilityMap is a CapabilityMap backed by per-mode id lists.
type StaticCapabilityMap struct {
	mu        sync.RWMutex
	mode      string
	available map[string]map[ModuleID]struct{}
	withheld  map[string]map[ModuleID]string
}

// NewStaticCapabilityMap creates an empty map answering for mode.
func NewStaticCapabilityMap(mode string) *StaticCapabilityMap {
	return &StaticCapabilityMap{
		mode:      mode,
		available: make(map[string]map[ModuleID]struct{}),
		withheld:  make(map[string]map[ModuleID]string),
	}
}

// Provide marks ids as available in mode.
func (c *StaticCapabilityMap) Provide(mode string, ids ...ModuleID) *StaticCapabilityMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available[mode] == nil {
		c.available[mode] = make(map[ModuleID]struct{})
	}
	for _, id := range ids {
		c.available[mode][id.Normalize()] = struct{}{}
	}
	return c
}

// Withhold marks id as unavailable in mode with an explanation.
func (c *StaticCapabilityMap) Withhold(mode string, id ModuleID, reason string) *StaticCapabilityMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.withheld[mode] == nil {
		c.withheld[mode] = make(map[ModuleID]string)
	}
	c.withheld[mode][id.Normalize()] = reason
	return c
}

// Mode returns the product mode the map answers for.
func (c *StaticCapabilityMap) Mode() string {
	return c.mode
}

// Lookup implements CapabilityMap.
func (c *StaticCapabilityMap) Lookup(id ModuleID) Availability {
	id = id.Normalize()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if reason, ok := c.withheld[c.mode][id]; ok {
		return Availability{Reason: reason}
	}
	if _, ok := c.available[c.mode][id]; ok {
		return Availability{Available: true}
	}
	return Availability{Reason: "not provided in product mode " + c.mode}
}

// candidateCapabilities treats every id declared by a candidate descriptor
// as available. It is used when no CapabilityMap is configured.
type candidateCapabilities map[ModuleID]struct{}

func newCandidateCapabilities(descriptors []*ModuleDescriptor) candidateCapabilities {
	out := make(candidateCapabilities)
	for _, d := range descriptors {
		for _, k := range descriptorKeys(d) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Lookup implements CapabilityMap.
func (c candidateCapabilities) Lookup(id ModuleID) Availability {
	if _, ok := c[id.Normalize()]; ok {
		return Availability{Available: true}
	}
	return Availability{Reason: "no candidate declares " + id.String()}
}
