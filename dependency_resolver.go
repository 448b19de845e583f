// dependency_resolver.go: Required-dependency closure over the unambiguous set
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sort"
)

// closure is the result of the reachability pass: the set of reached
// descriptors (including re-admitted ones) and the identity index used to
// resolve their edges.
type closure struct {
	set        *UnambiguousPluginSet
	reached    []*ModuleDescriptor
	isReached  map[*ModuleDescriptor]bool
	readmitted map[*ModuleDescriptor]bool
}

// activeSet is the outcome of evaluating a closure: the main descriptors
// and content modules that will be loaded.
type activeSet struct {
	mains   []*ModuleDescriptor
	main    map[*ModuleDescriptor]bool
	content map[*SubModuleDescriptor]bool
}

// isActive reports whether m will be loaded.
func (a *activeSet) isActive(m Module) bool {
	switch v := m.(type) {
	case *ModuleDescriptor:
		return a.main[v]
	case *SubModuleDescriptor:
		return a.main[v.Owner()] && a.content[v]
	default:
		return false
	}
}

// computeClosure walks required dependencies breadth-first.
//
// Privileged roots (explicit subset, essential and always-on ids) are
// walked first and may re-admit descriptors that were disabled. Without an
// explicit subset every enabled descriptor is then walked as an ordinary
// root; in that pass a disabled dependency stays unresolved.
func (p *pipeline) computeClosure(enabled, pool *UnambiguousPluginSet, explicit IDSet) *closure {
	c := &closure{
		set:        enabled.Clone(),
		isReached:  make(map[*ModuleDescriptor]bool),
		readmitted: make(map[*ModuleDescriptor]bool),
	}
	privileged := true

	lookup := func(id ModuleID) (Module, bool) {
		if m, ok := c.set.Resolve(id); ok {
			return m, true
		}
		m, ok := pool.Resolve(id)
		if !ok {
			return nil, false
		}
		if !privileged {
			p.logger.Debug("Dependency is disabled", "dependency", id.String())
			return nil, false
		}
		owner := m.Main()
		if clash, admitted := c.set.Admit(owner); !admitted {
			p.logger.Warn("Disabled module cannot be re-admitted", "module", owner.String(), "conflicting_id", clash.String())
			return nil, false
		}
		c.readmitted[owner] = true
		p.logger.Info("Disabled module re-admitted as required dependency", "module", owner.String())
		return m, true
	}

	bfs := NewBFS(func(b *BFS[Module], m Module) {
		main := m.Main()
		if m.IsMain() {
			c.isReached[main] = true
			c.reached = append(c.reached, main)
			for _, sub := range main.Content {
				if p.rc.EffectiveRule(sub) != LoadingOptional {
					b.Schedule(sub)
				}
			}
		} else {
			b.Schedule(main)
		}
		for _, e := range m.Edges() {
			if !IsStrict(e) {
				continue
			}
			target, ok := lookup(e.TargetID())
			if !ok {
				p.reportUnresolved(m, e)
				continue
			}
			b.Schedule(target)
		}
	})

	rootOf := func(d *ModuleDescriptor) bool {
		return explicit.Contains(d.ID) || p.rc.IsEssential(d.ID) || p.rc.AlwaysOn.Contains(d.ID)
	}
	for _, d := range enabled.Enabled() {
		if rootOf(d) {
			bfs.Schedule(d)
		}
	}
	for _, d := range pool.Enabled() {
		if rootOf(d) {
			if _, ok := lookup(d.ID); ok {
				bfs.Schedule(d)
			}
		}
	}
	bfs.Run()

	if explicit == nil {
		privileged = false
		for _, d := range enabled.Enabled() {
			bfs.Schedule(d)
		}
		bfs.Run()
	}

	// Optional content modules are not walked; their missing dependencies
	// are still reported once.
	for _, d := range c.reached {
		for _, sub := range d.Content {
			if bfs.Seen(sub) || p.rc.EffectiveRule(sub) != LoadingOptional {
				continue
			}
			for _, e := range sub.Edges() {
				if !IsStrict(e) {
					continue
				}
				if _, ok := c.set.Resolve(e.TargetID()); !ok {
					p.reportUnresolved(sub, e)
				}
			}
		}
	}

	for _, d := range pool.Enabled() {
		if !c.readmitted[d] {
			p.log.Exclude(d, ExclusionReason{Kind: ExclusionIsMarkedDisabled})
		}
	}
	if explicit != nil {
		for _, d := range enabled.Enabled() {
			if !c.isReached[d] {
				p.log.Exclude(d, ExclusionReason{Kind: ExclusionNotRequiredForExplicitSubset})
			}
		}
	}

	p.sortByDiscovery(c.reached)
	p.logger.Info("Dependency closure computed",
		"reached", len(c.reached),
		"readmitted", len(c.readmitted))
	return c
}

// evaluate decides which reached modules load. A main descriptor drops out
// when a strict edge of itself or of a required or embedded content module
// does not lead to a loaded module; its dependents follow until nothing
// changes. Optional content modules load only when all their strict edges
// lead to loaded modules. Modules in forced are kept out unconditionally.
func (p *pipeline) evaluate(c *closure, forced map[Module]bool) *activeSet {
	a := &activeSet{
		main:    make(map[*ModuleDescriptor]bool),
		content: make(map[*SubModuleDescriptor]bool),
	}
	for _, d := range c.reached {
		if forced[d] || p.log.IsExcluded(d) {
			continue
		}
		a.main[d] = true
		for _, sub := range d.Content {
			if !forced[sub] {
				a.content[sub] = true
			}
		}
	}

	broken := func(m Module) (DependencyEdge, bool) {
		for _, e := range m.Edges() {
			if !IsStrict(e) {
				continue
			}
			target, ok := c.set.Resolve(e.TargetID())
			if !ok || !a.isActive(target) {
				return e, true
			}
		}
		return nil, false
	}

	for changed := true; changed; {
		changed = false
		for _, d := range c.reached {
			if !a.main[d] {
				continue
			}
			edge, bad := broken(d)
			if !bad {
				for _, sub := range d.Content {
					if p.rc.EffectiveRule(sub) == LoadingOptional {
						continue
					}
					if edge, bad = broken(sub); bad {
						break
					}
				}
			}
			if bad {
				a.main[d] = false
				changed = true
				p.log.Exclude(d, ExclusionReason{Kind: ExclusionMissingRequiredDependency, ID: edge.TargetID()})
			}
		}
		for _, d := range c.reached {
			if !a.main[d] {
				continue
			}
			for _, sub := range d.Content {
				if !a.content[sub] || p.rc.EffectiveRule(sub) != LoadingOptional {
					continue
				}
				if edge, bad := broken(sub); bad {
					a.content[sub] = false
					changed = true
					p.logger.Info("Optional content module not loaded",
						"module", sub.ID.String(), "dependency", edge.TargetID().String())
				}
			}
		}
	}

	for _, d := range c.reached {
		if a.main[d] {
			a.mains = append(a.mains, d)
		}
	}
	return a
}

// reportUnresolved forwards an unresolved strict edge once per owner.
func (p *pipeline) reportUnresolved(owner Module, edge DependencyEdge) {
	key := unresolvedKey{owner: owner, target: edge.TargetID()}
	if _, done := p.unresolved[key]; done {
		return
	}
	p.unresolved[key] = struct{}{}
	p.logger.Warn("Unresolved dependency", "module", owner.ModuleID().String(), "dependency", edge.TargetID().String())
	if p.metrics != nil {
		p.metrics.IncrementCounter(metricUnresolvedEdges, nil, 1)
	}
	if p.onUnresolved != nil {
		safeCall(p.logger, func() { p.onUnresolved(owner, edge) })
	}
}

type unresolvedKey struct {
	owner  Module
	target ModuleID
}

func (p *pipeline) sortByDiscovery(ds []*ModuleDescriptor) {
	sort.SliceStable(ds, func(i, j int) bool { return p.discovery[ds[i]] < p.discovery[ds[j]] })
}
