// hierarchy.go: Load ordering and loader parent assignment
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Loader is the node of the loading hierarchy. A main descriptor and its
// embedded content modules share one Loader; every other content module
// gets its own. Parents are fixed at creation.
type Loader struct {
	module   Module
	members  []Module
	parents  []*Loader
	released atomic.Bool
}

// Module returns the module the loader was created for.
func (l *Loader) Module() Module { return l.module }

// ID returns the id of the loader's module.
func (l *Loader) ID() ModuleID { return l.module.ModuleID() }

// Members returns every module sharing the loader.
func (l *Loader) Members() []Module {
	return append([]Module(nil), l.members...)
}

// Parents returns the direct parent loaders.
func (l *Loader) Parents() []*Loader {
	return append([]*Loader(nil), l.parents...)
}

// Released reports whether the loader was released by an unload.
func (l *Loader) Released() bool { return l.released.Load() }

func (l *Loader) release() { l.released.Store(true) }

// HasAncestor reports whether other is reachable through the parent chain.
func (l *Loader) HasAncestor(other *Loader) bool {
	found := false
	bfs := NewBFS(func(b *BFS[*Loader], n *Loader) {
		for _, parent := range n.parents {
			if parent == other {
				found = true
			}
			b.Schedule(parent)
		}
	})
	bfs.Schedule(l)
	bfs.Run()
	return found
}

// Hierarchy is the ordered load plan together with each module's loader.
type Hierarchy struct {
	order   []Module
	loaders map[Module]*Loader
}

// Order returns the modules in load order: every module follows all the
// modules its loader depends on.
func (h *Hierarchy) Order() []Module {
	return append([]Module(nil), h.order...)
}

// Loader returns the loader assigned to m.
func (h *Hierarchy) Loader(m Module) (*Loader, bool) {
	l, ok := h.loaders[m]
	return l, ok
}

// Len returns the number of modules in the hierarchy.
func (h *Hierarchy) Len() int { return len(h.order) }

// loadUnit groups the modules sharing one loader during hierarchy building.
type loadUnit struct {
	module   Module
	members  []Module
	optional bool
	rank     [2]int
	deps     []*loadUnit
}

func (u *loadUnit) before(o *loadUnit) bool {
	if u.rank[0] != o.rank[0] {
		return u.rank[0] < o.rank[0]
	}
	return u.rank[1] < o.rank[1]
}

// buildHierarchy orders the active modules and assigns loaders. When a
// package prefix collision or a dependency cycle forces modules out, it
// returns them instead of a hierarchy; the caller re-evaluates and retries.
func (p *pipeline) buildHierarchy(set *UnambiguousPluginSet, a *activeSet, existing map[Module]*Loader) (*Hierarchy, []Module) {
	units, unitOf := p.buildUnits(a)
	for _, u := range units {
		p.linkUnit(u, set, a, unitOf)
	}

	if out := p.checkPackageCollisions(units); len(out) > 0 {
		return nil, out
	}
	if out := p.checkCycles(units); len(out) > 0 {
		return nil, out
	}

	ordered := p.orderUnits(units)
	h := &Hierarchy{loaders: make(map[Module]*Loader)}
	byUnit := make(map[*loadUnit]*Loader, len(ordered))
	for _, u := range ordered {
		l, reused := existing[u.module]
		if !reused {
			l = &Loader{module: u.module, members: u.members}
			for _, dep := range u.deps {
				l.parents = append(l.parents, byUnit[dep])
			}
		}
		byUnit[u] = l
		for _, m := range u.members {
			h.order = append(h.order, m)
			h.loaders[m] = l
		}
	}

	p.logger.Info("Loading hierarchy built", "modules", len(h.order), "loaders", len(ordered))
	return h, nil
}

func (p *pipeline) buildUnits(a *activeSet) ([]*loadUnit, map[Module]*loadUnit) {
	var units []*loadUnit
	unitOf := make(map[Module]*loadUnit)
	for _, d := range a.mains {
		idx := p.discovery[d]
		main := &loadUnit{module: d, members: []Module{d}, rank: [2]int{idx, 0}}
		units = append(units, main)
		unitOf[d] = main
		for i, sub := range d.Content {
			if !a.content[sub] {
				continue
			}
			rule := p.rc.EffectiveRule(sub)
			if rule == LoadingEmbedded {
				main.members = append(main.members, sub)
				unitOf[sub] = main
				continue
			}
			u := &loadUnit{
				module:   sub,
				members:  []Module{sub},
				optional: rule == LoadingOptional,
				rank:     [2]int{idx, i + 1},
			}
			units = append(units, u)
			unitOf[sub] = u
		}
	}
	return units, unitOf
}

// linkUnit assigns the direct dependencies of a unit from the strict edges
// of all its members.
func (p *pipeline) linkUnit(u *loadUnit, set *UnambiguousPluginSet, a *activeSet, unitOf map[Module]*loadUnit) {
	seen := make(map[*loadUnit]bool)
	for _, member := range u.members {
		for _, e := range member.Edges() {
			if !IsStrict(e) {
				continue
			}
			for _, target := range p.parentTargets(e, set, a) {
				dep := unitOf[target]
				if dep == nil || dep == u || seen[dep] {
					continue
				}
				seen[dep] = true
				u.deps = append(u.deps, dep)
			}
		}
	}
}

// parentTargets returns the modules an edge contributes as loader parents.
// A legacy plugin edge contributes the target plugin and its required and
// embedded content; a plugin edge contributes exactly the module the id
// resolved to, which is a content module when the id is a content alias;
// a module edge contributes the target module.
func (p *pipeline) parentTargets(e DependencyEdge, set *UnambiguousPluginSet, a *activeSet) []Module {
	target, ok := set.Resolve(e.TargetID())
	if !ok || !a.isActive(target) {
		return nil
	}
	switch edge := e.(type) {
	case PluginEdge:
		if !edge.Legacy {
			return []Module{target}
		}
		main := target.Main()
		out := []Module{main}
		for _, sub := range main.Content {
			if p.rc.EffectiveRule(sub) != LoadingOptional && a.isActive(sub) {
				out = append(out, sub)
			}
		}
		return out
	case ModuleEdge:
		return []Module{target}
	default:
		return nil
	}
}

// checkPackageCollisions walks the units in discovery order. A prefix
// claimed twice downgrades the optional participant; between two
// non-optional modules the later descriptor is excluded.
func (p *pipeline) checkPackageCollisions(units []*loadUnit) []Module {
	claims := make(map[string]*loadUnit)
	gone := make(map[*loadUnit]bool)
	var out []Module

	for _, u := range units {
		for _, prefix := range unitPrefixes(u) {
			if gone[u] {
				break
			}
			v, taken := claims[prefix]
			if !taken || gone[v] || v == u {
				claims[prefix] = u
				continue
			}
			p.logger.Warn("Package prefix collision",
				"error", NewPackageCollisionError(prefix, v.module.ModuleID(), u.module.ModuleID()))
			switch {
			case u.optional:
				gone[u] = true
				out = append(out, u.module)
			case v.optional:
				gone[v] = true
				out = append(out, v.module)
				claims[prefix] = u
			default:
				gone[u] = true
				main := u.module.Main()
				p.log.Exclude(main, ExclusionReason{
					Kind:   ExclusionPackagePrefixCollision,
					ID:     v.module.ModuleID(),
					Detail: prefix,
				})
				out = append(out, main)
			}
		}
	}
	return out
}

func unitPrefixes(u *loadUnit) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range u.members {
		if prefix := m.Prefix(); prefix != "" && !seen[prefix] {
			seen[prefix] = true
			out = append(out, prefix)
		}
	}
	return out
}

// checkCycles finds strongly connected components among the units. Every
// non-optional member of a cycle takes its main descriptor out; optional
// content modules in a cycle are dropped on their own.
func (p *pipeline) checkCycles(units []*loadUnit) []Module {
	var out []Module
	for _, scc := range stronglyConnected(units) {
		if len(scc) < 2 {
			continue
		}
		sort.Slice(scc, func(i, j int) bool { return scc[i].before(scc[j]) })
		ids := make([]ModuleID, len(scc))
		names := make([]string, len(scc))
		for i, u := range scc {
			ids[i] = u.module.ModuleID()
			names[i] = ids[i].String()
		}
		p.logger.Error("Dependency cycle", "error", NewDependencyCycleError(ids))

		for i, u := range scc {
			if u.optional {
				p.logger.Warn("Optional content module in dependency cycle not loaded", "module", names[i])
				out = append(out, u.module)
				continue
			}
			other := ids[(i+1)%len(ids)]
			main := u.module.Main()
			p.log.Exclude(main, ExclusionReason{
				Kind:   ExclusionDependencyCycle,
				ID:     other,
				Detail: strings.Join(names, " -> "),
			})
			out = append(out, main)
		}
	}
	return out
}

// stronglyConnected runs Tarjan's algorithm iteratively over the unit
// dependency graph, visiting roots in unit order.
func stronglyConnected(units []*loadUnit) [][]*loadUnit {
	index := make(map[*loadUnit]int)
	low := make(map[*loadUnit]int)
	onStack := make(map[*loadUnit]bool)
	var stack []*loadUnit
	var result [][]*loadUnit
	next := 0

	type frame struct {
		unit *loadUnit
		edge int
	}

	for _, root := range units {
		if _, visited := index[root]; visited {
			continue
		}
		work := []frame{{unit: root}}
		index[root], low[root] = next, next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(work) > 0 {
			top := &work[len(work)-1]
			u := top.unit
			if top.edge < len(u.deps) {
				w := u.deps[top.edge]
				top.edge++
				if _, visited := index[w]; !visited {
					index[w], low[w] = next, next
					next++
					stack = append(stack, w)
					onStack[w] = true
					work = append(work, frame{unit: w})
				} else if onStack[w] && index[w] < low[u] {
					low[u] = index[w]
				}
				continue
			}

			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].unit
				if low[u] < low[parent] {
					low[parent] = low[u]
				}
			}
			if low[u] == index[u] {
				var scc []*loadUnit
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					scc = append(scc, w)
					if w == u {
						break
					}
				}
				result = append(result, scc)
			}
		}
	}
	return result
}

// orderUnits is Kahn's algorithm over the acyclic unit graph. Among ready
// units the one discovered first goes next, except that a main descriptor
// waits while one of its own content modules whose id it dot-prefixes is
// ready.
func (p *pipeline) orderUnits(units []*loadUnit) []*loadUnit {
	inDegree := make(map[*loadUnit]int, len(units))
	dependents := make(map[*loadUnit][]*loadUnit)
	var ready []*loadUnit
	for _, u := range units {
		inDegree[u] = len(u.deps)
		for _, dep := range u.deps {
			dependents[dep] = append(dependents[dep], u)
		}
		if len(u.deps) == 0 {
			ready = append(ready, u)
		}
	}

	ordered := make([]*loadUnit, 0, len(units))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool { return ready[i].before(ready[j]) })
		pick := 0
		if first := ready[0]; first.module.IsMain() {
			name := first.module.ModuleID().String()
			for i, r := range ready[1:] {
				if r.module.Main() == first.module && isDotPrefix(name, r.module.ModuleID().String()) {
					pick = i + 1
					break
				}
			}
		}
		u := ready[pick]
		ready = append(ready[:pick], ready[pick+1:]...)
		ordered = append(ordered, u)

		for _, dependent := range dependents[u] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	return ordered
}
