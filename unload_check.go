// unload_check.go: Decides whether a plugin can be unloaded without restart
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"github.com/agilira/go-errors"
)

// CheckCanUnloadWithoutRestart returns nil when the plugin owning id can
// be unloaded at runtime together with everything its unload takes along.
// Otherwise it returns a RUNTIME_2203 error describing the first blocker
// found, or RUNTIME_2206 when an unload veto refused.
func (r *Runtime) CheckCanUnloadWithoutRestart(id ModuleID) error {
	snap := r.snapshot.Load()
	m, ok := snap.byID[id.Normalize()]
	if !ok {
		return NewModuleNotFoundError(id)
	}
	targets := []*ModuleDescriptor{m.Main()}
	return r.checkRemoval(snap, targets, collectRemoval(snap, targets, r.resolver.rc.EffectiveRule))
}

type extensionPointOwner struct {
	owner *ModuleDescriptor
	point ExtensionPoint
}

// checkRemoval checks every plugin in removed as if it were unloaded on its
// own, with the rest of removed going away alongside it. Optional content
// modules removed without their plugin are checked for their own
// contributions only. Vetoes run last.
func (r *Runtime) checkRemoval(snap *runtimeSnapshot, targets []*ModuleDescriptor, removed []Module) error {
	batch := make(map[*ModuleDescriptor]bool)
	for _, m := range removed {
		if d, ok := m.(*ModuleDescriptor); ok {
			batch[d] = true
		}
	}
	isTarget := make(map[*ModuleDescriptor]bool, len(targets))
	for _, d := range targets {
		isTarget[d] = true
	}

	points := make(map[string]extensionPointOwner)
	for _, d := range snap.mains {
		for _, ep := range d.ExtensionPoints {
			if _, taken := points[ep.Name]; !taken {
				points[ep.Name] = extensionPointOwner{owner: d, point: ep}
			}
		}
	}

	for _, m := range removed {
		switch v := m.(type) {
		case *ModuleDescriptor:
			if err := checkPlugin(snap, v, batch, points); err != nil {
				if !isTarget[v] {
					err = err.WithContext("unloaded_with", idStrings(targetIDs(targets)))
				}
				return err
			}
		case *SubModuleDescriptor:
			if batch[v.Main()] {
				continue
			}
			if ep, blocked := nonDynamicExtension(v.Extensions, batch, points); blocked {
				return NewUnloadRequiresRestartError(v.Main().ID,
					"Content module "+v.ID.String()+" contributes to non-dynamic extension point "+ep).
					WithContext("content_module", v.ID.String()).
					WithContext("extension_point", ep).
					WithContext("unloaded_with", idStrings(targetIDs(targets)))
			}
		}
	}
	return r.checkVetoes(removed)
}

// checkPlugin blocks the unload of d when:
//   - d requires a restart
//   - d declares a non-dynamic extension point
//   - d contributes to a non-dynamic extension point of a plugin that stays
//     loaded
//   - a loaded plugin depending on d through a chain of optional plugin
//     dependencies contributes to a non-dynamic extension point
func checkPlugin(snap *runtimeSnapshot, d *ModuleDescriptor, batch map[*ModuleDescriptor]bool, points map[string]extensionPointOwner) *errors.Error {
	if d.RequireRestart {
		return NewUnloadRequiresRestartError(d.ID, "Plugin requires restart to be unloaded")
	}
	for _, ep := range d.ExtensionPoints {
		if !ep.Dynamic {
			return NewUnloadRequiresRestartError(d.ID, "Plugin declares non-dynamic extension point "+ep.Name).
				WithContext("extension_point", ep.Name)
		}
	}

	if ep, blocked := nonDynamicContribution(snap, d, batch, points); blocked {
		return NewUnloadRequiresRestartError(d.ID, "Plugin contributes to non-dynamic extension point "+ep).
			WithContext("extension_point", ep)
	}

	var blocker *errors.Error
	bfs := NewBFS(func(b *BFS[*ModuleDescriptor], dep *ModuleDescriptor) {
		if blocker != nil {
			return
		}
		if dep != d {
			if ep, blocked := nonDynamicContribution(snap, dep, batch, points); blocked {
				blocker = NewUnloadRequiresRestartError(d.ID,
					"Optional dependent "+dep.ID.String()+" contributes to non-dynamic extension point "+ep).
					WithContext("dependent", dep.ID.String()).
					WithContext("extension_point", ep)
				return
			}
		}
		for _, dependent := range snap.mains {
			if !batch[dependent] && dependsOptionally(snap, dependent, dep) {
				b.Schedule(dependent)
			}
		}
	})
	bfs.Schedule(d)
	bfs.Run()
	return blocker
}

func (r *Runtime) checkVetoes(removed []Module) error {
	r.handlersMu.RLock()
	vetoes := make([]UnloadVeto, len(r.vetoes))
	copy(vetoes, r.vetoes)
	r.handlersMu.RUnlock()

	for _, m := range removed {
		d, ok := m.(*ModuleDescriptor)
		if !ok {
			continue
		}
		for _, veto := range vetoes {
			var err error
			safeCall(r.logger, func() { err = veto(d) })
			if err != nil {
				return NewUnloadVetoedError(d.ID, err)
			}
		}
	}
	return nil
}

func targetIDs(targets []*ModuleDescriptor) []ModuleID {
	ids := make([]ModuleID, len(targets))
	for i, d := range targets {
		ids[i] = d.ID
	}
	return ids
}

// nonDynamicContribution returns the first extension point of a plugin
// staying loaded that d or one of its loaded content modules extends and
// that is not dynamic.
func nonDynamicContribution(snap *runtimeSnapshot, d *ModuleDescriptor, batch map[*ModuleDescriptor]bool, points map[string]extensionPointOwner) (string, bool) {
	if ep, blocked := nonDynamicExtension(d.Extensions, batch, points); blocked {
		return ep, true
	}
	for _, sub := range d.Content {
		if !snap.isLoaded(sub) {
			continue
		}
		if ep, blocked := nonDynamicExtension(sub.Extensions, batch, points); blocked {
			return ep, true
		}
	}
	return "", false
}

func nonDynamicExtension(extensions []string, batch map[*ModuleDescriptor]bool, points map[string]extensionPointOwner) (string, bool) {
	for _, ext := range extensions {
		ep, ok := points[ext]
		if ok && !batch[ep.owner] && !ep.point.Dynamic {
			return ext, true
		}
	}
	return "", false
}

// dependsOptionally reports whether dependent (or a loaded content module
// of it) has an optional plugin edge resolving to target.
func dependsOptionally(snap *runtimeSnapshot, dependent, target *ModuleDescriptor) bool {
	if dependent == target {
		return false
	}
	matches := func(edges []DependencyEdge) bool {
		for _, e := range edges {
			pe, ok := e.(PluginEdge)
			if !ok || pe.Required {
				continue
			}
			if m, found := snap.byID[pe.TargetID()]; found && m.Main() == target {
				return true
			}
		}
		return false
	}
	if matches(dependent.Dependencies) {
		return true
	}
	for _, sub := range dependent.Content {
		if snap.isLoaded(sub) && matches(sub.Dependencies) {
			return true
		}
	}
	return false
}
