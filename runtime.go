// runtime.go: Dynamic activation of modules after startup
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
	"github.com/agilira/go-timecache"
)

// ModuleState is the activation state of a module.
type ModuleState string

const (
	// StateUnloaded indicates the module is not loaded
	StateUnloaded ModuleState = "unloaded"
	// StateResolving indicates a load of the module is being resolved
	StateResolving ModuleState = "resolving"
	// StateLoaded indicates the module is loaded
	StateLoaded ModuleState = "loaded"
	// StateUnloading indicates the module is being unloaded
	StateUnloading ModuleState = "unloading"
)

// RuntimeEventType identifies a runtime notification.
type RuntimeEventType string

const (
	EventModuleAdded   RuntimeEventType = "module_added"
	EventModuleRemoved RuntimeEventType = "module_removed"
)

// RuntimeEvent is delivered to listeners after a load or unload committed.
type RuntimeEvent struct {
	Type      RuntimeEventType       `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    ModuleID               `json:"module"`
	Plugin    ModuleID               `json:"plugin"`
	Version   string                 `json:"version,omitempty"`
	State     ModuleState            `json:"state"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RuntimeEventHandler handles runtime events.
type RuntimeEventHandler func(event RuntimeEvent)

// runtimeSnapshot is an immutable view of the loaded modules. A new
// snapshot is built for every committed transition.
type runtimeSnapshot struct {
	order   []Module
	loaders map[Module]*Loader
	byID    map[ModuleID]Module
	mains   []*ModuleDescriptor
}

func newRuntimeSnapshot(order []Module, loaders map[Module]*Loader) *runtimeSnapshot {
	s := &runtimeSnapshot{
		order:   order,
		loaders: loaders,
		byID:    make(map[ModuleID]Module),
	}
	for _, m := range order {
		switch v := m.(type) {
		case *ModuleDescriptor:
			s.mains = append(s.mains, v)
			s.byID[v.ID] = v
			for _, a := range v.Aliases {
				s.byID[a.Normalize()] = v
			}
		case *SubModuleDescriptor:
			s.byID[v.ID] = v
			for _, a := range v.Aliases {
				s.byID[a.Normalize()] = v
			}
		}
	}
	return s
}

func (s *runtimeSnapshot) isLoaded(m Module) bool {
	_, ok := s.loaders[m]
	return ok
}

// Runtime keeps the set of loaded modules and changes it one batch at a
// time. Loads and unloads are serialized; IsLoaded, State and Loader read
// an atomically published snapshot and never observe a half-applied
// transition.
//
// Example usage:
//
//	rt := modloader.NewRuntime(resolver, resolution, modloader.WithKnownDescriptors(discovered))
//	rt.AddListener(func(e modloader.RuntimeEvent) {
//	    log.Printf("%s %s", e.Type, e.Module)
//	})
//	rt.AddUnloadVeto(func(d *modloader.ModuleDescriptor) error {
//	    if d.ID == pinned {
//	        return fmt.Errorf("%s is pinned", d.ID)
//	    }
//	    return nil
//	})
//	if err := rt.LoadAll(ctx, first, second); err != nil {
//	    log.Printf("load rejected: %v", err)
//	}
//	if err := rt.Unload(ctx, first.ID); err != nil {
//	    log.Printf("unload rejected: %v", err)
//	}
type Runtime struct {
	mu       sync.Mutex
	resolver *Resolver
	known    DiscoveredSet
	logger   Logger
	metrics  MetricsCollector
	audit    *argus.AuditLogger

	snapshot atomic.Pointer[runtimeSnapshot]
	transit  atomic.Pointer[map[ModuleID]ModuleState]

	handlersMu sync.RWMutex
	handlers   []RuntimeEventHandler
	vetoes     []UnloadVeto
}

// UnloadVeto lets a listener refuse to unload a plugin. It is consulted for
// every plugin an unload would remove; a non-nil error blocks the unload.
type UnloadVeto func(d *ModuleDescriptor) error

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithKnownDescriptors sets the descriptors a load may pull in as newly
// required dependencies.
func WithKnownDescriptors(set DiscoveredSet) RuntimeOption {
	return func(r *Runtime) { r.known = set }
}

// WithAuditLogger records every committed transition in an argus audit trail.
func WithAuditLogger(audit *argus.AuditLogger) RuntimeOption {
	return func(r *Runtime) { r.audit = audit }
}

// NewRuntime creates a runtime whose initial state is res. A nil res
// starts empty.
func NewRuntime(resolver *Resolver, res *Resolution, opts ...RuntimeOption) *Runtime {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	r := &Runtime{
		resolver: resolver,
		logger:   resolver.logger,
		metrics:  resolver.metrics,
	}
	for _, opt := range opts {
		opt(r)
	}

	if res != nil && res.Hierarchy != nil {
		loaders := make(map[Module]*Loader, res.Hierarchy.Len())
		for _, m := range res.Hierarchy.Order() {
			l, _ := res.Hierarchy.Loader(m)
			loaders[m] = l
		}
		r.snapshot.Store(newRuntimeSnapshot(res.Hierarchy.Order(), loaders))
	} else {
		r.snapshot.Store(newRuntimeSnapshot(nil, map[Module]*Loader{}))
	}
	empty := map[ModuleID]ModuleState{}
	r.transit.Store(&empty)
	return r
}

// AddListener registers a handler for runtime events. Handlers run
// synchronously after a transition committed; panics are recovered.
func (r *Runtime) AddListener(handler RuntimeEventHandler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// AddUnloadVeto registers a veto consulted before every unload and by
// CheckCanUnloadWithoutRestart. Panics are recovered and count as no veto.
func (r *Runtime) AddUnloadVeto(veto UnloadVeto) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.vetoes = append(r.vetoes, veto)
}

// IsLoaded reports whether id (a main id, alias or content module id) is
// loaded.
func (r *Runtime) IsLoaded(id ModuleID) bool {
	_, ok := r.snapshot.Load().byID[id.Normalize()]
	return ok
}

// State returns the activation state of id.
func (r *Runtime) State(id ModuleID) ModuleState {
	id = id.Normalize()
	if st, ok := (*r.transit.Load())[id]; ok {
		return st
	}
	if r.IsLoaded(id) {
		return StateLoaded
	}
	return StateUnloaded
}

// Loader returns the loader of a loaded module.
func (r *Runtime) Loader(id ModuleID) (*Loader, bool) {
	snap := r.snapshot.Load()
	m, ok := snap.byID[id.Normalize()]
	if !ok {
		return nil, false
	}
	l, ok := snap.loaders[m]
	return l, ok
}

// LoadedModules returns the loaded modules in load order.
func (r *Runtime) LoadedModules() []Module {
	return append([]Module(nil), r.snapshot.Load().order...)
}

// Load activates d together with any known descriptors it newly requires.
// Loading the loaded descriptor is a no-op. The load is atomic: if d would
// be excluded, would conflict with a loaded identity, has an unresolved
// required dependency, or would displace a loaded module, nothing changes
// and an error is returned.
func (r *Runtime) Load(ctx context.Context, d *ModuleDescriptor) error {
	return r.LoadAll(ctx, d)
}

// LoadAll activates ds as one batch: batch members may require each other,
// modules are added in dependency order and the whole batch is rejected if
// any member cannot load. Known implementation-detail plugins whose
// required dependencies become available load with the batch; they are
// left out silently when they cannot load.
func (r *Runtime) LoadAll(ctx context.Context, ds ...*ModuleDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range ds {
		if d == nil || d.ID.IsZero() {
			return NewInvalidDescriptorError("Descriptor without id", ModuleID{})
		}
	}
	logger := loggerFromContextOr(ctx, r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot.Load()
	batch, err := pendingLoads(snap, ds)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	ids := make([]ModuleID, len(batch))
	inBatch := make(map[*ModuleDescriptor]bool, len(batch))
	for i, d := range batch {
		ids[i] = d.ID
		inBatch[d] = true
	}
	r.setTransit(StateResolving, ids...)
	defer r.clearTransit(ids...)

	unresolved := make(map[*ModuleDescriptor][]DependencyEdge)
	p := r.resolver.newPipeline(nil, func(owner Module, edge DependencyEdge) {
		if main := owner.Main(); inBatch[main] {
			unresolved[main] = append(unresolved[main], edge)
		}
	})
	p.log = NewExclusionLog(nil, NewNoOpLogger(), nil)
	p.logger = NewNoOpLogger()
	p.metrics = nil

	explicit := NewIDSet(ids...)
	for _, m := range snap.mains {
		explicit.Add(m.ID)
	}
	for _, k := range r.implementationDetails(snap, batch) {
		explicit.Add(k.ID)
	}
	res, err := p.run(r.loadInput(snap, batch), explicit, snap.loaders)
	if err != nil {
		return err
	}

	if err := checkLoadOutcome(snap, batch, res, p.log, unresolved); err != nil {
		logger.Warn("Module load rejected", "modules", idStrings(ids), "error", err)
		r.recordTransition("load_rejected", ids, 0)
		return err
	}

	var added []Module
	loaders := make(map[Module]*Loader, res.Hierarchy.Len())
	for _, m := range res.Hierarchy.Order() {
		l, _ := res.Hierarchy.Loader(m)
		loaders[m] = l
		if !snap.isLoaded(m) {
			added = append(added, m)
		}
	}
	r.snapshot.Store(newRuntimeSnapshot(res.Hierarchy.Order(), loaders))

	logger.Info("Module loaded", "modules", idStrings(ids), "modules_added", len(added))
	r.recordTransition("module_loaded", ids, len(added))
	for _, m := range added {
		r.emit(EventModuleAdded, m, StateLoaded)
	}
	return nil
}

// pendingLoads drops batch members that are already loaded. Any other
// descriptor whose id is held by a loaded module or by an earlier batch
// member is an identity conflict.
func pendingLoads(snap *runtimeSnapshot, ds []*ModuleDescriptor) ([]*ModuleDescriptor, error) {
	seen := make(map[ModuleID]*ModuleDescriptor, len(ds))
	var out []*ModuleDescriptor
	for _, d := range ds {
		id := d.ID.Normalize()
		if m, ok := snap.byID[id]; ok {
			if m == Module(d) {
				continue
			}
			return nil, NewIdentityConflictError(d.ID, id)
		}
		if prev, ok := seen[id]; ok {
			if prev == d {
				continue
			}
			return nil, NewIdentityConflictError(d.ID, id)
		}
		seen[id] = d
		out = append(out, d)
	}
	return out, nil
}

// implementationDetails returns the known implementation-detail plugins
// that require a batch member and whose other required plugin dependencies
// are loaded already.
func (r *Runtime) implementationDetails(snap *runtimeSnapshot, batch []*ModuleDescriptor) []*ModuleDescriptor {
	provided := make(map[ModuleID]bool)
	taken := make(map[*ModuleDescriptor]bool)
	for _, d := range batch {
		taken[d] = true
		for _, k := range descriptorKeys(d) {
			provided[k] = true
		}
	}

	var out []*ModuleDescriptor
	for _, src := range r.known {
		for _, k := range src.Descriptors {
			if !k.ImplementationDetail || taken[k] || r.resolver.rc.Disabled.Contains(k.ID) {
				continue
			}
			if _, loaded := snap.byID[k.ID.Normalize()]; loaded {
				continue
			}
			onBatch, satisfied := false, true
			for _, e := range k.Dependencies {
				pe, ok := e.(PluginEdge)
				if !ok || !pe.Required {
					continue
				}
				if provided[pe.TargetID()] {
					onBatch = true
				} else if _, loaded := snap.byID[pe.TargetID()]; !loaded {
					satisfied = false
				}
			}
			if onBatch && satisfied {
				taken[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// loadInput lists loaded descriptors first, then the batch, then every
// other known descriptor, so that source priority keeps loaded versions in
// place.
func (r *Runtime) loadInput(snap *runtimeSnapshot, batch []*ModuleDescriptor) DiscoveredSet {
	skip := make(map[*ModuleDescriptor]bool, len(snap.mains)+len(batch))
	for _, m := range snap.mains {
		skip[m] = true
	}
	set := DiscoveredSet{{Kind: "loaded", Descriptors: snap.mains}}
	for _, d := range batch {
		skip[d] = true
		set = append(set, DescriptorSource{Kind: d.Source, Descriptors: []*ModuleDescriptor{d}})
	}
	for _, src := range r.known {
		var rest []*ModuleDescriptor
		for _, k := range src.Descriptors {
			if !skip[k] {
				rest = append(rest, k)
			}
		}
		if len(rest) > 0 {
			set = append(set, DescriptorSource{Kind: src.Kind, Descriptors: rest})
		}
	}
	return set
}

func checkLoadOutcome(snap *runtimeSnapshot, batch []*ModuleDescriptor, res *Resolution, log *ExclusionLog, unresolved map[*ModuleDescriptor][]DependencyEdge) error {
	for _, d := range batch {
		if reason, excluded := log.Reason(d); excluded {
			switch reason.Kind {
			case ExclusionDeclaresConflictingID:
				return NewIdentityConflictError(d.ID, reason.ID)
			case ExclusionMissingRequiredDependency:
				for _, e := range unresolved[d] {
					if e.TargetID() == reason.ID {
						return NewUnresolvedDependencyError(d.ID, e)
					}
				}
				return NewUnresolvedDependencyError(d.ID, PluginEdge{Target: reason.ID, Required: true})
			default:
				return NewLoadRejectedError(d.ID, reason)
			}
		}
		if !res.active.main[d] {
			return NewLoadRejectedError(d.ID, ExclusionReason{Kind: ExclusionNotRequiredForExplicitSubset})
		}
	}
	for _, m := range snap.order {
		if res.active.isActive(m) {
			continue
		}
		reason, _ := log.Reason(m.Main())
		return NewLoadRejectedError(m.ModuleID(), reason)
	}
	return nil
}

// Unload deactivates the plugin owning id together with every loaded module
// whose loader parent chain includes one of its loaders. Unloading a module
// that is not loaded is a no-op.
func (r *Runtime) Unload(ctx context.Context, id ModuleID) error {
	return r.UnloadAll(ctx, id)
}

// UnloadAll deactivates the plugins owning ids as one batch. Every plugin
// and optional content module the batch takes with it is checked before
// anything changes; one blocker rejects the whole batch. Removal
// notifications fire in reverse load order, then the loaders are released.
func (r *Runtime) UnloadAll(ctx context.Context, ids ...ModuleID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := loggerFromContextOr(ctx, r.logger)

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot.Load()
	targets := unloadTargets(snap, ids)
	if len(targets) == 0 {
		return nil
	}
	unloading := targetIDs(targets)

	removed := collectRemoval(snap, targets, r.resolver.rc.EffectiveRule)
	if err := r.checkRemoval(snap, targets, removed); err != nil {
		logger.Warn("Module unload requires restart", "modules", idStrings(unloading), "error", err)
		return err
	}

	removedIDs := make([]ModuleID, len(removed))
	gone := make(map[Module]bool, len(removed))
	for i, rm := range removed {
		removedIDs[i] = rm.ModuleID()
		gone[rm] = true
	}
	r.setTransit(StateUnloading, removedIDs...)
	defer r.clearTransit(removedIDs...)

	var order []Module
	loaders := make(map[Module]*Loader, len(snap.order))
	for _, om := range snap.order {
		if gone[om] {
			continue
		}
		order = append(order, om)
		loaders[om] = snap.loaders[om]
	}
	r.snapshot.Store(newRuntimeSnapshot(order, loaders))

	logger.Info("Module unloaded", "modules", idStrings(unloading), "modules_removed", len(removed))
	r.recordTransition("module_unloaded", unloading, len(removed))
	for _, rm := range removed {
		r.emit(EventModuleRemoved, rm, StateUnloaded)
	}
	for _, rm := range removed {
		snap.loaders[rm].release()
	}
	return nil
}

// unloadTargets maps ids to the loaded plugins owning them, once each.
func unloadTargets(snap *runtimeSnapshot, ids []ModuleID) []*ModuleDescriptor {
	seen := make(map[*ModuleDescriptor]bool, len(ids))
	var out []*ModuleDescriptor
	for _, id := range ids {
		m, ok := snap.byID[id.Normalize()]
		if !ok || seen[m.Main()] {
			continue
		}
		seen[m.Main()] = true
		out = append(out, m.Main())
	}
	return out
}

// collectRemoval returns the modules to remove in reverse load order. A
// dependent optional content module goes alone; any other dependent takes
// its whole plugin with it.
func collectRemoval(snap *runtimeSnapshot, targets []*ModuleDescriptor, rule func(*SubModuleDescriptor) LoadingRule) []Module {
	gone := make(map[Module]bool)
	goneLoaders := make(map[*Loader]bool)
	drop := func(m Module) {
		if gone[m] {
			return
		}
		gone[m] = true
		goneLoaders[snap.loaders[m]] = true
	}
	dropPlugin := func(d *ModuleDescriptor) {
		for _, m := range snap.order {
			if m.Main() == d {
				drop(m)
			}
		}
	}

	for _, d := range targets {
		dropPlugin(d)
	}
	for changed := true; changed; {
		changed = false
		for _, m := range snap.order {
			if gone[m] {
				continue
			}
			l := snap.loaders[m]
			dependent := false
			for gl := range goneLoaders {
				if l.HasAncestor(gl) {
					dependent = true
					break
				}
			}
			if !dependent {
				continue
			}
			changed = true
			if sub, ok := m.(*SubModuleDescriptor); ok && rule(sub) == LoadingOptional {
				drop(sub)
				continue
			}
			dropPlugin(m.Main())
		}
	}

	var out []Module
	for i := len(snap.order) - 1; i >= 0; i-- {
		if gone[snap.order[i]] {
			out = append(out, snap.order[i])
		}
	}
	return out
}

func (r *Runtime) emit(t RuntimeEventType, m Module, state ModuleState) {
	event := RuntimeEvent{
		Type:      t,
		Timestamp: timecache.CachedTime(),
		Module:    m.ModuleID(),
		Plugin:    m.Main().ID,
		Version:   m.Main().Version,
		State:     state,
	}
	r.handlersMu.RLock()
	handlers := make([]RuntimeEventHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.handlersMu.RUnlock()

	for _, h := range handlers {
		safeCall(r.logger, func() { h(event) })
	}
}

func (r *Runtime) setTransit(state ModuleState, ids ...ModuleID) {
	next := make(map[ModuleID]ModuleState)
	for k, v := range *r.transit.Load() {
		next[k] = v
	}
	for _, id := range ids {
		next[id.Normalize()] = state
	}
	r.transit.Store(&next)
}

func (r *Runtime) clearTransit(ids ...ModuleID) {
	next := make(map[ModuleID]ModuleState)
	for k, v := range *r.transit.Load() {
		next[k] = v
	}
	for _, id := range ids {
		delete(next, id.Normalize())
	}
	r.transit.Store(&next)
}

func (r *Runtime) recordTransition(event string, ids []ModuleID, modules int) {
	if r.metrics != nil {
		r.metrics.IncrementCounter(metricRuntimeTransitions, map[string]string{"event": event}, 1)
		r.metrics.SetGauge(metricRuntimeLoadedModule, nil, float64(len(r.snapshot.Load().order)))
	}
	if r.audit != nil {
		r.audit.LogSecurityEvent(event, "Module runtime transition", map[string]interface{}{
			"module":  strings.Join(idStrings(ids), ","),
			"modules": modules,
		})
	}
}

func idStrings(ids []ModuleID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
