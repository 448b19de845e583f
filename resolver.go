// resolver.go: Resolution pipeline entry point
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"time"
)

// Resolver turns a discovered set into the set of modules to load and
// their loading hierarchy.
//
// Example usage:
//
//	rc := modloader.NewResolutionContext(modloader.MustParseBuildNumber("IC-241.1"))
//	rc.Essential.Add(modloader.NewModuleID("com.example.core"))
//
//	resolver := modloader.NewResolver(rc,
//	    modloader.WithLogger(logger),
//	    modloader.WithExclusionHandler(func(d *modloader.ModuleDescriptor, r modloader.ExclusionReason) {
//	        fmt.Printf("%s excluded: %s\n", d, r)
//	    }))
//
//	resolution, err := resolver.Resolve(discovered)
//	if err != nil {
//	    return err
//	}
//	for _, m := range resolution.Hierarchy.Order() {
//	    fmt.Println(m.ModuleID())
//	}
type Resolver struct {
	rc           *ResolutionContext
	logger       Logger
	metrics      MetricsCollector
	onExclude    ExclusionFunc
	onUnresolved UnresolvedEdgeFunc
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger Logger) ResolverOption {
	return func(r *Resolver) { r.logger = NewLogger(logger) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics MetricsCollector) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// WithExclusionHandler sets the callback invoked once per excluded descriptor.
func WithExclusionHandler(fn ExclusionFunc) ResolverOption {
	return func(r *Resolver) { r.onExclude = fn }
}

// WithUnresolvedEdgeHandler sets the callback invoked for strict edges whose
// target cannot be found.
func WithUnresolvedEdgeHandler(fn UnresolvedEdgeFunc) ResolverOption {
	return func(r *Resolver) { r.onUnresolved = fn }
}

// NewResolver creates a resolver bound to rc. A nil rc resolves without a
// build number and with empty id sets.
func NewResolver(rc *ResolutionContext, opts ...ResolverOption) *Resolver {
	if rc == nil {
		rc = NewResolutionContext(BuildNumber{})
	}
	r := &Resolver{rc: rc, logger: DefaultLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context returns the resolution context.
func (r *Resolver) Context() *ResolutionContext { return r.rc }

// Logger returns the resolver's logger.
func (r *Resolver) Logger() Logger { return r.logger }

// Resolution is the outcome of one pipeline run.
type Resolution struct {
	// Enabled lists the loaded main descriptors in discovery order.
	Enabled []*ModuleDescriptor
	// PluginSet indexes the identities of every descriptor that survived
	// identity resolution, loaded or not.
	PluginSet *UnambiguousPluginSet
	Hierarchy *Hierarchy
	// Exclusions is the ordered exclusion log.
	Exclusions []Exclusion

	discovery map[*ModuleDescriptor]int
	active    *activeSet
}

// IsEnabled reports whether id names a loaded main descriptor, content
// module or alias.
func (r *Resolution) IsEnabled(id ModuleID) bool {
	m, ok := r.PluginSet.Resolve(id)
	return ok && r.active.isActive(m)
}

// Module resolves id to a loaded module.
func (r *Resolution) Module(id ModuleID) (Module, bool) {
	m, ok := r.PluginSet.Resolve(id)
	if !ok || !r.active.isActive(m) {
		return nil, false
	}
	return m, true
}

// Reason returns the exclusion reason recorded for d.
func (r *Resolution) Reason(d *ModuleDescriptor) (ExclusionReason, bool) {
	for _, e := range r.Exclusions {
		if e.Descriptor == d {
			return e.Reason, true
		}
	}
	return ExclusionReason{}, false
}

// pipeline is the per-run state shared by the phases.
type pipeline struct {
	rc           *ResolutionContext
	log          *ExclusionLog
	logger       Logger
	metrics      MetricsCollector
	onUnresolved UnresolvedEdgeFunc
	discovery    map[*ModuleDescriptor]int
	unresolved   map[unresolvedKey]struct{}
}

func (r *Resolver) newPipeline(notify ExclusionFunc, onUnresolved UnresolvedEdgeFunc) *pipeline {
	return &pipeline{
		rc:           r.rc,
		log:          NewExclusionLog(notify, r.logger, r.metrics),
		logger:       r.logger,
		metrics:      r.metrics,
		onUnresolved: onUnresolved,
		discovery:    make(map[*ModuleDescriptor]int),
		unresolved:   make(map[unresolvedKey]struct{}),
	}
}

// Resolve runs version selection, identity resolution, the dependency
// closure and hierarchy building. Exclusions never fail the run; an error
// is returned only for a broken identity conflict policy.
func (r *Resolver) Resolve(set DiscoveredSet) (*Resolution, error) {
	p := r.newPipeline(r.onExclude, r.onUnresolved)
	return p.run(set, r.rc.ExplicitSubset, nil)
}

// run executes the whole pipeline. explicit overrides the context subset;
// loaders holds loaders to reuse for modules that are already loaded.
func (p *pipeline) run(set DiscoveredSet, explicit IDSet, loaders map[Module]*Loader) (*Resolution, error) {
	start := time.Now()

	sel := p.selectVersions(set)
	enabled, pool, err := p.resolveIdentities(sel)
	if err != nil {
		return nil, err
	}
	c := p.computeClosure(enabled, pool, explicit)

	forced := make(map[Module]bool)
	var (
		active    *activeSet
		hierarchy *Hierarchy
	)
	for {
		active = p.evaluate(c, forced)
		var out []Module
		hierarchy, out = p.buildHierarchy(c.set, active, loaders)
		if len(out) == 0 {
			break
		}
		for _, m := range out {
			forced[m] = true
		}
	}

	res := &Resolution{
		Enabled:    active.mains,
		PluginSet:  c.set,
		Hierarchy:  hierarchy,
		Exclusions: p.log.Entries(),
		discovery:  p.discovery,
		active:     active,
	}

	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.SetGauge(metricEnabledModules, nil, float64(len(res.Enabled)))
		p.metrics.RecordHistogram(metricResolveDuration, nil, elapsed.Seconds())
	}
	p.logger.Info("Resolution completed",
		"enabled", len(res.Enabled),
		"modules", hierarchy.Len(),
		"excluded", len(res.Exclusions),
		"duration", elapsed)
	return res, nil
}
