// exclusion.go: Exclusion reasons and the exclusion log
//
// Exclusion is modeled as data: every descriptor dropped from consideration
// carries exactly one ExclusionReason and is reported exactly once.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// ExclusionKind enumerates why a descriptor was excluded.
type ExclusionKind int

const (
	ExclusionVersionSuperseded ExclusionKind = iota + 1
	ExclusionUntilBuildViolation
	ExclusionSinceBuildViolation
	ExclusionDeclaresConflictingID
	ExclusionIsMarkedDisabled
	ExclusionIsIncompatibleWithAnotherPlugin
	ExclusionNotRequiredForExplicitSubset
	ExclusionLoadingDisabledCompletely
	ExclusionExpired
	ExclusionMissingRequiredDependency
	ExclusionDependencyCycle
	ExclusionPackagePrefixCollision
)

var exclusionKindNames = map[ExclusionKind]string{
	ExclusionVersionSuperseded:               "version_superseded",
	ExclusionUntilBuildViolation:             "until_build_violation",
	ExclusionSinceBuildViolation:             "since_build_violation",
	ExclusionDeclaresConflictingID:           "declares_conflicting_id",
	ExclusionIsMarkedDisabled:                "is_marked_disabled",
	ExclusionIsIncompatibleWithAnotherPlugin: "incompatible_with_another_plugin",
	ExclusionNotRequiredForExplicitSubset:    "not_required_for_explicit_subset",
	ExclusionLoadingDisabledCompletely:       "loading_disabled_completely",
	ExclusionExpired:                         "expired",
	ExclusionMissingRequiredDependency:       "missing_required_dependency",
	ExclusionDependencyCycle:                 "dependency_cycle",
	ExclusionPackagePrefixCollision:          "package_prefix_collision",
}

// String implements fmt.Stringer.
func (k ExclusionKind) String() string {
	if name, ok := exclusionKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ExclusionReason is attached to every excluded descriptor.
//
// ID carries the kind-specific identity: the conflicting id for
// DeclaresConflictingID, the other plugin for IsIncompatibleWithAnotherPlugin
// and PackagePrefixCollision, the missing target for
// MissingRequiredDependency and the winning descriptor for VersionSuperseded.
// Detail carries the violated build bound or the colliding package prefix.
type ExclusionReason struct {
	Kind   ExclusionKind
	ID     ModuleID
	Detail string
}

// String implements fmt.Stringer.
func (r ExclusionReason) String() string {
	switch {
	case !r.ID.IsZero() && r.Detail != "":
		return fmt.Sprintf("%s(%s, %s)", r.Kind, r.ID, r.Detail)
	case !r.ID.IsZero():
		return fmt.Sprintf("%s(%s)", r.Kind, r.ID)
	case r.Detail != "":
		return fmt.Sprintf("%s(%s)", r.Kind, r.Detail)
	default:
		return r.Kind.String()
	}
}

// Exclusion is one entry of the exclusion log.
type Exclusion struct {
	Descriptor *ModuleDescriptor
	Reason     ExclusionReason
	Timestamp  time.Time
}

// ExclusionFunc is the caller-supplied exclusion callback.
type ExclusionFunc func(descriptor *ModuleDescriptor, reason ExclusionReason)

// UnresolvedEdgeFunc is the caller-supplied callback for dependency edges
// whose target cannot be found.
type UnresolvedEdgeFunc func(owner Module, edge DependencyEdge)

// ExclusionLog records exclusions in order and guarantees that a descriptor
// is reported at most once.
type ExclusionLog struct {
	mu       sync.Mutex
	entries  []Exclusion
	excluded map[*ModuleDescriptor]ExclusionReason
	notify   ExclusionFunc
	logger   Logger
	metrics  MetricsCollector
}

// NewExclusionLog creates an empty log. notify, logger and metrics may be nil.
func NewExclusionLog(notify ExclusionFunc, logger Logger, metrics MetricsCollector) *ExclusionLog {
	return &ExclusionLog{
		excluded: make(map[*ModuleDescriptor]ExclusionReason),
		notify:   notify,
		logger:   NewLogger(logger),
		metrics:  metrics,
	}
}

// Exclude records the exclusion unless the descriptor was already excluded.
// It returns false when the descriptor already carries a reason.
func (l *ExclusionLog) Exclude(d *ModuleDescriptor, reason ExclusionReason) bool {
	l.mu.Lock()
	if _, done := l.excluded[d]; done {
		l.mu.Unlock()
		return false
	}
	l.excluded[d] = reason
	l.entries = append(l.entries, Exclusion{Descriptor: d, Reason: reason, Timestamp: timecache.CachedTime()})
	l.mu.Unlock()

	l.logger.Warn("Module excluded", "module", d.String(), "reason", reason.String())
	if l.metrics != nil {
		l.metrics.IncrementCounter(metricExcludedTotal, map[string]string{"reason": reason.Kind.String()}, 1)
	}
	if l.notify != nil {
		safeCall(l.logger, func() { l.notify(d, reason) })
	}
	return true
}

// Reason returns the recorded reason for d.
func (l *ExclusionLog) Reason(d *ModuleDescriptor) (ExclusionReason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.excluded[d]
	return r, ok
}

// IsExcluded reports whether d carries a reason.
func (l *ExclusionLog) IsExcluded(d *ModuleDescriptor) bool {
	_, ok := l.Reason(d)
	return ok
}

// Entries returns a copy of the log in recording order.
func (l *ExclusionLog) Entries() []Exclusion {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Exclusion, len(l.entries))
	copy(out, l.entries)
	return out
}
