// descriptor.go: Immutable module descriptor model
//
// Descriptors are produced once by a descriptor source (see discovery.go) and
// are treated as read-only by every resolution phase. Phases build their own
// indexes and orderings on top of them.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"strings"
)

// Namespace qualifies a module identity.
type Namespace string

// DefaultNamespace is the well-known platform namespace used when an id does
// not declare one.
const DefaultNamespace Namespace = "core"

// ModuleID is a namespaced module identity. Two ids are equal iff both the
// name and the namespace match, so ModuleID can be used directly as a map key.
type ModuleID struct {
	Namespace Namespace `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Name      string    `json:"name" yaml:"name"`
}

// NewModuleID returns an id in the default namespace.
func NewModuleID(name string) ModuleID {
	return ModuleID{Namespace: DefaultNamespace, Name: name}
}

// NewNamespacedID returns an id in the given namespace.
func NewNamespacedID(ns Namespace, name string) ModuleID {
	return ModuleID{Namespace: ns, Name: name}.Normalize()
}

// ParseModuleID parses "namespace:name" or a bare "name".
func ParseModuleID(s string) ModuleID {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, ":"); idx > 0 {
		return NewNamespacedID(Namespace(s[:idx]), s[idx+1:])
	}
	return NewModuleID(s)
}

// Normalize fills an empty namespace with DefaultNamespace.
func (id ModuleID) Normalize() ModuleID {
	if id.Namespace == "" && id.Name != "" {
		id.Namespace = DefaultNamespace
	}
	return id
}

// IsZero reports whether the id is unset.
func (id ModuleID) IsZero() bool {
	return id.Name == ""
}

// String renders the id; ids in the default namespace render as the bare name.
func (id ModuleID) String() string {
	id = id.Normalize()
	if id.Namespace == DefaultNamespace || id.Namespace == "" {
		return id.Name
	}
	return string(id.Namespace) + ":" + id.Name
}

// LoadingRule controls how a content module is loaded with its owner.
type LoadingRule int

const (
	// LoadingOptional loads the content module only if its dependencies resolve.
	LoadingOptional LoadingRule = iota
	// LoadingRequired always loads with the owner; a failure fails the owner.
	LoadingRequired
	// LoadingEmbedded always loads with the owner and shares its loader.
	LoadingEmbedded
)

// String implements fmt.Stringer.
func (r LoadingRule) String() string {
	switch r {
	case LoadingRequired:
		return "required"
	case LoadingEmbedded:
		return "embedded"
	default:
		return "optional"
	}
}

// ParseLoadingRule converts a manifest value into a LoadingRule.
// Unknown values map to LoadingOptional.
func ParseLoadingRule(s string) LoadingRule {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "required":
		return LoadingRequired
	case "embedded":
		return LoadingEmbedded
	default:
		return LoadingOptional
	}
}

// DependencyEdge is a closed sum type: PluginEdge or ModuleEdge. The
// unexported marker method prevents other implementations, so a type switch
// over the two cases is exhaustive.
type DependencyEdge interface {
	// TargetID returns the id the edge points at.
	TargetID() ModuleID
	dependencyEdge()
}

// PluginEdge is a dependency on a plugin (main module) identity or one of its
// aliases. Legacy marks the old single-edge "depends" declaration style.
type PluginEdge struct {
	Target   ModuleID
	Required bool
	Legacy   bool
}

// TargetID implements DependencyEdge.
func (e PluginEdge) TargetID() ModuleID { return e.Target.Normalize() }

func (PluginEdge) dependencyEdge() {}

// ModuleEdge is a dependency on a content module. Module edges are always
// strict.
type ModuleEdge struct {
	Target ModuleID
}

// TargetID implements DependencyEdge.
func (e ModuleEdge) TargetID() ModuleID { return e.Target.Normalize() }

func (ModuleEdge) dependencyEdge() {}

// IsStrict reports whether the resolver must follow the edge.
func IsStrict(edge DependencyEdge) bool {
	switch e := edge.(type) {
	case PluginEdge:
		return e.Required
	case ModuleEdge:
		return true
	default:
		return false
	}
}

// ExtensionPoint is an extension point declared by a module.
type ExtensionPoint struct {
	Name    string `json:"name" yaml:"name"`
	Dynamic bool   `json:"dynamic" yaml:"dynamic"`
}

// SourceKind identifies where a descriptor was discovered.
type SourceKind string

const (
	SourceBundled                SourceKind = "bundled"
	SourceCustom                 SourceKind = "custom"
	SourceSystemPropertyProvided SourceKind = "system-property-provided"
)

// Module is the common view of main descriptors and content modules used by
// the graph phases.
type Module interface {
	ModuleID() ModuleID
	// Main returns the owning main descriptor (itself for a main descriptor).
	Main() *ModuleDescriptor
	Edges() []DependencyEdge
	Prefix() string
	IsMain() bool
}

// ModuleDescriptor describes a main module.
type ModuleDescriptor struct {
	ID               ModuleID
	Aliases          []ModuleID
	Version          string
	SinceBuild       string
	UntilBuild       string
	PackagePrefix    string
	Content          []*SubModuleDescriptor
	Dependencies     []DependencyEdge
	IncompatibleWith []ModuleID
	RequireRestart   bool
	// ImplementationDetail marks a plugin that exists only to serve the
	// plugins it depends on; the runtime loads it together with them.
	ImplementationDetail bool
	ExtensionPoints      []ExtensionPoint
	Extensions           []string

	// Source and Path are filled by the descriptor source.
	Source SourceKind
	Path   string
}

// SubModuleDescriptor describes a content module owned by exactly one main
// descriptor.
type SubModuleDescriptor struct {
	ID                  ModuleID
	Aliases             []ModuleID
	Rule                LoadingRule
	RequiredIfAvailable ModuleID
	Dependencies        []DependencyEdge
	PackagePrefix       string
	Extensions          []string

	owner *ModuleDescriptor
}

// NewModuleDescriptor creates a descriptor and binds the given content
// modules to it.
func NewModuleDescriptor(id ModuleID, version string, content ...*SubModuleDescriptor) *ModuleDescriptor {
	d := &ModuleDescriptor{ID: id.Normalize(), Version: version, Content: content}
	return d.Bind()
}

// Bind links every content module to this descriptor and normalizes ids.
// Descriptor sources call it once after construction.
func (d *ModuleDescriptor) Bind() *ModuleDescriptor {
	d.ID = d.ID.Normalize()
	for _, sub := range d.Content {
		sub.owner = d
		sub.ID = sub.ID.Normalize()
	}
	return d
}

// ModuleID implements Module.
func (d *ModuleDescriptor) ModuleID() ModuleID { return d.ID }

// Main implements Module.
func (d *ModuleDescriptor) Main() *ModuleDescriptor { return d }

// Edges implements Module.
func (d *ModuleDescriptor) Edges() []DependencyEdge { return d.Dependencies }

// Prefix implements Module.
func (d *ModuleDescriptor) Prefix() string { return d.PackagePrefix }

// IsMain implements Module.
func (d *ModuleDescriptor) IsMain() bool { return true }

// IsModular reports whether the descriptor owns content modules (v2 style).
func (d *ModuleDescriptor) IsModular() bool { return len(d.Content) > 0 }

// String implements fmt.Stringer.
func (d *ModuleDescriptor) String() string {
	if d.Version == "" {
		return d.ID.String()
	}
	return d.ID.String() + "@" + d.Version
}

// ModuleID implements Module.
func (s *SubModuleDescriptor) ModuleID() ModuleID { return s.ID }

// Main implements Module.
func (s *SubModuleDescriptor) Main() *ModuleDescriptor { return s.owner }

// Owner returns the owning main descriptor.
func (s *SubModuleDescriptor) Owner() *ModuleDescriptor { return s.owner }

// Edges implements Module.
func (s *SubModuleDescriptor) Edges() []DependencyEdge { return s.Dependencies }

// Prefix implements Module.
func (s *SubModuleDescriptor) Prefix() string { return s.PackagePrefix }

// IsMain implements Module.
func (s *SubModuleDescriptor) IsMain() bool { return false }

// String implements fmt.Stringer.
func (s *SubModuleDescriptor) String() string { return s.ID.String() }

// DescriptorSource is one ordered source of candidate descriptors.
type DescriptorSource struct {
	Kind        SourceKind
	Descriptors []*ModuleDescriptor
}

// DiscoveredSet is the ordered list of sources handed to Phase 1. Source
// order is the priority used for version selection: earlier wins.
type DiscoveredSet []DescriptorSource

// All returns every descriptor in source order.
func (s DiscoveredSet) All() []*ModuleDescriptor {
	var out []*ModuleDescriptor
	for _, src := range s {
		out = append(out, src.Descriptors...)
	}
	return out
}

// isDotPrefix reports whether a is a dot-segment prefix of b
// ("com.foo" is a prefix of "com.foo.bar" but not of "com.foobar").
func isDotPrefix(a, b string) bool {
	return len(a) < len(b) && strings.HasPrefix(b, a) && b[len(a)] == '.'
}
