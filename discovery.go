// discovery.go: Manifest discovery over ordered search paths
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest file names in lookup priority order. A directory holding more
// than one uses the first.
var manifestFileNames = []string{"plugin.json", "plugin.yaml", "plugin.yml", "plugin.toml"}

const defaultDiscoveryDepth = 3

// PluginManifest is the on-disk description of a plugin.
//
// Example YAML manifest:
//
//	id: com.example.git
//	version: 2.1.0
//	since_build: "241"
//	until_build: "241.*"
//	package: com.example.git
//	depends:
//	  - plugin: com.example.vcs
//	  - plugin: com.example.github
//	    optional: true
//	content:
//	  - name: com.example.git.ui
//	    loading: embedded
//	  - name: com.example.git.cloud
//	    required_if_available: com.example.cloud
//	    dependencies:
//	      modules: [com.example.cloud.api]
//	extension_points:
//	  - name: com.example.git.hook
//	    dynamic: true
type PluginManifest struct {
	ID                   string               `json:"id" yaml:"id" toml:"id"`
	Version              string               `json:"version,omitempty" yaml:"version,omitempty" toml:"version"`
	Aliases              []string             `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases"`
	SinceBuild           string               `json:"since_build,omitempty" yaml:"since_build,omitempty" toml:"since_build"`
	UntilBuild           string               `json:"until_build,omitempty" yaml:"until_build,omitempty" toml:"until_build"`
	Package              string               `json:"package,omitempty" yaml:"package,omitempty" toml:"package"`
	RequireRestart       bool                 `json:"require_restart,omitempty" yaml:"require_restart,omitempty" toml:"require_restart"`
	ImplementationDetail bool                 `json:"implementation_detail,omitempty" yaml:"implementation_detail,omitempty" toml:"implementation_detail"`
	IncompatibleWith     []string             `json:"incompatible_with,omitempty" yaml:"incompatible_with,omitempty" toml:"incompatible_with"`
	Depends              []ManifestDependency `json:"depends,omitempty" yaml:"depends,omitempty" toml:"depends"`
	Dependencies         ManifestDependencies `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies"`
	Content              []ManifestContent    `json:"content,omitempty" yaml:"content,omitempty" toml:"content"`
	ExtensionPoints      []ExtensionPoint     `json:"extension_points,omitempty" yaml:"extension_points,omitempty" toml:"extension_points"`
	Extensions           []string             `json:"extensions,omitempty" yaml:"extensions,omitempty" toml:"extensions"`
}

// ManifestDependency is a legacy plugin dependency.
type ManifestDependency struct {
	Plugin   string `json:"plugin" yaml:"plugin" toml:"plugin"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty" toml:"optional"`
}

// ManifestDependencies lists new-format dependencies: required plugin
// identities and module dependencies.
type ManifestDependencies struct {
	Plugins []string `json:"plugins,omitempty" yaml:"plugins,omitempty" toml:"plugins"`
	Modules []string `json:"modules,omitempty" yaml:"modules,omitempty" toml:"modules"`
}

// ManifestContent declares a content module.
type ManifestContent struct {
	Name                string               `json:"name" yaml:"name" toml:"name"`
	Loading             string               `json:"loading,omitempty" yaml:"loading,omitempty" toml:"loading"`
	RequiredIfAvailable string               `json:"required_if_available,omitempty" yaml:"required_if_available,omitempty" toml:"required_if_available"`
	Package             string               `json:"package,omitempty" yaml:"package,omitempty" toml:"package"`
	Aliases             []string             `json:"aliases,omitempty" yaml:"aliases,omitempty" toml:"aliases"`
	Dependencies        ManifestDependencies `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies"`
	Extensions          []string             `json:"extensions,omitempty" yaml:"extensions,omitempty" toml:"extensions"`
}

// Discoverer scans search paths for plugin manifests.
type Discoverer struct {
	paths    []SearchPathConfig
	maxDepth int
	logger   Logger
}

// NewDiscoverer creates a discoverer. Search path order is source priority.
func NewDiscoverer(paths []SearchPathConfig, logger Logger) *Discoverer {
	return &Discoverer{
		paths:    paths,
		maxDepth: defaultDiscoveryDepth,
		logger:   NewLogger(logger),
	}
}

// WithMaxDepth limits directory recursion below each search path.
func (d *Discoverer) WithMaxDepth(depth int) *Discoverer {
	if depth >= 0 {
		d.maxDepth = depth
	}
	return d
}

// Discover returns one DescriptorSource per search path, in order. A
// missing search path yields an empty source; unparsable manifests are
// logged and skipped.
func (d *Discoverer) Discover(ctx context.Context) (DiscoveredSet, error) {
	set := make(DiscoveredSet, 0, len(d.paths))
	for _, sp := range d.paths {
		kind := sp.Kind
		if kind == "" {
			kind = SourceCustom
		}
		src := DescriptorSource{Kind: kind}

		if _, err := os.Stat(sp.Path); err != nil {
			d.logger.Warn("Search path unavailable", "path", sp.Path, "error", err)
			set = append(set, src)
			continue
		}
		if err := d.scanDirectory(ctx, filepath.Clean(sp.Path), 0, kind, &src); err != nil {
			return nil, err
		}

		d.logger.Info("Search path scanned", "path", sp.Path, "kind", string(kind), "descriptors", len(src.Descriptors))
		set = append(set, src)
	}
	return set, nil
}

func (d *Discoverer) scanDirectory(ctx context.Context, path string, depth int, kind SourceKind, src *DescriptorSource) error {
	if depth > d.maxDepth {
		return nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		d.logger.Error("Failed to scan directory", "path", path, "error", err)
		return nil
	}

	files := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			files[entry.Name()] = true
		}
	}
	for _, name := range manifestFileNames {
		if !files[name] {
			continue
		}
		manifestPath := filepath.Join(path, name)
		desc, err := ParseManifestFile(manifestPath)
		if err != nil {
			d.logger.Warn("Skipping invalid manifest", "path", manifestPath, "error", err)
			break
		}
		desc.Source = kind
		src.Descriptors = append(src.Descriptors, desc)
		d.logger.Debug("Discovered plugin", "id", desc.ID.String(), "version", desc.Version, "path", manifestPath)
		break
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if entry.IsDir() {
			if err := d.scanDirectory(ctx, filepath.Join(path, entry.Name()), depth+1, kind, src); err != nil {
				return err
			}
		}
	}
	return nil
}

// ParseManifestFile reads a manifest and converts it to a bound descriptor.
// The format is chosen by extension.
func ParseManifestFile(path string) (*ModuleDescriptor, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path comes from a configured search path
	if err != nil {
		return nil, NewDiscoveryError("failed to read manifest file", err).WithContext("path", path)
	}

	var manifest PluginManifest
	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ".json":
		err = json.Unmarshal(data, &manifest)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &manifest)
	case ".toml":
		err = toml.Unmarshal(data, &manifest)
	default:
		return nil, NewDiscoveryError("unsupported manifest format", nil).WithContext("path", path)
	}
	if err != nil {
		return nil, NewDiscoveryError("failed to parse manifest", err).WithContext("path", path)
	}

	desc, err := manifest.Descriptor()
	if err != nil {
		return nil, err
	}
	desc.Path = cleanPath
	return desc, nil
}

// Descriptor converts the manifest into a bound ModuleDescriptor.
func (m *PluginManifest) Descriptor() (*ModuleDescriptor, error) {
	if err := validateManifestID(m.ID); err != nil {
		return nil, err
	}

	desc := &ModuleDescriptor{
		ID:                   ParseModuleID(m.ID),
		Aliases:              parseIDList(m.Aliases),
		Version:              m.Version,
		SinceBuild:           m.SinceBuild,
		UntilBuild:           m.UntilBuild,
		PackagePrefix:        m.Package,
		RequireRestart:       m.RequireRestart,
		ImplementationDetail: m.ImplementationDetail,
		ExtensionPoints:      m.ExtensionPoints,
		Extensions:           m.Extensions,
	}
	desc.IncompatibleWith = parseIDList(m.IncompatibleWith)

	for _, dep := range m.Depends {
		if dep.Plugin == "" {
			return nil, NewInvalidDescriptorError("legacy dependency without plugin id", desc.ID)
		}
		desc.Dependencies = append(desc.Dependencies, PluginEdge{
			Target:   ParseModuleID(dep.Plugin),
			Required: !dep.Optional,
			Legacy:   true,
		})
	}
	desc.Dependencies = append(desc.Dependencies, m.Dependencies.edges()...)

	for _, c := range m.Content {
		if err := validateManifestID(c.Name); err != nil {
			return nil, err
		}
		sub := &SubModuleDescriptor{
			ID:            ParseModuleID(c.Name),
			Aliases:       parseIDList(c.Aliases),
			Rule:          ParseLoadingRule(c.Loading),
			PackagePrefix: c.Package,
			Dependencies:  c.Dependencies.edges(),
			Extensions:    c.Extensions,
		}
		if c.RequiredIfAvailable != "" {
			sub.RequiredIfAvailable = ParseModuleID(c.RequiredIfAvailable)
		}
		desc.Content = append(desc.Content, sub)
	}
	return desc.Bind(), nil
}

func (deps ManifestDependencies) edges() []DependencyEdge {
	var edges []DependencyEdge
	for _, p := range deps.Plugins {
		edges = append(edges, PluginEdge{Target: ParseModuleID(p), Required: true})
	}
	for _, mod := range deps.Modules {
		edges = append(edges, ModuleEdge{Target: ParseModuleID(mod)})
	}
	return edges
}

func parseIDList(values []string) []ModuleID {
	if len(values) == 0 {
		return nil
	}
	ids := make([]ModuleID, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			ids = append(ids, ParseModuleID(v))
		}
	}
	return ids
}

// validateManifestID rejects empty ids and ids carrying control or path
// separator characters.
func validateManifestID(id string) error {
	if strings.TrimSpace(id) == "" {
		return NewDiscoveryError("manifest id is required", nil)
	}
	for _, r := range id {
		if r < 32 || r == 127 {
			return NewDiscoveryError("manifest id contains control character", nil).
				WithContext("id", id).
				WithContext("control_character_code", r)
		}
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return NewDiscoveryError(fmt.Sprintf("manifest id %q contains path characters", id), nil)
	}
	return nil
}
