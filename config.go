// config.go: Resolver configuration with Argus-based multi-format loading
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file configuration.
const (
	EnvBuildNumber        = "MODLOADER_BUILD_NUMBER"
	EnvDisableAllPlugins  = "MODLOADER_DISABLE_ALL_PLUGINS"
	EnvExplicitSubset     = "MODLOADER_EXPLICIT_SUBSET"
	maxConfigFileSize     = 10 * 1024 * 1024
	defaultMetricsBackend = "memory"
)

// SearchPathConfig is one ordered descriptor source.
type SearchPathConfig struct {
	Path string     `json:"path" yaml:"path"`
	Kind SourceKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// AuditSettings configures the optional argus audit trail.
type AuditSettings struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	OutputFile string `json:"output_file,omitempty" yaml:"output_file,omitempty"`
}

// MetricsSettings selects the metrics backend ("memory" or "prometheus").
type MetricsSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
}

// ResolverConfig is the file representation of a resolution run.
//
// Example YAML:
//
//	build_number: IC-241.15989
//	essential_plugins: [com.example.core]
//	disabled_plugins_file: /var/lib/app/disabled_plugins.txt
//	search_paths:
//	  - path: /opt/app/plugins
//	    kind: bundled
//	  - path: /home/user/.app/plugins
//	    kind: custom
type ResolverConfig struct {
	BuildNumber                    string              `json:"build_number,omitempty" yaml:"build_number,omitempty"`
	ProductMode                    string              `json:"product_mode,omitempty" yaml:"product_mode,omitempty"`
	EssentialPlugins               []string            `json:"essential_plugins,omitempty" yaml:"essential_plugins,omitempty"`
	AlwaysOnPlugins                []string            `json:"always_on_plugins,omitempty" yaml:"always_on_plugins,omitempty"`
	ExpiredPlugins                 []string            `json:"expired_plugins,omitempty" yaml:"expired_plugins,omitempty"`
	ExplicitSubset                 []string            `json:"explicit_subset,omitempty" yaml:"explicit_subset,omitempty"`
	DisablePluginLoadingCompletely bool                `json:"disable_plugin_loading_completely,omitempty" yaml:"disable_plugin_loading_completely,omitempty"`
	DisabledPluginsFile            string              `json:"disabled_plugins_file,omitempty" yaml:"disabled_plugins_file,omitempty"`
	SearchPaths                    []SearchPathConfig  `json:"search_paths,omitempty" yaml:"search_paths,omitempty"`
	Capabilities                   map[string][]string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Audit                          AuditSettings       `json:"audit" yaml:"audit"`
	Metrics                        MetricsSettings     `json:"metrics" yaml:"metrics"`
}

// LoadResolverConfig reads, parses, overrides from the environment,
// validates and defaults a configuration file. The format is detected from
// the file extension (JSON, YAML, TOML, and the other formats argus reads).
//
// Example usage:
//
//	cfg, err := modloader.LoadResolverConfig("modloader.yaml")
//	if err != nil {
//	    log.Fatalf("Failed to load config: %v", err)
//	}
func LoadResolverConfig(path string) (ResolverConfig, error) {
	var cfg ResolverConfig

	content, err := readConfigFile(path)
	if err != nil {
		return cfg, err
	}
	if err := parseResolverConfig(content, argus.DetectFormat(path), &cfg); err != nil {
		return cfg, NewConfigParseError(path, err)
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewConfigNotFoundError(path)
		}
		return nil, NewConfigPathError(path, err.Error())
	}
	if !info.Mode().IsRegular() {
		return nil, NewConfigPathError(path, "configuration path is not a regular file")
	}
	if info.Size() > maxConfigFileSize {
		return nil, NewConfigPathError(path, fmt.Sprintf("configuration file size exceeds limit: %d > %d", info.Size(), maxConfigFileSize))
	}
	content, err := os.ReadFile(cleanPath) // #nosec G304 -- path is provided by the operator
	if err != nil {
		return nil, NewConfigPathError(path, err.Error())
	}
	return content, nil
}

// parseResolverConfig decodes YAML with yaml.v3 and every other format
// through argus.ParseConfig.
func parseResolverConfig(content []byte, format argus.ConfigFormat, cfg *ResolverConfig) error {
	if format == argus.FormatYAML {
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil
	}
	configMap, err := argus.ParseConfig(content, format)
	if err != nil {
		return err
	}
	return bindConfigMap(configMap, cfg)
}

// bindConfigMap converts a generic map into the typed config through JSON.
func bindConfigMap(configMap map[string]interface{}, cfg *ResolverConfig) error {
	raw, err := json.Marshal(configMap)
	if err != nil {
		return fmt.Errorf("failed to encode config map: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides replaces file values with MODLOADER_* variables.
func (c *ResolverConfig) ApplyEnvOverrides() error {
	if v := strings.TrimSpace(os.Getenv(EnvBuildNumber)); v != "" {
		c.BuildNumber = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDisableAllPlugins)); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigValidationError(EnvDisableAllPlugins+" must be a boolean", err)
		}
		c.DisablePluginLoadingCompletely = disabled
	}
	if v := strings.TrimSpace(os.Getenv(EnvExplicitSubset)); v != "" {
		c.ExplicitSubset = splitList(v)
	}
	return nil
}

// Validate checks the configuration for structural errors.
func (c *ResolverConfig) Validate() error {
	if c.BuildNumber != "" {
		if _, err := ParseBuildNumber(c.BuildNumber); err != nil {
			return NewConfigValidationError("invalid build_number", err)
		}
	}
	for i, sp := range c.SearchPaths {
		if strings.TrimSpace(sp.Path) == "" {
			return NewConfigValidationError(fmt.Sprintf("search_paths[%d]: path is required", i), nil)
		}
		switch sp.Kind {
		case "", SourceBundled, SourceCustom, SourceSystemPropertyProvided:
		default:
			return NewConfigValidationError(fmt.Sprintf("search_paths[%d]: unknown kind %q", i, sp.Kind), nil)
		}
	}
	switch c.Metrics.Backend {
	case "", "memory", "prometheus":
	default:
		return NewConfigValidationError(fmt.Sprintf("unknown metrics backend %q", c.Metrics.Backend), nil)
	}
	if c.Audit.Enabled && c.Audit.OutputFile == "" {
		return NewConfigValidationError("audit.output_file is required when audit is enabled", nil)
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *ResolverConfig) ApplyDefaults() {
	for i := range c.SearchPaths {
		if c.SearchPaths[i].Kind == "" {
			c.SearchPaths[i].Kind = SourceCustom
		}
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = defaultMetricsBackend
	}
}

// NewResolutionContext builds the resolution context described by the
// configuration. disabled is the persisted disabled set.
func (c *ResolverConfig) NewResolutionContext(disabled IDSet) (*ResolutionContext, error) {
	var build BuildNumber
	if c.BuildNumber != "" {
		var err error
		if build, err = ParseBuildNumber(c.BuildNumber); err != nil {
			return nil, NewConfigValidationError("invalid build_number", err)
		}
	}

	rc := NewResolutionContext(build)
	rc.ProductMode = c.ProductMode
	rc.Essential = parseIDs(c.EssentialPlugins)
	rc.AlwaysOn = parseIDs(c.AlwaysOnPlugins)
	rc.Expired = parseIDs(c.ExpiredPlugins)
	if len(c.ExplicitSubset) > 0 {
		rc.ExplicitSubset = parseIDs(c.ExplicitSubset)
	}
	rc.DisableLoadingCompletely = c.DisablePluginLoadingCompletely
	if disabled != nil {
		rc.Disabled = disabled
	}
	if len(c.Capabilities) > 0 {
		caps := NewStaticCapabilityMap(c.ProductMode)
		for mode, ids := range c.Capabilities {
			for _, id := range ids {
				caps.Provide(mode, ParseModuleID(id))
			}
		}
		rc.Capabilities = caps
	}
	return rc, nil
}

// AuditConfig returns the argus audit configuration.
func (c *ResolverConfig) AuditConfig() argus.AuditConfig {
	return argus.AuditConfig{
		Enabled:       c.Audit.Enabled,
		OutputFile:    c.Audit.OutputFile,
		MinLevel:      argus.AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// NewMetricsCollector returns the configured collector, or nil when metrics
// are disabled.
func (c *ResolverConfig) NewMetricsCollector(logger Logger) MetricsCollector {
	if !c.Metrics.Enabled {
		return nil
	}
	if c.Metrics.Backend == "prometheus" {
		return NewPrometheusMetricsCollector(logger)
	}
	return NewDefaultMetricsCollector()
}

func parseIDs(values []string) IDSet {
	set := NewIDSet()
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set.Add(ParseModuleID(v))
		}
	}
	return set
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
