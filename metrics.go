// metrics.go: Metrics collection interface and in-memory default
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sort"
	"strings"
	"sync"
)

// Metric names emitted by the resolver and the runtime.
const (
	metricExcludedTotal       = "modloader_modules_excluded_total"
	metricEnabledModules      = "modloader_modules_enabled"
	metricResolveDuration     = "modloader_resolve_duration_seconds"
	metricUnresolvedEdges     = "modloader_unresolved_edges_total"
	metricRuntimeTransitions  = "modloader_runtime_transitions_total"
	metricRuntimeLoadedModule = "modloader_runtime_loaded_modules"
)

// histogramWindow bounds the observations kept per in-memory histogram.
const histogramWindow = 1000

// MetricsCollector receives pipeline and runtime measurements. Labels may be
// nil. GetMetrics flattens everything into a map keyed by metricKey;
// histograms appear as <key>_count and <key>_sum.
//
// NewDefaultMetricsCollector keeps values in memory and
// NewPrometheusMetricsCollector exports them through a Prometheus registry:
//
//	collector.IncrementCounter("modloader_modules_excluded_total",
//	    map[string]string{"reason": "version_superseded"}, 1)
//	collector.SetGauge("modloader_modules_enabled", nil, 42)
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string, value int64)
	SetGauge(name string, labels map[string]string, value float64)
	RecordHistogram(name string, labels map[string]string, value float64)
	GetMetrics() map[string]interface{}
}

// DefaultMetricsCollector is the in-memory MetricsCollector.
type DefaultMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewDefaultMetricsCollector returns an empty in-memory collector.
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		counters:   map[string]int64{},
		gauges:     map[string]float64{},
		histograms: map[string][]float64{},
	}
}

func (c *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	key := metricKey(name, labels)
	c.mu.Lock()
	c.counters[key] += value
	c.mu.Unlock()
}

func (c *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	key := metricKey(name, labels)
	c.mu.Lock()
	c.gauges[key] = value
	c.mu.Unlock()
}

// RecordHistogram keeps the most recent histogramWindow observations.
func (c *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	key := metricKey(name, labels)
	c.mu.Lock()
	defer c.mu.Unlock()

	obs := append(c.histograms[key], value)
	if n := len(obs); n > histogramWindow {
		obs = obs[n-histogramWindow:]
	}
	c.histograms[key] = obs
}

func (c *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.counters)+len(c.gauges)+2*len(c.histograms))
	for key, n := range c.counters {
		out[key] = n
	}
	for key, g := range c.gauges {
		out[key] = g
	}
	for key, obs := range c.histograms {
		if len(obs) == 0 {
			continue
		}
		var sum float64
		for _, v := range obs {
			sum += v
		}
		out[key+"_count"] = len(obs)
		out[key+"_sum"] = sum
	}
	return out
}

// Counter returns the current value of a counter.
func (c *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[metricKey(name, labels)]
}

// Gauge returns the current value of a gauge.
func (c *DefaultMetricsCollector) Gauge(name string, labels map[string]string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[metricKey(name, labels)]
}

// metricKey flattens name and labels into name_k1_v1_k2_v2 with labels
// sorted by name.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range names {
		b.WriteByte('_')
		b.WriteString(k)
		b.WriteByte('_')
		b.WriteString(labels[k])
	}
	return b.String()
}
