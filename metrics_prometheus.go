// metrics_prometheus.go: Prometheus-backed MetricsCollector
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector registers one vector per metric name on a
// private registry. The label set of a metric is fixed by its first use;
// later calls with different label names are dropped and logged.
type PrometheusMetricsCollector struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	vectors  map[string]prometheus.Collector
	labels   map[string][]string
	logger   Logger
}

// NewPrometheusMetricsCollector creates a collector backed by a new registry.
func NewPrometheusMetricsCollector(logger Logger) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
		vectors:  make(map[string]prometheus.Collector),
		labels:   make(map[string][]string),
		logger:   NewLogger(logger),
	}
}

// Registry returns the underlying registry, e.g. for promhttp.HandlerFor.
func (p *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return p.registry
}

// IncrementCounter implements MetricsCollector
func (p *PrometheusMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	c := p.vector(name, labels, func(names []string) prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
	})
	if vec, ok := c.(*prometheus.CounterVec); ok {
		vec.With(prometheus.Labels(labels)).Add(float64(value))
	}
}

// SetGauge implements MetricsCollector
func (p *PrometheusMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	c := p.vector(name, labels, func(names []string) prometheus.Collector {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, names)
	})
	if vec, ok := c.(*prometheus.GaugeVec); ok {
		vec.With(prometheus.Labels(labels)).Set(value)
	}
}

// RecordHistogram implements MetricsCollector
func (p *PrometheusMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	c := p.vector(name, labels, func(names []string) prometheus.Collector {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, names)
	})
	if vec, ok := c.(*prometheus.HistogramVec); ok {
		vec.With(prometheus.Labels(labels)).Observe(value)
	}
}

// GetMetrics implements MetricsCollector. Counters and gauges are reported
// by their sample value, histograms by sample count and sum.
func (p *PrometheusMetricsCollector) GetMetrics() map[string]interface{} {
	out := make(map[string]interface{})
	families, err := p.registry.Gather()
	if err != nil {
		p.logger.Warn("Failed to gather prometheus metrics", "error", err)
		return out
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			key := metricKey(family.GetName(), labels)
			switch {
			case m.GetCounter() != nil:
				out[key] = int64(m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key+"_count"] = int(m.GetHistogram().GetSampleCount())
				out[key+"_sum"] = m.GetHistogram().GetSampleSum()
			}
		}
	}
	return out
}

func (p *PrometheusMetricsCollector) vector(name string, labels map[string]string, create func([]string) prometheus.Collector) prometheus.Collector {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.vectors[name]; ok {
		if !sameLabelNames(p.labels[name], names) {
			p.logger.Warn("Metric label set mismatch", "metric", name)
			return nil
		}
		return c
	}

	c := create(names)
	if err := p.registry.Register(c); err != nil {
		p.logger.Warn("Failed to register metric", "metric", name, "error", err)
		return nil
	}
	p.vectors[name] = c
	p.labels[name] = names
	return c
}

func sameLabelNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
