// metrics_test.go: Metrics collector tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMetricsCollector(t *testing.T) {
	m := NewDefaultMetricsCollector()
	reason := map[string]string{"reason": "expired"}

	m.IncrementCounter(metricExcludedTotal, reason, 1)
	m.IncrementCounter(metricExcludedTotal, reason, 2)
	m.SetGauge(metricEnabledModules, nil, 5)
	m.SetGauge(metricEnabledModules, nil, 7)
	m.RecordHistogram(metricResolveDuration, nil, 0.25)
	m.RecordHistogram(metricResolveDuration, nil, 0.75)

	assert.Equal(t, int64(3), m.Counter(metricExcludedTotal, reason))
	assert.Equal(t, float64(7), m.Gauge(metricEnabledModules, nil))

	snapshot := m.GetMetrics()
	assert.Equal(t, int64(3), snapshot["modloader_modules_excluded_total_reason_expired"])
	assert.Equal(t, 2, snapshot[metricResolveDuration+"_count"])
	assert.InDelta(t, 1.0, snapshot[metricResolveDuration+"_sum"], 1e-9)
}

func TestDefaultMetricsCollector_Concurrent(t *testing.T) {
	m := NewDefaultMetricsCollector()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncrementCounter(metricUnresolvedEdges, nil, 1)
				_ = m.GetMetrics()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), m.Counter(metricUnresolvedEdges, nil))
}

func TestMetricKey(t *testing.T) {
	assert.Equal(t, "requests", metricKey("requests", nil))
	assert.Equal(t, "requests_a_1_b_2", metricKey("requests", map[string]string{"b": "2", "a": "1"}))
}

func TestPrometheusMetricsCollector(t *testing.T) {
	logger := NewTestLogger()
	p := NewPrometheusMetricsCollector(logger)

	p.IncrementCounter(metricRuntimeTransitions, map[string]string{"event": "module_loaded"}, 1)
	p.IncrementCounter(metricRuntimeTransitions, map[string]string{"event": "module_loaded"}, 1)
	p.IncrementCounter(metricRuntimeTransitions, map[string]string{"event": "module_unloaded"}, 1)
	p.SetGauge(metricRuntimeLoadedModule, nil, 4)
	p.RecordHistogram(metricResolveDuration, nil, 0.5)

	snapshot := p.GetMetrics()
	assert.Equal(t, int64(2), snapshot["modloader_runtime_transitions_total_event_module_loaded"])
	assert.Equal(t, int64(1), snapshot["modloader_runtime_transitions_total_event_module_unloaded"])
	assert.Equal(t, float64(4), snapshot[metricRuntimeLoadedModule])
	assert.Equal(t, 1, snapshot[metricResolveDuration+"_count"])
	assert.InDelta(t, 0.5, snapshot[metricResolveDuration+"_sum"], 1e-9)

	families, err := p.Registry().Gather()
	assert.NoError(t, err)
	assert.Len(t, families, 3)

	t.Run("LabelMismatchDropped", func(t *testing.T) {
		p.IncrementCounter(metricRuntimeTransitions, map[string]string{"kind": "other"}, 1)
		assert.True(t, logger.HasMessage("WARN", "Metric label set mismatch"))
		assert.Equal(t, int64(2), p.GetMetrics()["modloader_runtime_transitions_total_event_module_loaded"])
	})
}

func TestPrometheusMetricsCollector_WithResolver(t *testing.T) {
	p := NewPrometheusMetricsCollector(nil)
	old := plugin("com.example.a", "1.0")
	newer := plugin("com.example.a", "2.0")

	resolve(t, newTestContext(), source(old, newer), WithMetrics(p))

	snapshot := p.GetMetrics()
	assert.Equal(t, int64(1), snapshot["modloader_modules_excluded_total_reason_version_superseded"])
	assert.Equal(t, float64(1), snapshot[metricEnabledModules])
}
