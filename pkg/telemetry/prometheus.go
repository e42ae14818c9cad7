package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMeter is a Meter backed by a prometheus.Registry. Unlike
// SlogMeter it binds each metric name to a *Vec on first use, so every
// subsequent call with that name must carry the same set of label keys —
// the same constraint Prometheus itself imposes on a registered metric.
type PrometheusMeter struct {
	Registry *prometheus.Registry
	Subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMeter registers its families against reg as they're first
// observed. A nil reg defaults to prometheus.NewRegistry().
func NewPrometheusMeter(reg *prometheus.Registry, subsystem string) *PrometheusMeter {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &PrometheusMeter{
		Registry:   reg,
		Subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (m *PrometheusMeter) IncCounter(_ context.Context, name string, delta int64, labels Labels) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, values := labelKeysValues(labels)
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: m.Subsystem,
			Name:      name,
			Help:      "orbicheck counter " + name,
		}, keys)
		if err := m.Registry.Register(vec); err != nil {
			return fmt.Errorf("telemetry: register counter %q: %w", name, err)
		}
		m.counters[name] = vec
	}
	c, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return fmt.Errorf("telemetry: counter %q: %w", name, err)
	}
	c.Add(float64(delta))
	return nil
}

func (m *PrometheusMeter) SetGauge(_ context.Context, name string, value float64, labels Labels) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, values := labelKeysValues(labels)
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Subsystem: m.Subsystem,
			Name:      name,
			Help:      "orbicheck gauge " + name,
		}, keys)
		if err := m.Registry.Register(vec); err != nil {
			return fmt.Errorf("telemetry: register gauge %q: %w", name, err)
		}
		m.gauges[name] = vec
	}
	g, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return fmt.Errorf("telemetry: gauge %q: %w", name, err)
	}
	g.Set(value)
	return nil
}

func (m *PrometheusMeter) ObserveHistogram(_ context.Context, name string, value float64, buckets []float64, labels Labels) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, values := labelKeysValues(labels)
	vec, ok := m.histograms[name]
	if !ok {
		if len(buckets) == 0 {
			buckets = DefaultHistogramBuckets()
		}
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem: m.Subsystem,
			Name:      name,
			Help:      "orbicheck histogram " + name,
			Buckets:   buckets,
		}, keys)
		if err := m.Registry.Register(vec); err != nil {
			return fmt.Errorf("telemetry: register histogram %q: %w", name, err)
		}
		m.histograms[name] = vec
	}
	h, err := vec.GetMetricWithLabelValues(values...)
	if err != nil {
		return fmt.Errorf("telemetry: histogram %q: %w", name, err)
	}
	h.Observe(value)
	return nil
}

func labelKeysValues(labels Labels) ([]string, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}
