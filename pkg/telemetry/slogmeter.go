package telemetry

import (
	"context"
	"log/slog"
)

// SlogMeter is a Meter that emits one structured log line per observation
// instead of binding to a specific metrics backend. It exists so services
// without a Prometheus/OTel exporter wired up still get queryable counters
// and histograms out of their log stream, the same way NopMeter lets
// callers skip metrics entirely without a nil check at every call site.
type SlogMeter struct {
	Logger *slog.Logger
}

// NewSlogMeter returns a Meter that logs through logger. A nil logger
// behaves like NopMeter.
func NewSlogMeter(logger *slog.Logger) SlogMeter {
	return SlogMeter{Logger: logger}
}

func (m SlogMeter) IncCounter(_ context.Context, name string, delta int64, labels Labels) error {
	if m.Logger == nil {
		return nil
	}
	m.Logger.Info("metric_counter", "name", name, "delta", delta, attrs(labels)...)
	return nil
}

func (m SlogMeter) SetGauge(_ context.Context, name string, value float64, labels Labels) error {
	if m.Logger == nil {
		return nil
	}
	m.Logger.Info("metric_gauge", "name", name, "value", value, attrs(labels)...)
	return nil
}

func (m SlogMeter) ObserveHistogram(_ context.Context, name string, value float64, _ []float64, labels Labels) error {
	if m.Logger == nil {
		return nil
	}
	m.Logger.Info("metric_histogram", "name", name, "value", value, attrs(labels)...)
	return nil
}

func attrs(labels Labels) []any {
	out := make([]any, 0, len(labels)*2)
	for k, v := range labels {
		out = append(out, k, v)
	}
	return out
}
