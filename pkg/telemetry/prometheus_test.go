package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMeterIncCounterAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMeter(reg, "orbicheckd")

	ctx := context.Background()
	if err := m.IncCounter(ctx, "http_requests_total", 1, Labels{"route": "GET /v1/health"}); err != nil {
		t.Fatalf("IncCounter: %v", err)
	}
	if err := m.IncCounter(ctx, "http_requests_total", 2, Labels{"route": "GET /v1/health"}); err != nil {
		t.Fatalf("IncCounter: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "orbicheckd_http_requests_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatalf("expected orbicheckd_http_requests_total to be registered, got %v", families)
	}
	if got := found.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected accumulated value 3, got %v", got)
	}
}

func TestPrometheusMeterRejectsLabelKeyDrift(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMeter(reg, "orbicheckd")

	ctx := context.Background()
	if err := m.IncCounter(ctx, "x", 1, Labels{"route": "a"}); err != nil {
		t.Fatalf("IncCounter: %v", err)
	}
	if err := m.IncCounter(ctx, "x", 1, Labels{"status": "a"}); err == nil {
		t.Fatal("expected an error when the same metric name is observed with different label keys")
	}
}

func TestPrometheusMeterSetGaugeAndObserveHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMeter(reg, "orbicheckd")
	ctx := context.Background()

	if err := m.SetGauge(ctx, "cache_size", 42, nil); err != nil {
		t.Fatalf("SetGauge: %v", err)
	}
	if err := m.ObserveHistogram(ctx, "request_duration_seconds", 0.2, DefaultHistogramBuckets(), nil); err != nil {
		t.Fatalf("ObserveHistogram: %v", err)
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather: %v", err)
	}
}
