package telemetry

import (
	"context"
	"testing"
)

type recordingMeter struct {
	counters   map[string]int64
	lastLabels Labels
}

func newRecordingMeter() *recordingMeter {
	return &recordingMeter{counters: make(map[string]int64)}
}

func (m *recordingMeter) IncCounter(_ context.Context, name string, delta int64, labels Labels) error {
	m.counters[name] += delta
	m.lastLabels = labels
	return nil
}

func (m *recordingMeter) SetGauge(context.Context, string, float64, Labels) error { return nil }

func (m *recordingMeter) ObserveHistogram(context.Context, string, float64, []float64, Labels) error {
	return nil
}

func TestIncCounterNormalizesLabelsAndFallsBackToNop(t *testing.T) {
	if err := IncCounter(nil, context.Background(), "orbicheck_requests", 1, nil); err != nil {
		t.Fatalf("IncCounter with nil meter: %v", err)
	}

	m := newRecordingMeter()
	err := IncCounter(m, context.Background(), "orbicheck_requests", 3, Labels{"Route": " /v1/health "})
	if err != nil {
		t.Fatalf("IncCounter: %v", err)
	}
	if m.counters["orbicheck_requests"] != 3 {
		t.Fatalf("expected counter = 3, got %d", m.counters["orbicheck_requests"])
	}
	if m.lastLabels["route"] != "/v1/health" {
		t.Fatalf("expected normalized lowercase/trimmed key, got %+v", m.lastLabels)
	}
}

func TestIncCounterRejectsInvalidMetricName(t *testing.T) {
	m := newRecordingMeter()
	if err := IncCounter(m, context.Background(), "Not Valid!", 1, nil); err == nil {
		t.Fatal("expected error for metric name with invalid charset")
	}
}

func TestNormalizeLabelsRejectsInvalidValueCharset(t *testing.T) {
	_, err := NormalizeLabels(Labels{"key": "bad\nvalue"})
	if err == nil {
		t.Fatal("expected error for label value containing control characters")
	}
}

func TestLabelsFingerprintIsOrderIndependent(t *testing.T) {
	a := Labels{"route": "/v1/health", "status": "200"}
	b := Labels{"status": "200", "route": "/v1/health"}

	fa, err := a.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint a: %v", err)
	}
	fb, err := b.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint b: %v", err)
	}
	if fa != fb {
		t.Fatalf("expected identical fingerprints regardless of map iteration order, got %q vs %q", fa, fb)
	}
}

func TestValidateBucketsRequiresStrictlyIncreasing(t *testing.T) {
	if err := ValidateBuckets([]float64{0.1, 0.1}); err == nil {
		t.Fatal("expected error for non-increasing buckets")
	}
	if err := ValidateBuckets(DefaultHistogramBuckets()); err != nil {
		t.Fatalf("DefaultHistogramBuckets should be valid: %v", err)
	}
}
