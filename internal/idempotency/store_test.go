package idempotency

import (
	"context"
	"testing"

	"github.com/orbicheck/orbicheck/internal/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	lru, err := cache.NewLRUStore(100)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return New(lru)
}

func TestBeginThenCompleteReplaysVerbatim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	body := []byte(`{"order_id":"ORD-001"}`)

	resp, replay, err := s.Begin(ctx, "tenant-1", "idem-key-1", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replay {
		t.Fatal("expected first call to not be a replay")
	}
	if resp != nil {
		t.Fatal("expected nil response on first call")
	}

	computed := []byte(`{"risk_score":42,"request_id":"req_abc"}`)
	if err := s.Complete(ctx, "tenant-1", "idem-key-1", body, computed); err != nil {
		t.Fatalf("unexpected error completing: %v", err)
	}

	resp2, replay2, err := s.Begin(ctx, "tenant-1", "idem-key-1", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !replay2 {
		t.Fatal("expected second call to be a replay")
	}
	if string(resp2) != string(computed) {
		t.Fatalf("expected byte-equal replay, got %s", resp2)
	}
}

func TestConflictingBodySameKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Begin(ctx, "tenant-1", "idem-key-2", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err := s.Begin(ctx, "tenant-1", "idem-key-2", []byte(`{"a":2}`))
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestConcurrentInFlightObservesSentinel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	body := []byte(`{"a":1}`)

	if _, _, err := s.Begin(ctx, "tenant-1", "idem-key-3", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err := s.Begin(ctx, "tenant-1", "idem-key-3", body)
	if err != ErrInFlight {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
}

func TestReleaseClearsSentinel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	body := []byte(`{"a":1}`)

	if _, _, err := s.Begin(ctx, "tenant-1", "idem-key-4", body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Release(ctx, "tenant-1", "idem-key-4"); err != nil {
		t.Fatalf("unexpected error releasing: %v", err)
	}
	_, replay, err := s.Begin(ctx, "tenant-1", "idem-key-4", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if replay {
		t.Fatal("expected fresh begin after release")
	}
}
