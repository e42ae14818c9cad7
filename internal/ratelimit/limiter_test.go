package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	counter := NewInMemoryCounter()
	l := New(counter, func(string) Limits { return Limits{Limit: 3, Window: time.Minute} })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "tenant-1", "validate_email")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}
}

func TestFourthRequestRateLimited(t *testing.T) {
	counter := NewInMemoryCounter()
	l := New(counter, func(string) Limits { return Limits{Limit: 3, Window: time.Minute} })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Allow(ctx, "tenant-1", "validate_email"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	d, err := l.Allow(ctx, "tenant-1", "validate_email")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected fourth request to be rate limited")
	}
	if d.RetryAfter <= 0 {
		t.Fatal("expected a positive retry-after")
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	counter := NewInMemoryCounter()
	l := New(counter, func(string) Limits { return Limits{Limit: 1, Window: time.Minute} })

	ctx := context.Background()
	d1, _ := l.Allow(ctx, "tenant-a", "bucket")
	d2, _ := l.Allow(ctx, "tenant-b", "bucket")
	if !d1.Allowed || !d2.Allowed {
		t.Fatal("expected both tenants' first request to be allowed independently")
	}
}

func TestBucketsAreIsolated(t *testing.T) {
	counter := NewInMemoryCounter()
	l := New(counter, func(string) Limits { return Limits{Limit: 1, Window: time.Minute} })

	ctx := context.Background()
	d1, _ := l.Allow(ctx, "tenant-1", "email")
	d2, _ := l.Allow(ctx, "tenant-1", "phone")
	if !d1.Allowed || !d2.Allowed {
		t.Fatal("expected different buckets to have independent counters")
	}
}
