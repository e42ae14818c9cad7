// Package ratelimit implements the per-tenant request envelope's rate
// limiter: a fixed-window counter per (tenant, bucket), not a token bucket
// (§4.7 / §5 design note — token-bucket smoothing is reserved for outbound
// self-throttling in internal/outbound, not the inbound gate).
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Counter is the atomic "increment, set TTL on first increment" primitive a
// fixed-window limiter needs. cache.RedisCache.IncrWithTTL satisfies it in
// production; InMemoryCounter is the default single-process backend.
type Counter interface {
	IncrWithTTL(ctx context.Context, tenantID, key string, window time.Duration) (int64, error)
}

// Limits is the per-tenant configuration the envelope consults before
// calling Allow; a tenant not present in the lookup gets Default.
type Limits struct {
	Limit  int           // requests allowed per window
	Window time.Duration // fixed window length
}

// DefaultLimits applies when a tenant has no explicit override.
var DefaultLimits = Limits{Limit: 600, Window: time.Minute}

// LimitsFor resolves a tenant's configured limit, falling back to
// DefaultLimits; set by the HTTP layer from per-tenant project settings.
type LimitsFor func(tenantID string) Limits

// Limiter enforces the fixed-window counter described in §4.7: key
// `rl:{project_id}:{bucket}:{window_start}`, TTL = window length.
type Limiter struct {
	Counter   Counter
	LimitsFor LimitsFor
}

// New builds a Limiter. If limitsFor is nil, every tenant uses DefaultLimits.
func New(counter Counter, limitsFor LimitsFor) *Limiter {
	if limitsFor == nil {
		limitsFor = func(string) Limits { return DefaultLimits }
	}
	return &Limiter{Counter: counter, LimitsFor: limitsFor}
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Allow increments the counter for (tenantID, bucket)'s current window and
// reports whether the request is within the configured limit.
func (l *Limiter) Allow(ctx context.Context, tenantID, bucket string) (Decision, error) {
	lim := l.LimitsFor(tenantID)
	if lim.Limit <= 0 {
		lim = DefaultLimits
	}
	windowStart := time.Now().UTC().Truncate(lim.Window).Unix()
	key := fmt.Sprintf("rl:%s:%s:%d", tenantID, bucket, windowStart)

	n, err := l.Counter.IncrWithTTL(ctx, tenantID, key, lim.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: incr: %w", err)
	}

	if int(n) > lim.Limit {
		windowEnd := time.Unix(windowStart, 0).Add(lim.Window)
		retryAfter := time.Until(windowEnd)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, Limit: lim.Limit, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	remaining := lim.Limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: lim.Limit, Remaining: remaining}, nil
}

// InMemoryCounter is a single-process Counter backed by a mutex-guarded map,
// used as the default when CACHE_URL is not configured.
type InMemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*inMemoryEntry
}

type inMemoryEntry struct {
	count int64
	exp   time.Time
}

// NewInMemoryCounter builds an empty InMemoryCounter.
func NewInMemoryCounter() *InMemoryCounter {
	return &InMemoryCounter{entries: make(map[string]*inMemoryEntry)}
}

func (c *InMemoryCounter) IncrWithTTL(_ context.Context, tenantID, key string, window time.Duration) (int64, error) {
	full := tenantID + "\x00" + key
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[full]
	if !ok || now.After(e.exp) {
		e = &inMemoryEntry{count: 0, exp: now.Add(window)}
		c.entries[full] = e
	}
	e.count++
	return e.count, nil
}

// sweep removes expired entries; exposed for tests, not run automatically
// since InMemoryCounter is expected to be small (tenant count × bucket
// count) and self-bounding via window expiry checks on access.
func (c *InMemoryCounter) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.After(e.exp) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Middleware wraps next with the fixed-window gate. bucketOf extracts the
// rate-limit bucket (typically the route's endpoint class) and tenantOf the
// tenant ID from the request context, both populated earlier in the chain
// by the auth middleware.
func Middleware(l *Limiter, tenantOf func(*http.Request) string, bucketOf func(*http.Request) string, onLimited func(http.ResponseWriter, *http.Request, Decision)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := tenantOf(r)
			bucket := bucketOf(r)

			decision, err := l.Allow(r.Context(), tenantID, bucket)
			if err != nil {
				onLimited(w, r, Decision{Allowed: false})
				return
			}
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
				onLimited(w, r, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
