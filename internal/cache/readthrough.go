package cache

import (
	"context"
	"time"
)

// ReadThrough wraps Store with the get-or-compute-and-store idiom the design
// notes call for: "make the TTLs a property of the validator, not the
// caller." Each validator passes its own key and TTL; ReadThrough never
// guesses either.
type ReadThrough struct {
	Store Store
}

// GetOrCompute returns the cached bytes under (tenantID, key) if present and
// unexpired; otherwise it calls compute, stores the result for ttl, and
// returns it. compute errors are not cached.
func (r ReadThrough) GetOrCompute(ctx context.Context, tenantID, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if v, ok, err := r.Store.Get(ctx, tenantID, key); err == nil && ok {
		return v, true, nil
	}
	v, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := r.Store.Set(ctx, tenantID, key, v, ttl); err != nil {
		return v, false, err
	}
	return v, false, nil
}
