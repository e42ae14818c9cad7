// Package idempotency implements the §4.8 single-flight + 24h-response-cache
// store for mutating runtime endpoints, built on internal/cache and the
// deterministic key building in pkg/idempotency.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orbicheck/orbicheck/internal/cache"
	"github.com/orbicheck/orbicheck/pkg/idempotency"
)

const (
	// responseTTL is how long a completed response stays replayable.
	responseTTL = 24 * time.Hour
	// sentinelTTL bounds how long a single-flight lock survives an
	// abandoned or cancelled handler (§5: "released or expire, ≤30s").
	sentinelTTL = 30 * time.Second
)

// ErrConflict is returned when the same (tenant, Idempotency-Key) is replayed
// with a different request body.
var ErrConflict = errors.New("idempotency: conflicting body for key")

// ErrInFlight is returned when a concurrent identical request is already
// being processed and the sentinel has not yet resolved into a response.
var ErrInFlight = errors.New("idempotency: request in flight")

type record struct {
	State    string          `json:"state"` // "pending" or "done"
	BodyHash string          `json:"body_hash"`
	Response json.RawMessage `json:"response,omitempty"`
	Status   int             `json:"status,omitempty"`
}

// Store implements the single-flight-then-cache idiom over a cache.Store.
type Store struct {
	Cache cache.Store
}

// New builds a Store bound to the given cache backend.
func New(store cache.Store) *Store {
	return &Store{Cache: store}
}

// Begin looks up (tenantID, key) for the given request body. It returns:
//   - (nil, false, nil) when this caller should execute the handler and
//     later call Complete — a sentinel has been written.
//   - (cachedResponse, true, nil) when a prior completed response exists
//     and should be replayed verbatim.
//   - (nil, false, ErrInFlight) when another caller is mid-flight.
//   - (nil, false, ErrConflict) when the same key was used with a
//     different body.
func (s *Store) Begin(ctx context.Context, tenantID, key string, body []byte) ([]byte, bool, error) {
	bodyHash := idempotency.HashBody(body)
	fullKey := "idem:" + tenantID + ":" + key

	existing, hit, err := s.Cache.Get(ctx, tenantID, fullKey)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: get: %w", err)
	}
	if hit {
		var r record
		if err := json.Unmarshal(existing, &r); err != nil {
			return nil, false, fmt.Errorf("idempotency: decode record: %w", err)
		}
		if r.BodyHash != bodyHash {
			return nil, false, ErrConflict
		}
		if r.State == "done" {
			return r.Response, true, nil
		}
		return nil, false, ErrInFlight
	}

	pending := record{State: "pending", BodyHash: bodyHash}
	raw, err := json.Marshal(pending)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency: encode sentinel: %w", err)
	}
	if err := s.Cache.Set(ctx, tenantID, fullKey, raw, sentinelTTL); err != nil {
		return nil, false, fmt.Errorf("idempotency: set sentinel: %w", err)
	}
	return nil, false, nil
}

// Complete persists the handler's response for 24h, resolving the sentinel
// written by Begin.
func (s *Store) Complete(ctx context.Context, tenantID, key string, body, response []byte) error {
	bodyHash := idempotency.HashBody(body)
	fullKey := "idem:" + tenantID + ":" + key

	r := record{State: "done", BodyHash: bodyHash, Response: response}
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("idempotency: encode record: %w", err)
	}
	return s.Cache.Set(ctx, tenantID, fullKey, raw, responseTTL)
}

// Release removes a pending sentinel early, e.g. on request cancellation,
// so a cancelled single-flight does not wedge future replays for the
// remainder of sentinelTTL.
func (s *Store) Release(ctx context.Context, tenantID, key string) error {
	fullKey := "idem:" + tenantID + ":" + key
	_, err := s.Cache.Del(ctx, tenantID, fullKey)
	return err
}
