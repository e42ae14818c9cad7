// Package cache implements the read-through record cache described in the
// system overview: validator results, domain facts, address results,
// rate-limit counters, and idempotency responses all flow through a Store.
//
// Two backends satisfy Store: an in-process TTL-bounded LRU (the default,
// grounded on the verdict/MX TTL-map pattern used for disposable-email
// caching) and a Redis-speaking backend used when CACHE_URL is configured.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is the read-through cache contract every validator and the rate
// limiter / idempotency store are built against.
type Store interface {
	Get(ctx context.Context, tenantID, key string) ([]byte, bool, error)
	Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, tenantID string, keys ...string) (int, error)
}

type entry struct {
	val []byte
	exp time.Time
}

// LRUStore is an in-process, multi-tenant, TTL-bounded LRU cache. It is the
// default backend when CACHE_URL is not configured.
type LRUStore struct {
	mu   sync.Mutex
	data *lru.Cache[string, entry]
}

// NewLRUStore builds an LRUStore bounded to capacity entries.
func NewLRUStore(capacity int) (*LRUStore, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	c, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUStore{data: c}, nil
}

func fullKey(tenantID, key string) string {
	return tenantID + "\x00" + key
}

func (s *LRUStore) Get(_ context.Context, tenantID, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.Get(fullKey(tenantID, key))
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		s.data.Remove(fullKey(tenantID, key))
		return nil, false, nil
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true, nil
}

func (s *LRUStore) Set(_ context.Context, tenantID, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data.Add(fullKey(tenantID, key), entry{val: cp, exp: exp})
	return nil
}

func (s *LRUStore) Del(_ context.Context, tenantID string, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if s.data.Remove(fullKey(tenantID, k)) {
			n++
		}
	}
	return n, nil
}

// Len reports the number of live (not necessarily unexpired) entries;
// exposed for tests.
func (s *LRUStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Len()
}
