// Package disposable holds the disposable-email-domain membership set. A
// new generation is built with a Builder and swapped in atomically so
// readers never observe a partially populated set (§5 shared-resource
// policy). Each Set lives in one process: cmd/orbicheckd fills its own set
// once at startup, and cmd/disposable-refresher rebuilds a separate set of
// its own on every tick.
package disposable

import (
	"sync/atomic"
)

// Set is a read-optimized, atomically-swappable membership set.
type Set struct {
	active atomic.Pointer[map[string]struct{}]
}

// NewSet returns an empty set ready for reads; the refresher populates it
// via Swap on its first successful fetch.
func NewSet() *Set {
	s := &Set{}
	empty := map[string]struct{}{}
	s.active.Store(&empty)
	return s
}

// Contains reports whether domain (already normalized/lowercased by the
// caller) is a member of the currently active set.
func (s *Set) Contains(domain string) bool {
	m := s.active.Load()
	if m == nil {
		return false
	}
	_, ok := (*m)[domain]
	return ok
}

// Size returns the number of members in the currently active set.
func (s *Set) Size() int {
	m := s.active.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Builder accumulates members for a new generation of the set without
// affecting readers of the currently active one ("build under …:new").
type Builder struct {
	members map[string]struct{}
}

// NewBuilder starts a fresh, empty build.
func NewBuilder() *Builder {
	return &Builder{members: make(map[string]struct{})}
}

// Add inserts domain into the build in progress.
func (b *Builder) Add(domain string) {
	if domain == "" {
		return
	}
	b.members[domain] = struct{}{}
}

// Len reports how many members have been added so far.
func (b *Builder) Len() int { return len(b.members) }

// Swap atomically publishes the built set as the new active generation
// ("…then rename over disposable_domains"). The Builder must not be reused
// after Swap.
func (s *Set) Swap(b *Builder) {
	m := b.members
	if m == nil {
		m = map[string]struct{}{}
	}
	s.active.Store(&m)
}
