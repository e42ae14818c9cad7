// Package eventlog also provides the §4.13 append-only store: one row per
// completed request, hash-chained per project, paginated by opaque
// cursor, and swept daily against RETENTION_DAYS.
//
// This is the in-memory reference implementation the teacher's own
// audit ledger started from (deterministic ordering, append-by-id that
// rejects a duplicate id, bounded size); internal/storage adapts the same
// contract onto Postgres/SQLite.
package eventlog

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrLedger        = errors.New("eventlog: ledger error")
	ErrLedgerInvalid = errors.New("eventlog: invalid entry")
	ErrCursorInvalid = errors.New("eventlog: invalid cursor")
)

// AppendOnly is an in-memory, hash-chained, multi-tenant event log.
type AppendOnly struct {
	mu      sync.Mutex
	max     int
	entries []Entry
	// idx: project_id -> entry id -> position in entries
	idx map[string]map[string]int
	// heads: project_id -> hash of the most recently appended entry
	heads map[string]string
}

// NewAppendOnly builds a store capped at maxEntries total rows (across
// all tenants); 0 or negative means a generous default cap.
func NewAppendOnly(maxEntries int) *AppendOnly {
	m := maxEntries
	if m <= 0 {
		m = 1_000_000
	}
	return &AppendOnly{
		max:     m,
		entries: make([]Entry, 0, min(1024, m)),
		idx:     make(map[string]map[string]int),
		heads:   make(map[string]string),
	}
}

// Append writes one entry, stamping it with the tenant's next hash-chain
// link. ID is assigned if empty; CreatedAt defaults to now if zero.
func (l *AppendOnly) Append(e Entry) (Entry, error) {
	if strings.TrimSpace(e.ProjectID) == "" {
		return Entry{}, fmt.Errorf("%w: project_id required", ErrLedgerInvalid)
	}
	if strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Status) == "" {
		return Entry{}, fmt.Errorf("%w: type/status required", ErrLedgerInvalid)
	}

	e = normalizeEntry(e)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	} else {
		e.CreatedAt = e.CreatedAt.UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.idx[e.ProjectID]; !ok {
		l.idx[e.ProjectID] = make(map[string]int)
	}
	if _, exists := l.idx[e.ProjectID][e.ID]; exists {
		return Entry{}, fmt.Errorf("%w: duplicate entry id %q", ErrLedgerInvalid, e.ID)
	}

	chained, err := chainEntry(l.heads[e.ProjectID], e)
	if err != nil {
		return Entry{}, err
	}

	pos := len(l.entries)
	l.entries = append(l.entries, chained)
	l.idx[e.ProjectID][chained.ID] = pos
	l.heads[e.ProjectID] = chained.Hash

	if l.max > 0 && len(l.entries) > l.max {
		l.evictOldest()
	}

	return chained, nil
}

// Get returns one entry by project+id.
func (l *AppendOnly) Get(projectID, id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.idx[projectID]
	if m == nil {
		return Entry{}, false
	}
	pos, ok := m[id]
	if !ok || pos < 0 || pos >= len(l.entries) {
		return Entry{}, false
	}
	return normalizeEntry(l.entries[pos]), true
}

// Page is one page of a cursor-paginated listing.
type Page struct {
	Entries    []Entry
	NextCursor string
}

// List returns entries for a project in created_at-ascending order,
// starting strictly after the cursor (empty cursor means the beginning).
// limit defaults to 100, capped at 1000.
func (l *AppendOnly) List(projectID, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	var after time.Time
	var afterID string
	if cursor != "" {
		t, id, err := decodeCursor(cursor)
		if err != nil {
			return Page{}, err
		}
		after, afterID = t, id
	}

	l.mu.Lock()
	tmp := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.ProjectID != projectID {
			continue
		}
		tmp = append(tmp, normalizeEntry(e))
	}
	l.mu.Unlock()

	sort.Slice(tmp, func(i, j int) bool {
		if !tmp[i].CreatedAt.Equal(tmp[j].CreatedAt) {
			return tmp[i].CreatedAt.Before(tmp[j].CreatedAt)
		}
		return tmp[i].ID < tmp[j].ID
	})

	start := 0
	if cursor != "" {
		start = len(tmp)
		for i, e := range tmp {
			if e.CreatedAt.After(after) || (e.CreatedAt.Equal(after) && e.ID > afterID) {
				start = i
				break
			}
		}
	}

	end := start + limit
	if end > len(tmp) {
		end = len(tmp)
	}
	page := tmp[start:end]

	var next string
	if end < len(tmp) {
		last := page[len(page)-1]
		next = encodeCursor(last.CreatedAt, last.ID)
	}

	return Page{Entries: page, NextCursor: next}, nil
}

// Sweep deletes entries older than cutoff, per §4.13's daily retention
// job. Hash chains are per-tenant append order, not position-dependent
// on earlier entries still being present, so deleting a prefix never
// invalidates later links.
func (l *AppendOnly) Sweep(cutoff time.Time) (deleted int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := make([]Entry, 0, len(l.entries))
	newIdx := make(map[string]map[string]int)
	for _, e := range l.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		pos := len(kept)
		kept = append(kept, e)
		if _, ok := newIdx[e.ProjectID]; !ok {
			newIdx[e.ProjectID] = make(map[string]int)
		}
		newIdx[e.ProjectID][e.ID] = pos
	}
	l.entries = kept
	l.idx = newIdx
	return deleted, nil
}

// Head returns the current hash-chain head for a project ("" if empty).
func (l *AppendOnly) Head(projectID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.heads[projectID]
}

func (l *AppendOnly) evictOldest() {
	if len(l.entries) <= l.max {
		return
	}
	drop := len(l.entries) - l.max
	kept := l.entries[drop:]
	newEntries := make([]Entry, len(kept))
	copy(newEntries, kept)
	newIdx := make(map[string]map[string]int)
	for i, e := range newEntries {
		if _, ok := newIdx[e.ProjectID]; !ok {
			newIdx[e.ProjectID] = make(map[string]int)
		}
		newIdx[e.ProjectID][e.ID] = i
	}
	l.entries = newEntries
	l.idx = newIdx
}

func encodeCursor(t time.Time, id string) string {
	raw := t.UTC().Format(rfc3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrCursorInvalid, err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("%w: malformed", ErrCursorInvalid)
	}
	t, err := time.Parse(rfc3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrCursorInvalid, err)
	}
	return t, parts[1], nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
