package eventlog

import (
	"testing"
	"time"

	"github.com/orbicheck/orbicheck/internal/reason"
)

func TestAppendChainsSequentially(t *testing.T) {
	l := NewAppendOnly(0)

	e1, err := l.Append(Entry{ProjectID: "p1", Type: "email.validate", Endpoint: "/v1/validate/email", Status: "ok", CreatedAt: time.Unix(1000, 0)})
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if e1.PrevHash != genesisPrevHash {
		t.Fatalf("expected genesis prev hash, got %q", e1.PrevHash)
	}

	e2, err := l.Append(Entry{ProjectID: "p1", Type: "order.evaluate", Endpoint: "/v1/orders/evaluate", Status: "ok", CreatedAt: time.Unix(1001, 0)})
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if e2.PrevHash != e1.Hash {
		t.Fatalf("expected e2 prev hash to equal e1 hash, got %q vs %q", e2.PrevHash, e1.Hash)
	}
	if l.Head("p1") != e2.Hash {
		t.Fatalf("expected head to track last append")
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	l := NewAppendOnly(0)
	e, err := l.Append(Entry{ID: "fixed", ProjectID: "p1", Type: "x", Status: "ok"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(Entry{ID: e.ID, ProjectID: "p1", Type: "x", Status: "ok"}); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

func TestSeparateTenantsHaveIndependentChains(t *testing.T) {
	l := NewAppendOnly(0)
	a, _ := l.Append(Entry{ProjectID: "tenant-a", Type: "x", Status: "ok"})
	b, _ := l.Append(Entry{ProjectID: "tenant-b", Type: "x", Status: "ok"})
	if a.PrevHash != genesisPrevHash || b.PrevHash != genesisPrevHash {
		t.Fatal("each tenant's first entry should chain from genesis independently")
	}
}

func TestListPaginatesByOpaqueCursor(t *testing.T) {
	l := NewAppendOnly(0)
	base := time.Unix(2000, 0)
	for i := 0; i < 5; i++ {
		if _, err := l.Append(Entry{ProjectID: "p1", Type: "x", Status: "ok", CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	page1, err := l.List("p1", "", 2)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page1.Entries) != 2 || page1.NextCursor == "" {
		t.Fatalf("expected 2 entries and a next cursor, got %d entries cursor=%q", len(page1.Entries), page1.NextCursor)
	}

	page2, err := l.List("p1", page1.NextCursor, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2.Entries) != 2 {
		t.Fatalf("expected 2 entries on page 2, got %d", len(page2.Entries))
	}
	if !page2.Entries[0].CreatedAt.After(page1.Entries[1].CreatedAt) {
		t.Fatal("expected page 2 to continue strictly after page 1")
	}

	page3, err := l.List("p1", page2.NextCursor, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3.Entries) != 1 || page3.NextCursor != "" {
		t.Fatalf("expected final page of 1 with no next cursor, got %d entries cursor=%q", len(page3.Entries), page3.NextCursor)
	}
}

func TestSweepDeletesOlderThanCutoff(t *testing.T) {
	l := NewAppendOnly(0)
	old := time.Unix(1000, 0)
	recent := time.Unix(9999999, 0)
	if _, err := l.Append(Entry{ProjectID: "p1", Type: "x", Status: "ok", CreatedAt: old}); err != nil {
		t.Fatalf("append old: %v", err)
	}
	if _, err := l.Append(Entry{ProjectID: "p1", Type: "x", Status: "ok", CreatedAt: recent}); err != nil {
		t.Fatalf("append recent: %v", err)
	}

	deleted, err := l.Sweep(time.Unix(500000, 0))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}

	page, err := l.List("p1", "", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Entries) != 1 || !page.Entries[0].CreatedAt.Equal(recent) {
		t.Fatalf("expected only the recent entry to survive, got %v", page.Entries)
	}
}

func TestVerifyChainAcceptsUntamperedSequence(t *testing.T) {
	l := NewAppendOnly(0)
	var entries []Entry
	for i := 0; i < 3; i++ {
		e, err := l.Append(Entry{ProjectID: "p1", Type: "x", Status: "ok", ReasonCodes: []reason.Code{reason.EmailInvalidFormat}})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		entries = append(entries, e)
	}
	if err := VerifyChain(entries); err != nil {
		t.Fatalf("expected chain to verify, got %v", err)
	}
}

func TestVerifyChainDetectsTamperedEntry(t *testing.T) {
	l := NewAppendOnly(0)
	var entries []Entry
	for i := 0; i < 3; i++ {
		e, err := l.Append(Entry{ProjectID: "p1", Type: "x", Status: "ok"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		entries = append(entries, e)
	}

	entries[1].Status = "tampered"
	if err := VerifyChain(entries); err == nil {
		t.Fatal("expected tampering to be detected")
	}
}

func TestVerifyChainToleratesSweptPrefix(t *testing.T) {
	l := NewAppendOnly(0)
	var entries []Entry
	for i := 0; i < 3; i++ {
		e, err := l.Append(Entry{ProjectID: "p1", Type: "x", Status: "ok", CreatedAt: time.Unix(int64(1000+i), 0)})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		entries = append(entries, e)
	}

	// Simulate a retention sweep that dropped the first entry: verification
	// should trust the surviving first entry's own PrevHash as its starting
	// head rather than requiring it to equal genesis.
	if err := VerifyChain(entries[1:]); err != nil {
		t.Fatalf("expected swept-prefix chain to verify, got %v", err)
	}
}
