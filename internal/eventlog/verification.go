package eventlog

// Chain-integrity verification: given a project's entries in append
// order, recompute the hash chain and confirm it matches the stored
// prev_hash/hash pairs. Used for periodic tamper audits and for
// sanity-checking the store after a retention sweep.

import (
	"errors"
	"fmt"
)

var (
	ErrChainInvalid  = errors.New("eventlog: chain invalid")
	ErrChainMismatch = errors.New("eventlog: chain mismatch")
)

// VerifyChain recomputes the hash chain for entries (already in
// append/created_at order for one project) and confirms every
// prev_hash/hash pair matches what recomputation produces.
//
// A retention sweep deletes the oldest rows, so the first surviving
// entry's PrevHash will not match genesis; verification instead trusts
// that entry's own stored PrevHash as the starting head and checks
// everything from there forward.
func VerifyChain(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	head := entries[0].PrevHash
	for i, e := range entries {
		body, err := canonicalBytes(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrChainInvalid, i, err)
		}
		prev := head
		if prev == "" {
			prev = genesisPrevHash
		}
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d (%s): prev_hash mismatch", ErrChainMismatch, i, e.ID)
		}
		wantHash := hashStep(prev, body)
		if e.Hash != wantHash {
			return fmt.Errorf("%w: entry %d (%s): hash mismatch", ErrChainMismatch, i, e.ID)
		}
		head = e.Hash
	}
	return nil
}
