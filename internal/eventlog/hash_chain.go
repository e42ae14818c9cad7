package eventlog

// Hash chain utilities: deterministic, tamper-evident linking of log
// entries, adapted from the teacher audit ledger's canonical-JSON +
// sha256(prev+"\n"+body) pattern, but incremental rather than
// batch-built: each entry is hashed against the tenant's current head
// as it is appended, not recomputed from the full history every time.

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const genesisPrevHash = "GENESIS"

const rfc3339Nano = "2006-01-02T15:04:05.999999999Z07:00"

// kv is an ordered key/value pair, used in place of map[string]string so
// that json.Marshal produces byte-identical output regardless of the
// source map's iteration order.
type kv struct {
	K string `json:"k"`
	V string `json:"v"`
}

// canonicalEntry mirrors Entry but with Meta flattened to a sorted slice
// and ReasonCodes as plain strings, so two entries with identical
// contents always canonicalize to identical bytes.
type canonicalEntry struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Type        string   `json:"type"`
	Endpoint    string   `json:"endpoint"`
	ReasonCodes []string `json:"reason_codes,omitempty"`
	Status      string   `json:"status"`
	Meta        []kv     `json:"meta,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

// canonicalBytes returns the deterministic JSON bytes hashed into the
// chain for e.
func canonicalBytes(e Entry) ([]byte, error) {
	codes := make([]string, len(e.ReasonCodes))
	for i, c := range e.ReasonCodes {
		codes[i] = string(c)
	}

	var meta []kv
	if len(e.Meta) > 0 {
		keys := make([]string, 0, len(e.Meta))
		for k := range e.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		meta = make([]kv, 0, len(keys))
		for _, k := range keys {
			meta = append(meta, kv{K: k, V: e.Meta[k]})
		}
	}

	ce := canonicalEntry{
		ID:          e.ID,
		ProjectID:   e.ProjectID,
		Type:        e.Type,
		Endpoint:    e.Endpoint,
		ReasonCodes: codes,
		Status:      e.Status,
		Meta:        meta,
		CreatedAt:   e.CreatedAt.UTC().Format(rfc3339Nano),
	}

	b, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("eventlog: canonicalize entry: %w", err)
	}
	return b, nil
}

// hashStep computes sha256(prev + "\n" + body) hex-encoded, defaulting
// an empty prev (the tenant's first entry) to the genesis marker.
func hashStep(prev string, body []byte) string {
	prev = strings.TrimSpace(prev)
	if prev == "" {
		prev = genesisPrevHash
	}

	h := sha256.New()
	_, _ = h.Write([]byte(prev))
	_, _ = h.Write([]byte("\n"))
	_, _ = h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// chainEntry computes the hash for e given the tenant's current head,
// returning e with PrevHash/Hash populated.
func chainEntry(head string, e Entry) (Entry, error) {
	body, err := canonicalBytes(e)
	if err != nil {
		return Entry{}, err
	}
	prev := head
	if prev == "" {
		prev = genesisPrevHash
	}
	e.PrevHash = prev
	e.Hash = hashStep(prev, body)
	return e, nil
}
