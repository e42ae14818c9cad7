// Package eventlog implements the §4.13 append-only event log: one entry
// per completed request, chained with a tamper-evident prev_hash/hash
// pair the way the teacher's audit ledger chains compliance events.
package eventlog

import (
	"time"

	"github.com/orbicheck/orbicheck/internal/reason"
)

// Entry is one §3/§4.13 event-log row.
type Entry struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	Type        string            `json:"type"`
	Endpoint    string            `json:"endpoint"`
	ReasonCodes []reason.Code     `json:"reason_codes,omitempty"`
	Status      string            `json:"status"`
	Meta        map[string]string `json:"meta,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	PrevHash    string            `json:"prev_hash"`
	Hash        string            `json:"hash"`
}

func normalizeEntry(e Entry) Entry {
	out := e
	if out.Meta != nil {
		clean := make(map[string]string, len(out.Meta))
		for k, v := range out.Meta {
			clean[k] = v
		}
		out.Meta = clean
	}
	codes := make([]reason.Code, len(out.ReasonCodes))
	copy(codes, out.ReasonCodes)
	out.ReasonCodes = codes
	return out
}
