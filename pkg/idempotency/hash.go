package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBody returns a deterministic hex digest of a raw request body, used to
// detect distinct bodies replayed under the same Idempotency-Key.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
