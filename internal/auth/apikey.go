package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrAPIKeyNotFound = errors.New("auth: api key not found")
	ErrAPIKeyRevoked  = errors.New("auth: api key revoked")
)

// APIKeyRecord is the persisted shape of an api_keys row (§3: "opaque
// bearer token with a 6-character prefix, stored as hash").
type APIKeyRecord struct {
	ProjectID string
	Prefix    string
	Hash      string // hex sha256 of the full token
	Status    string // "active" or "revoked"
	Scopes    []string
}

// APIKeyLookup resolves the 6-char prefix index to candidate records; the
// caller (storage layer) is expected to index on Prefix for O(1) lookup
// rather than scanning every key.
type APIKeyLookup func(ctx context.Context, prefix string) ([]APIKeyRecord, error)

// APIKeyVerifier authenticates bearer tokens presented as API keys.
type APIKeyVerifier struct {
	Lookup APIKeyLookup
}

func NewAPIKeyVerifier(lookup APIKeyLookup) *APIKeyVerifier {
	return &APIKeyVerifier{Lookup: lookup}
}

const apiKeyPrefixLen = 6

// Verify checks token against the prefix-indexed record set, comparing
// SHA-256(token) against the stored hash in constant time.
func (v *APIKeyVerifier) Verify(ctx context.Context, token string) (Context, error) {
	token = strings.TrimSpace(token)
	if len(token) < apiKeyPrefixLen {
		return Context{}, ErrAPIKeyNotFound
	}
	prefix := token[:apiKeyPrefixLen]

	candidates, err := v.Lookup(ctx, prefix)
	if err != nil {
		return Context{}, err
	}

	sum := sha256.Sum256([]byte(token))
	want := hex.EncodeToString(sum[:])

	for _, rec := range candidates {
		if subtle.ConstantTimeCompare([]byte(rec.Hash), []byte(want)) == 1 {
			if rec.Status == "revoked" {
				return Context{}, ErrAPIKeyRevoked
			}
			return Context{ProjectID: rec.ProjectID, Scopes: rec.Scopes, Method: "api_key"}, nil
		}
	}
	return Context{}, ErrAPIKeyNotFound
}

// HashAPIKey returns the stored hash for a freshly generated token, and
// its 6-character prefix for indexing.
func HashAPIKey(token string) (hash, prefix string) {
	sum := sha256.Sum256([]byte(token))
	hash = hex.EncodeToString(sum[:])
	if len(token) >= apiKeyPrefixLen {
		prefix = token[:apiKeyPrefixLen]
	} else {
		prefix = token
	}
	return hash, prefix
}
