package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/orbicheck/orbicheck/internal/auth"
)

// APIKeyLookup returns an auth.APIKeyLookup bound to this store, resolving
// a token's 6-char prefix to every candidate hash sharing it.
func (s *Store) APIKeyLookup() auth.APIKeyLookup {
	return func(ctx context.Context, prefix string) ([]auth.APIKeyRecord, error) {
		rows, err := s.query(ctx, `SELECT tenant_id, prefix, hash, status, scopes_json
			FROM api_keys WHERE prefix = $1`, prefix)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []auth.APIKeyRecord
		for rows.Next() {
			var rec auth.APIKeyRecord
			var scopesJSON string
			if err := rows.Scan(&rec.ProjectID, &rec.Prefix, &rec.Hash, &rec.Status, &scopesJSON); err != nil {
				return nil, err
			}
			rec.Scopes = parseScopes(scopesJSON)
			out = append(out, rec)
		}
		return out, rows.Err()
	}
}

// PATLookup returns an auth.PATLookup bound to this store.
func (s *Store) PATLookup() auth.PATLookup {
	return func(ctx context.Context, tokenID string) (auth.PATRecord, error) {
		var rec auth.PATRecord
		var scopesJSON, ipJSON string
		var expiresAt sql.NullTime
		err := s.queryRow(ctx, `SELECT tenant_id, user_id, hash, scopes_json, ip_allowlist_json, expires_at
			FROM personal_access_tokens WHERE token_id = $1`, tokenID).
			Scan(&rec.ProjectID, &rec.UserID, &rec.Hash, &scopesJSON, &ipJSON, &expiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return auth.PATRecord{}, auth.ErrPATNotFound
		}
		if err != nil {
			return auth.PATRecord{}, err
		}
		rec.Scopes = parseScopes(scopesJSON)
		rec.IPAllowlist = parseScopes(ipJSON)
		if expiresAt.Valid {
			t := expiresAt.Time.UTC()
			rec.ExpiresAt = &t
		}
		return rec, nil
	}
}

// HMACKeyLookup returns an auth.HMACKeyLookup bound to this store.
func (s *Store) HMACKeyLookup() auth.HMACKeyLookup {
	return func(ctx context.Context, keyID string) (auth.HMACKeyRecord, error) {
		var rec auth.HMACKeyRecord
		var scopesJSON string
		err := s.queryRow(ctx, `SELECT tenant_id, full_key, scopes_json FROM hmac_keys WHERE key_id = $1`, keyID).
			Scan(&rec.ProjectID, &rec.FullKey, &scopesJSON)
		if errors.Is(err, sql.ErrNoRows) {
			return auth.HMACKeyRecord{}, auth.ErrHMACUnknownKey
		}
		if err != nil {
			return auth.HMACKeyRecord{}, err
		}
		rec.Scopes = parseScopes(scopesJSON)
		return rec, nil
	}
}

// InsertAPIKey persists a newly issued API key's hash/prefix (used by the
// management-plane key-creation flow, not by the runtime auth path).
func (s *Store) InsertAPIKey(ctx context.Context, tenantID, prefix, hash, status string, scopes []string) error {
	_, err := s.exec(ctx, `INSERT INTO api_keys (prefix, tenant_id, hash, status, scopes_json) VALUES ($1, $2, $3, $4, $5)`,
		prefix, tenantID, hash, status, scopesJSON(scopes))
	return err
}

// InsertPAT persists a newly issued personal access token record.
func (s *Store) InsertPAT(ctx context.Context, tokenID, tenantID, userID, hash string, scopes, ipAllowlist []string, expiresAt *time.Time) error {
	_, err := s.exec(ctx, `INSERT INTO personal_access_tokens
		(token_id, tenant_id, user_id, hash, scopes_json, ip_allowlist_json, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tokenID, tenantID, userID, hash, scopesJSON(scopes), scopesJSON(ipAllowlist), expiresAt)
	return err
}
