package storage

import (
	"context"
	"database/sql"

	"github.com/orbicheck/orbicheck/internal/dedupe"
)

func (a AddressSourceAdapter) ByAddressHash(ctx context.Context, tenantID, hash string) ([]dedupe.AddressRecord, error) {
	if hash == "" {
		return nil, nil
	}
	rows, err := a.query(ctx, `SELECT id, address_hash, line1, city, postal_code, country
		FROM addresses WHERE tenant_id = $1 AND address_hash = $2`, tenantID, hash)
	if err != nil {
		return nil, err
	}
	return scanAddresses(rows)
}

func (a AddressSourceAdapter) ByPostalCityCountry(ctx context.Context, tenantID, postalCode, city, country string) ([]dedupe.AddressRecord, error) {
	rows, err := a.query(ctx, `SELECT id, address_hash, line1, city, postal_code, country
		FROM addresses WHERE tenant_id = $1 AND postal_code = $2 AND city = $3 AND country = $4`,
		tenantID, postalCode, city, country)
	if err != nil {
		return nil, err
	}
	return scanAddresses(rows)
}

func (a AddressSourceAdapter) AllForFuzzyMatch(ctx context.Context, tenantID string) ([]dedupe.AddressRecord, error) {
	rows, err := a.query(ctx, `SELECT id, address_hash, line1, city, postal_code, country
		FROM addresses WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	return scanAddresses(rows)
}

func scanAddresses(rows *sql.Rows) ([]dedupe.AddressRecord, error) {
	defer rows.Close()
	var out []dedupe.AddressRecord
	for rows.Next() {
		var rec dedupe.AddressRecord
		if err := rows.Scan(&rec.ID, &rec.AddressHash, &rec.Line1, &rec.City, &rec.PostalCode, &rec.Country); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MergeAddresses folds every id in ids into canonicalID by deleting the
// losing rows (§6 dedupe/merge).
func (s *Store) MergeAddresses(ctx context.Context, tenantID, canonicalID string, ids []string) (int, error) {
	merged := 0
	for _, id := range ids {
		res, err := s.exec(ctx, `DELETE FROM addresses WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if err != nil {
			return merged, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			merged++
		}
	}
	return merged, nil
}
