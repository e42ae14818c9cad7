package storage

import (
	"context"
	"database/sql"

	"github.com/orbicheck/orbicheck/internal/dedupe"
)

func (c CustomerSource) ByNormalizedEmail(ctx context.Context, tenantID, email string) ([]dedupe.CustomerRecord, error) {
	if email == "" {
		return nil, nil
	}
	rows, err := c.query(ctx, `SELECT id, normalized_email, normalized_phone, first_name, last_name
		FROM customers WHERE tenant_id = $1 AND normalized_email = $2`, tenantID, email)
	if err != nil {
		return nil, err
	}
	return scanCustomers(rows)
}

func (c CustomerSource) ByNormalizedPhone(ctx context.Context, tenantID, phone string) ([]dedupe.CustomerRecord, error) {
	if phone == "" {
		return nil, nil
	}
	rows, err := c.query(ctx, `SELECT id, normalized_email, normalized_phone, first_name, last_name
		FROM customers WHERE tenant_id = $1 AND normalized_phone = $2`, tenantID, phone)
	if err != nil {
		return nil, err
	}
	return scanCustomers(rows)
}

func (c CustomerSource) AllForFuzzyMatch(ctx context.Context, tenantID string) ([]dedupe.CustomerRecord, error) {
	rows, err := c.query(ctx, `SELECT id, normalized_email, normalized_phone, first_name, last_name
		FROM customers WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	return scanCustomers(rows)
}

func scanCustomers(rows *sql.Rows) ([]dedupe.CustomerRecord, error) {
	defer rows.Close()
	var out []dedupe.CustomerRecord
	for rows.Next() {
		var rec dedupe.CustomerRecord
		if err := rows.Scan(&rec.ID, &rec.NormalizedEmail, &rec.NormalizedPhone, &rec.FirstName, &rec.LastName); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MergeCustomers folds every id in ids into canonicalID by deleting the
// losing rows; the canonical row is left untouched (§6 dedupe/merge).
func (s *Store) MergeCustomers(ctx context.Context, tenantID, canonicalID string, ids []string) (int, error) {
	merged := 0
	for _, id := range ids {
		res, err := s.exec(ctx, `DELETE FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
		if err != nil {
			return merged, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			merged++
		}
	}
	return merged, nil
}
