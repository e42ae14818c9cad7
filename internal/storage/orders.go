package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/orbicheck/orbicheck/internal/riskeval"
	"github.com/orbicheck/orbicheck/internal/validate/address"
)

func (s *Store) OrderExists(ctx context.Context, tenantID, orderID string) (bool, error) {
	var one int
	err := s.queryRow(ctx, `SELECT 1 FROM orders WHERE tenant_id = $1 AND order_id = $2`, tenantID, orderID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) UpsertCustomer(ctx context.Context, tenantID string, c riskeval.Customer) error {
	_, err := s.exec(ctx, `INSERT INTO customers (id, tenant_id, normalized_email, normalized_phone, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), tenantID, c.Email, c.Phone, c.FirstName, c.LastName, s.clock())
	return err
}

func (s *Store) UpsertAddress(ctx context.Context, tenantID string, a address.Input) error {
	_, err := s.exec(ctx, `INSERT INTO addresses (id, tenant_id, address_hash, line1, city, postal_code, country, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), tenantID, addressHash(a), a.Line1, a.City, a.PostalCode, a.Country, s.clock())
	return err
}

func (s *Store) InsertOrder(ctx context.Context, tenantID string, in riskeval.Input, result riskeval.Result) error {
	_, err := s.exec(ctx, `INSERT INTO orders (tenant_id, order_id, risk_score, action, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		tenantID, in.OrderID, result.RiskScore, string(result.Action), s.clock())
	return err
}
