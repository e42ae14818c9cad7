// Package storage is the tenant-scoped relational repository layer:
// customers, addresses, orders, webhook subscriptions, API keys, personal
// access tokens, and HMAC keys, all keyed by project_id. It implements the
// narrow lookup interfaces internal/dedupe, internal/riskeval,
// internal/webhook, and internal/auth declare, the way the teacher's
// object store implements a single persistence concern behind
// database/sql with no driver import here — a postgres or sqlite3 driver
// is registered elsewhere via blank import (cmd/orbicheckd).
//
// Grounded on the teacher's PostgresStore (internal/storage/
// postgres_store.go, pre-transformation): same Clock-injected
// determinism, same canonical-JSON-for-flexible-fields pattern, same
// conservative identifier handling. Generalized from one generic
// tenant_id+object_key KV table into the domain's actual entities, and
// from Postgres-only to a thin dialect switch so the same queries run
// against lib/pq and mattn/go-sqlite3 in dev/test.
package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orbicheck/orbicheck/internal/dedupe"
	"github.com/orbicheck/orbicheck/internal/riskeval"
	"github.com/orbicheck/orbicheck/internal/rules"
	"github.com/orbicheck/orbicheck/internal/validate/address"
	"github.com/orbicheck/orbicheck/internal/webhook"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidData = errors.New("storage: invalid data")
)

// Dialect selects the placeholder style and upsert syntax for the two
// drivers this module depends on.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// Clock supplies timestamps; overridable for deterministic tests.
type Clock func() time.Time

// Store is the single *sql.DB-backed repository for every domain entity.
// All methods are tenant-scoped by an explicit project_id parameter.
type Store struct {
	db      *sql.DB
	dialect Dialect
	clock   Clock
}

// New wraps an already-opened *sql.DB (lib/pq for Postgres, or
// mattn/go-sqlite3 for local/dev use) in the domain repository.
func New(db *sql.DB, dialect Dialect, clock Clock) *Store {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Store{db: db, dialect: dialect, clock: clock}
}

// bind rewrites a query written with $1, $2, ... placeholders into the
// driver's native style; sqlite3 takes bare `?`.
func (s *Store) bind(q string) string {
	if s.dialect != DialectSQLite {
		return q
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '$' && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
			j := i + 1
			for j < len(q) && q[j] >= '0' && q[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j - 1
			n++
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.bind(q), args...)
}

func (s *Store) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.bind(q), args...)
}

func (s *Store) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.bind(q), args...)
}

// Ping reports whether the backing database is reachable; used by the
// /v1/health component check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureSchema creates every table this store needs if absent. Idempotent,
// safe to call on every process start (the teacher's EnsureSchema does the
// same for its single object table).
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			normalized_email TEXT NOT NULL DEFAULT '',
			normalized_phone TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			address_hash TEXT NOT NULL DEFAULT '',
			line1 TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			postal_code TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			tenant_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			risk_score INTEGER NOT NULL,
			action TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (tenant_id, order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_subscriptions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			prefix TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			hash TEXT NOT NULL,
			status TEXT NOT NULL,
			scopes_json TEXT NOT NULL,
			PRIMARY KEY (prefix, hash)
		)`,
		`CREATE TABLE IF NOT EXISTS personal_access_tokens (
			token_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			hash TEXT NOT NULL,
			scopes_json TEXT NOT NULL,
			ip_allowlist_json TEXT NOT NULL,
			expires_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS hmac_keys (
			key_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			full_key BLOB NOT NULL,
			scopes_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			expression TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}

func scopesJSON(scopes []string) string {
	b, _ := json.Marshal(scopes)
	return string(b)
}

func parseScopes(raw string) []string {
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func addressHash(in address.Input) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(in.Line1)) + "|" +
		strings.ToLower(strings.TrimSpace(in.City)) + "|" +
		strings.ToLower(strings.TrimSpace(in.PostalCode)) + "|" +
		strings.ToLower(strings.TrimSpace(in.Country))))
	return hex.EncodeToString(sum[:])
}

// Customers and Addresses adapt Store to the distinctly-shaped
// dedupe.CustomerSource and dedupe.AddressSource interfaces; both declare
// an AllForFuzzyMatch method with the same parameters but different
// record types, so a single receiver type cannot implement both at once.
func (s *Store) Customers() CustomerSource { return CustomerSource{s} }
func (s *Store) Addresses() AddressSourceAdapter { return AddressSourceAdapter{s} }

type CustomerSource struct{ *Store }
type AddressSourceAdapter struct{ *Store }

var (
	_ dedupe.CustomerSource      = CustomerSource{}
	_ dedupe.AddressSource       = AddressSourceAdapter{}
	_ dedupe.Merger              = (*Store)(nil)
	_ riskeval.OrderStore        = (*Store)(nil)
	_ webhook.SubscriptionSource = (*Store)(nil)
)

// RulesFor satisfies httpapi.RuleSource: every enabled rule for a tenant,
// priority-desc then created-at-asc, matching the firing order
// rules.Engine.Evaluate expects.
func (s *Store) RulesFor(ctx context.Context, tenantID string) ([]rules.Rule, error) {
	rows, err := s.query(ctx, `SELECT id, name, description, action, priority, enabled, expression, created_at
		FROM rules WHERE tenant_id = $1 AND enabled = TRUE
		ORDER BY priority DESC, created_at ASC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var r rules.Rule
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Action, &r.Priority, &r.Enabled, &r.Expression, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertRule persists a rule created through the management plane.
func (s *Store) InsertRule(ctx context.Context, tenantID string, r rules.Rule) error {
	_, err := s.exec(ctx, `INSERT INTO rules (id, tenant_id, name, description, action, priority, enabled, expression, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, tenantID, r.Name, r.Description, r.Action, r.Priority, r.Enabled, r.Expression, r.CreatedAt)
	return err
}
