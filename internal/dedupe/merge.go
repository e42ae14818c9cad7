package dedupe

import (
	"context"
	"errors"

	"github.com/orbicheck/orbicheck/pkg/canonical"
)

// ErrInvalidMergeRequest is returned when a merge request names fewer
// than two ids or a canonical id not present in ids.
var ErrInvalidMergeRequest = errors.New("dedupe: invalid merge request")

// RecordKind is the §6 `/v1/dedupe/merge` request's `type` field.
type RecordKind string

const (
	KindCustomer RecordKind = "customer"
	KindAddress  RecordKind = "address"
)

// Merger folds the non-canonical ids into canonicalID and returns how many
// rows were merged away; storage implements this per record kind.
type Merger interface {
	MergeCustomers(ctx context.Context, tenantID, canonicalID string, ids []string) (int, error)
	MergeAddresses(ctx context.Context, tenantID, canonicalID string, ids []string) (int, error)
}

// MergeRequest is the §6 `/v1/dedupe/merge` request shape.
type MergeRequest struct {
	Type        RecordKind
	IDs         []string
	CanonicalID string
}

// Merge validates the request and dispatches to the kind-appropriate
// merge operation.
func Merge(ctx context.Context, m Merger, tenantID string, req MergeRequest) (int, error) {
	if len(req.IDs) < 2 || req.CanonicalID == "" {
		return 0, ErrInvalidMergeRequest
	}
	if err := canonical.ValidateTenantID(canonical.TenantID(tenantID)); err != nil {
		return 0, ErrInvalidMergeRequest
	}
	if _, err := canonical.NewEntityRef(canonical.TenantID(tenantID), string(req.Type), canonical.EntityID(req.CanonicalID)); err != nil {
		return 0, ErrInvalidMergeRequest
	}

	found := false
	others := make([]string, 0, len(req.IDs)-1)
	for _, id := range req.IDs {
		if err := canonical.ValidateEntityID(canonical.EntityID(id)); err != nil {
			return 0, ErrInvalidMergeRequest
		}
		if id == req.CanonicalID {
			found = true
			continue
		}
		others = append(others, id)
	}
	if !found {
		return 0, ErrInvalidMergeRequest
	}

	switch req.Type {
	case KindCustomer:
		return m.MergeCustomers(ctx, tenantID, req.CanonicalID, others)
	case KindAddress:
		return m.MergeAddresses(ctx, tenantID, req.CanonicalID, others)
	default:
		return 0, ErrInvalidMergeRequest
	}
}
