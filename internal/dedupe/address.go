package dedupe

import (
	"context"
	"strings"
)

// AddressQuery is the input address being checked against tenant history.
type AddressQuery struct {
	AddressHash string
	Line1       string
	City        string
	PostalCode  string
	Country     string
}

// AddressRecord is a stored tenant address, as returned by AddressSource.
type AddressRecord struct {
	ID          string
	AddressHash string
	Line1       string
	City        string
	PostalCode  string
	Country     string
}

// AddressSource is the narrow tenant-scoped lookup surface the address
// dedupe engine needs.
type AddressSource interface {
	ByAddressHash(ctx context.Context, tenantID, addressHash string) ([]AddressRecord, error)
	ByPostalCityCountry(ctx context.Context, tenantID, postalCode, city, country string) ([]AddressRecord, error)
	AllForFuzzyMatch(ctx context.Context, tenantID string) ([]AddressRecord, error)
}

// MatchAddress runs the full §4.6 address-dedupe algorithm for one tenant.
func MatchAddress(ctx context.Context, source AddressSource, tenantID string, q AddressQuery) (CustomerResult, error) {
	candidates := make(map[string]Candidate)

	if q.AddressHash != "" {
		matches, err := source.ByAddressHash(ctx, tenantID, q.AddressHash)
		if err != nil {
			return CustomerResult{}, err
		}
		for _, m := range matches {
			upsertCandidate(candidates, Candidate{ID: m.ID, Score: 1.0, MatchType: MatchExactAddress})
		}
	}

	if q.PostalCode != "" && q.City != "" && q.Country != "" {
		matches, err := source.ByPostalCityCountry(ctx, tenantID, q.PostalCode, strings.ToLower(q.City), q.Country)
		if err != nil {
			return CustomerResult{}, err
		}
		for _, m := range matches {
			upsertCandidate(candidates, Candidate{ID: m.ID, Score: 1.0, MatchType: MatchExactPostal})
		}
	}

	if all, err := source.AllForFuzzyMatch(ctx, tenantID); err == nil {
		for _, rec := range all {
			sim := maxSimilarity(
				Similarity(q.Line1, rec.Line1),
				Similarity(q.City, rec.City),
			)
			if sim > fuzzyThreshold {
				upsertCandidate(candidates, Candidate{ID: rec.ID, Score: sim, MatchType: MatchFuzzyAddress})
			}
		}
	}

	ranked := rankCandidates(candidates, addressCandidateCap)
	return CustomerResult{Candidates: ranked, SuggestedAction: suggestAction(ranked)}, nil
}

func maxSimilarity(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
