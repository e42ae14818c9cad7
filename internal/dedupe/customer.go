// Package dedupe implements the §4.6 customer and address dedupe engines:
// exact matching on normalized identity fields plus trigram fuzzy
// matching on name/street/city, merged and truncated into a ranked
// candidate list.
package dedupe

import (
	"context"
	"sort"
)

const (
	fuzzyThreshold       = 0.85
	customerCandidateCap = 5
	addressCandidateCap  = 3
)

// SuggestedAction is the §4.6 aggregate verdict derived from the top
// candidate's score.
type SuggestedAction string

const (
	ActionMergeWith SuggestedAction = "merge_with"
	ActionReview    SuggestedAction = "review"
	ActionCreateNew SuggestedAction = "create_new"
)

// MatchType enumerates how a candidate was found.
type MatchType string

const (
	MatchExactEmail   MatchType = "exact_email"
	MatchExactPhone   MatchType = "exact_phone"
	MatchFuzzyName    MatchType = "fuzzy_name"
	MatchExactAddress MatchType = "exact_address"
	MatchExactPostal  MatchType = "exact_postal"
	MatchFuzzyAddress MatchType = "fuzzy_address"
)

// Candidate is one ranked dedupe match.
type Candidate struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type"`
}

// CustomerResult is the §4.6 customer-dedupe response shape.
type CustomerResult struct {
	Candidates      []Candidate     `json:"candidates"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
}

// CustomerQuery is the input identity being checked against tenant
// history.
type CustomerQuery struct {
	NormalizedEmail string
	NormalizedPhone string
	FirstName       string
	LastName        string
}

// CustomerRecord is a stored tenant customer, as returned by CustomerSource.
type CustomerRecord struct {
	ID              string
	NormalizedEmail string
	NormalizedPhone string
	FirstName       string
	LastName        string
}

// CustomerSource is the narrow tenant-scoped lookup surface the customer
// dedupe engine needs; a concrete implementation lives in internal/storage.
type CustomerSource interface {
	ByNormalizedEmail(ctx context.Context, tenantID, normalizedEmail string) ([]CustomerRecord, error)
	ByNormalizedPhone(ctx context.Context, tenantID, normalizedPhone string) ([]CustomerRecord, error)
	AllForFuzzyMatch(ctx context.Context, tenantID string) ([]CustomerRecord, error)
}

// MatchCustomer runs the full §4.6 customer-dedupe algorithm for one tenant.
func MatchCustomer(ctx context.Context, source CustomerSource, tenantID string, q CustomerQuery) (CustomerResult, error) {
	candidates := make(map[string]Candidate)

	if q.NormalizedEmail != "" {
		matches, err := source.ByNormalizedEmail(ctx, tenantID, q.NormalizedEmail)
		if err != nil {
			return CustomerResult{}, err
		}
		for _, m := range matches {
			upsertCandidate(candidates, Candidate{ID: m.ID, Score: 1.0, MatchType: MatchExactEmail})
		}
	}

	if q.NormalizedPhone != "" {
		matches, err := source.ByNormalizedPhone(ctx, tenantID, q.NormalizedPhone)
		if err != nil {
			return CustomerResult{}, err
		}
		for _, m := range matches {
			upsertCandidate(candidates, Candidate{ID: m.ID, Score: 1.0, MatchType: MatchExactPhone})
		}
	}

	fullName := q.FirstName + " " + q.LastName
	if all, err := source.AllForFuzzyMatch(ctx, tenantID); err == nil {
		for _, rec := range all {
			recName := rec.FirstName + " " + rec.LastName
			if sim := Similarity(fullName, recName); sim > fuzzyThreshold {
				upsertCandidate(candidates, Candidate{ID: rec.ID, Score: sim, MatchType: MatchFuzzyName})
			}
		}
	}

	ranked := rankCandidates(candidates, customerCandidateCap)
	return CustomerResult{Candidates: ranked, SuggestedAction: suggestAction(ranked)}, nil
}

// upsertCandidate merges by id, retaining the highest score per id (§4.6).
func upsertCandidate(candidates map[string]Candidate, c Candidate) {
	if existing, ok := candidates[c.ID]; !ok || c.Score > existing.Score {
		candidates[c.ID] = c
	}
}

func rankCandidates(candidates map[string]Candidate, cap int) []Candidate {
	ranked := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > cap {
		ranked = ranked[:cap]
	}
	return ranked
}

func suggestAction(ranked []Candidate) SuggestedAction {
	if len(ranked) == 0 {
		return ActionCreateNew
	}
	top := ranked[0].Score
	switch {
	case top == 1.0:
		return ActionMergeWith
	case top >= fuzzyThreshold:
		return ActionReview
	default:
		return ActionCreateNew
	}
}
