package dedupe

import (
	"context"
	"testing"
)

type fakeCustomerSource struct {
	byEmail []CustomerRecord
	byPhone []CustomerRecord
	all     []CustomerRecord
}

func (f *fakeCustomerSource) ByNormalizedEmail(_ context.Context, _, _ string) ([]CustomerRecord, error) {
	return f.byEmail, nil
}

func (f *fakeCustomerSource) ByNormalizedPhone(_ context.Context, _, _ string) ([]CustomerRecord, error) {
	return f.byPhone, nil
}

func (f *fakeCustomerSource) AllForFuzzyMatch(_ context.Context, _ string) ([]CustomerRecord, error) {
	return f.all, nil
}

func TestMatchCustomerExactEmailSuggestsMerge(t *testing.T) {
	src := &fakeCustomerSource{byEmail: []CustomerRecord{{ID: "c1", NormalizedEmail: "a@b.com"}}}
	res, err := MatchCustomer(context.Background(), src, "tenant-1", CustomerQuery{NormalizedEmail: "a@b.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuggestedAction != ActionMergeWith {
		t.Fatalf("expected merge_with, got %s", res.SuggestedAction)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].MatchType != MatchExactEmail {
		t.Fatalf("unexpected candidates: %+v", res.Candidates)
	}
}

func TestMatchCustomerFuzzyNameSuggestsReview(t *testing.T) {
	src := &fakeCustomerSource{all: []CustomerRecord{{ID: "c2", FirstName: "Christopher", LastName: "Johnson"}}}
	res, err := MatchCustomer(context.Background(), src, "tenant-1", CustomerQuery{FirstName: "Christopher", LastName: "Johnsson"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuggestedAction != ActionReview {
		t.Fatalf("expected review, got %s", res.SuggestedAction)
	}
}

func TestMatchCustomerNoMatchesSuggestsCreateNew(t *testing.T) {
	src := &fakeCustomerSource{}
	res, err := MatchCustomer(context.Background(), src, "tenant-1", CustomerQuery{FirstName: "Zzz", LastName: "Qqq"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuggestedAction != ActionCreateNew {
		t.Fatalf("expected create_new, got %s", res.SuggestedAction)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates, got %+v", res.Candidates)
	}
}

func TestMatchCustomerMergesByIDKeepingHighestScore(t *testing.T) {
	src := &fakeCustomerSource{
		byEmail: []CustomerRecord{{ID: "c1"}},
		byPhone: []CustomerRecord{{ID: "c1"}},
	}
	res, err := MatchCustomer(context.Background(), src, "tenant-1", CustomerQuery{NormalizedEmail: "a@b.com", NormalizedPhone: "+14155552671"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected candidates to merge to one entry, got %+v", res.Candidates)
	}
}

func TestMatchCustomerTruncatesToTop5(t *testing.T) {
	all := make([]CustomerRecord, 0, 8)
	for i := 0; i < 8; i++ {
		all = append(all, CustomerRecord{ID: string(rune('a' + i)), FirstName: "Jane", LastName: "Doe"})
	}
	src := &fakeCustomerSource{all: all}
	res, err := MatchCustomer(context.Background(), src, "tenant-1", CustomerQuery{FirstName: "Jane", LastName: "Doe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != customerCandidateCap {
		t.Fatalf("expected %d candidates, got %d", customerCandidateCap, len(res.Candidates))
	}
}
