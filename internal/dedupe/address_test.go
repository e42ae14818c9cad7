package dedupe

import (
	"context"
	"testing"
)

type fakeAddressSource struct {
	byHash   []AddressRecord
	byPostal []AddressRecord
	all      []AddressRecord
}

func (f *fakeAddressSource) ByAddressHash(_ context.Context, _, _ string) ([]AddressRecord, error) {
	return f.byHash, nil
}

func (f *fakeAddressSource) ByPostalCityCountry(_ context.Context, _, _, _, _ string) ([]AddressRecord, error) {
	return f.byPostal, nil
}

func (f *fakeAddressSource) AllForFuzzyMatch(_ context.Context, _ string) ([]AddressRecord, error) {
	return f.all, nil
}

func TestMatchAddressExactHashSuggestsMerge(t *testing.T) {
	src := &fakeAddressSource{byHash: []AddressRecord{{ID: "a1", AddressHash: "deadbeef"}}}
	res, err := MatchAddress(context.Background(), src, "tenant-1", AddressQuery{AddressHash: "deadbeef"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuggestedAction != ActionMergeWith {
		t.Fatalf("expected merge_with, got %s", res.SuggestedAction)
	}
}

func TestMatchAddressExactPostalCity(t *testing.T) {
	src := &fakeAddressSource{byPostal: []AddressRecord{{ID: "a2"}}}
	res, err := MatchAddress(context.Background(), src, "tenant-1", AddressQuery{PostalCode: "02108", City: "Boston", Country: "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].MatchType != MatchExactPostal {
		t.Fatalf("unexpected candidates: %+v", res.Candidates)
	}
}

func TestMatchAddressFuzzyTruncatesToTop3(t *testing.T) {
	all := make([]AddressRecord, 0, 6)
	for i := 0; i < 6; i++ {
		all = append(all, AddressRecord{ID: string(rune('a' + i)), Line1: "123 Main St", City: "Springfield"})
	}
	src := &fakeAddressSource{all: all}
	res, err := MatchAddress(context.Background(), src, "tenant-1", AddressQuery{Line1: "123 Main St", City: "Springfield"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Candidates) != addressCandidateCap {
		t.Fatalf("expected %d candidates, got %d", addressCandidateCap, len(res.Candidates))
	}
}

func TestMatchAddressNoMatchSuggestsCreateNew(t *testing.T) {
	src := &fakeAddressSource{}
	res, err := MatchAddress(context.Background(), src, "tenant-1", AddressQuery{Line1: "999 Nowhere", City: "Nowhereville"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SuggestedAction != ActionCreateNew {
		t.Fatalf("expected create_new, got %s", res.SuggestedAction)
	}
}
