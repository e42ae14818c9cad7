package dedupe

import "testing"

func TestSimilarityIdenticalStrings(t *testing.T) {
	if s := Similarity("Jane Doe", "Jane Doe"); s != 1.0 {
		t.Fatalf("expected 1.0, got %v", s)
	}
}

func TestSimilarityCloseNames(t *testing.T) {
	s := Similarity("Jane Doe", "Jane Dove")
	if s <= 0.5 || s >= 1.0 {
		t.Fatalf("expected a high but non-exact similarity, got %v", s)
	}
}

func TestSimilarityUnrelatedStrings(t *testing.T) {
	s := Similarity("Jane Doe", "Zzyzx Qwerty")
	if s > 0.2 {
		t.Fatalf("expected low similarity, got %v", s)
	}
}

func TestSimilarityEmptyInputs(t *testing.T) {
	if s := Similarity("", "anything"); s != 0 {
		t.Fatalf("expected 0, got %v", s)
	}
	if s := Similarity("", ""); s != 0 {
		t.Fatalf("expected 0, got %v", s)
	}
}
