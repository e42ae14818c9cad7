package dedupe

import "strings"

// trigrams splits s into its set of overlapping 3-character shingles,
// padded so short strings still produce at least one shingle. No
// trigram-similarity library appears anywhere in the retrieval pack, so
// this and Similarity below are a deliberate standard-library
// implementation.
func trigrams(s string) map[string]struct{} {
	padded := "  " + strings.ToLower(strings.TrimSpace(s)) + "  "
	set := make(map[string]struct{})
	runes := []rune(padded)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// Similarity returns the Jaccard similarity of a and b's trigram sets, in
// [0,1]. Two empty strings are defined as dissimilar (0), not identical,
// since there is nothing to compare.
func Similarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for g := range ta {
		if _, ok := tb[g]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
