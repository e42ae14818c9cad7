package auth

import (
	"sort"
	"strings"
)

// normalizeScopes sorts and de-duplicates a scope list, the same
// determinism guarantee the original hand-rolled token provider gave
// every claim set.
func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	tmp := make([]string, 0, len(scopes))
	for _, s := range scopes {
		n := normCollapse(s)
		if n != "" {
			tmp = append(tmp, n)
		}
	}
	sort.Strings(tmp)

	out := make([]string, 0, len(tmp))
	var last string
	for i, s := range tmp {
		if i == 0 || s != last {
			out = append(out, s)
			last = s
		}
	}
	return out
}

func normCollapse(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

// hasScope reports whether scopes contains target, or scopes is empty
// (meaning unscoped / full access).
func hasScope(scopes []string, target string) bool {
	if len(scopes) == 0 {
		return true
	}
	for _, s := range scopes {
		if s == target {
			return true
		}
	}
	return false
}
