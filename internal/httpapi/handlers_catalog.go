package httpapi

import (
	"net/http"

	"github.com/orbicheck/orbicheck/internal/reason"
)

// handleRulesCatalog implements GET /v1/rules/catalog: the full closed
// reason-code catalogue (category, severity, description) rules can fire.
func (s *Server) handleRulesCatalog(w http.ResponseWriter, r *http.Request) {
	codes := reason.All()
	out := make([]map[string]any, 0, len(codes))
	for _, c := range codes {
		meta, _ := reason.Lookup(c)
		out = append(out, map[string]any{
			"code":        c,
			"category":    meta.Category,
			"severity":    meta.Severity,
			"description": meta.Description,
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"codes": out})
}

// handleRulesCatalogErrorCodes implements GET /v1/rules/catalog/error-codes:
// just the bare code strings, for clients that only need the enum.
func (s *Server) handleRulesCatalogErrorCodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"codes": reason.All()})
}

// handleRulesList implements GET /v1/rules: the tenant's configured rule
// set, resolved through Server.Rules.
func (s *Server) handleRulesList(w http.ResponseWriter, r *http.Request) {
	actx, _ := authContext(r)
	if s.Rules == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{"rules": []any{}})
		return
	}
	rs, err := s.Rules.RulesFor(r.Context(), actx.ProjectID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not load rule set")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"rules": rs})
}
