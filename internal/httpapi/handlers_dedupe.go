package httpapi

import (
	"errors"
	"net/http"

	"github.com/orbicheck/orbicheck/internal/dedupe"
)

// handleDedupeCustomer implements POST /v1/dedupe/customer (§4.6).
func (s *Server) handleDedupeCustomer(w http.ResponseWriter, r *http.Request) {
	var q dedupe.CustomerQuery
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	if s.CustomerDedupe == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "customer dedupe unavailable")
		return
	}
	result, err := dedupe.MatchCustomer(r.Context(), s.CustomerDedupe, actx.ProjectID, q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "dedupe lookup failed")
		return
	}
	s.logAndDispatch(r.Context(), actx.ProjectID, "dedupe.customer", "/v1/dedupe/customer", nil, string(result.SuggestedAction), nil)
	writeJSON(w, r, http.StatusOK, result)
}

// handleDedupeAddress implements POST /v1/dedupe/address (§4.6).
func (s *Server) handleDedupeAddress(w http.ResponseWriter, r *http.Request) {
	var q dedupe.AddressQuery
	if err := decodeJSON(r, &q); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	if s.AddressDedupe == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "address dedupe unavailable")
		return
	}
	result, err := dedupe.MatchAddress(r.Context(), s.AddressDedupe, actx.ProjectID, q)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "dedupe lookup failed")
		return
	}
	s.logAndDispatch(r.Context(), actx.ProjectID, "dedupe.address", "/v1/dedupe/address", nil, string(result.SuggestedAction), nil)
	writeJSON(w, r, http.StatusOK, result)
}

// handleDedupeMerge implements POST /v1/dedupe/merge:
// {type ∈ {customer, address}, ids[], canonical_id}.
func (s *Server) handleDedupeMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        dedupe.RecordKind `json:"type"`
		IDs         []string          `json:"ids"`
		CanonicalID string            `json:"canonical_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	if s.Merger == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "merge store unavailable")
		return
	}
	merged, err := dedupe.Merge(r.Context(), s.Merger, actx.ProjectID, dedupe.MergeRequest{
		Type:        req.Type,
		IDs:         req.IDs,
		CanonicalID: req.CanonicalID,
	})
	if err != nil {
		if errors.Is(err, dedupe.ErrInvalidMergeRequest) {
			writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "merge failed")
		return
	}
	s.logAndDispatch(r.Context(), actx.ProjectID, "dedupe.merge", "/v1/dedupe/merge", nil, "merged", map[string]string{
		"canonical_id": req.CanonicalID,
	})
	writeJSON(w, r, http.StatusOK, map[string]any{
		"merged_count": merged,
		"canonical_id": req.CanonicalID,
	})
}
