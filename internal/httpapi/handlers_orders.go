package httpapi

import (
	"net/http"

	"github.com/orbicheck/orbicheck/internal/riskeval"
)

// handleOrdersEvaluate implements POST /v1/orders/evaluate (§4.11).
func (s *Server) handleOrdersEvaluate(w http.ResponseWriter, r *http.Request) {
	var in riskeval.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	if s.RiskEvaluator == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "risk evaluator unavailable")
		return
	}
	result, err := s.RiskEvaluator.Evaluate(r.Context(), actx.ProjectID, in)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "order evaluation failed")
		return
	}
	s.logAndDispatch(r.Context(), actx.ProjectID, "order.evaluated", "/v1/orders/evaluate", result.ReasonCodes, string(result.Action), map[string]string{
		"order_id": in.OrderID,
	})
	writeJSON(w, r, http.StatusOK, result)
}
