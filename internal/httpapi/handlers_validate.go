package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/orbicheck/orbicheck/internal/eventlog"
	"github.com/orbicheck/orbicheck/internal/reason"
	"github.com/orbicheck/orbicheck/internal/validate/address"
	"github.com/orbicheck/orbicheck/internal/validate/phone"
	"github.com/orbicheck/orbicheck/internal/validate/taxid"
	"github.com/orbicheck/orbicheck/internal/webhook"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleValidateEmail implements POST /v1/validate/email (§4.2).
func (s *Server) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	if s.EmailValidator == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "email validator unavailable")
		return
	}
	result := s.EmailValidator.Validate(r.Context(), actx.ProjectID, req.Email)
	s.logAndDispatch(r.Context(), actx.ProjectID, "validate.email", "/v1/validate/email", result.ReasonCodes, statusFor(result.Valid), nil)
	writeJSON(w, r, http.StatusOK, result)
}

// handleValidatePhone implements POST /v1/validate/phone (§4.3).
func (s *Server) handleValidatePhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Country string `json:"country,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	result := phone.Parse(req.Phone, req.Country)

	var verificationID string
	if result.Valid && s.OTP != nil {
		result, verificationID = phone.SendOTP(r.Context(), s.OTP, result)
	}

	s.logAndDispatch(r.Context(), actx.ProjectID, "validate.phone", "/v1/validate/phone", result.ReasonCodes, statusFor(result.Valid), nil)

	resp := map[string]any{
		"valid":        result.Valid,
		"e164":         result.E164,
		"country":      result.Country,
		"reason_codes": result.ReasonCodes,
	}
	if verificationID != "" {
		resp["verification_sid"] = verificationID
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleVerifyPhone implements POST /v1/verify/phone.
func (s *Server) handleVerifyPhone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerificationSID string `json:"verification_sid"`
		Code            string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if s.OTP == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "otp provider unavailable")
		return
	}
	ok, codes := phone.VerifyOTP(r.Context(), s.OTP, req.VerificationSID, req.Code)
	actx, _ := authContext(r)
	s.logAndDispatch(r.Context(), actx.ProjectID, "verify.phone", "/v1/verify/phone", codes, statusFor(ok), nil)
	writeJSON(w, r, http.StatusOK, map[string]any{"valid": ok, "reason_codes": codes})
}

// handleValidateAddress implements POST /v1/validate/address (§4.4).
func (s *Server) handleValidateAddress(w http.ResponseWriter, r *http.Request) {
	var in address.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	actx, _ := authContext(r)
	if s.AddressValidator == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "address validator unavailable")
		return
	}
	result := s.AddressValidator.Validate(r.Context(), actx.ProjectID, in)
	s.logAndDispatch(r.Context(), actx.ProjectID, "validate.address", "/v1/validate/address", result.ReasonCodes, statusFor(result.Valid), nil)
	writeJSON(w, r, http.StatusOK, result)
}

// handleNormalizeAddress implements POST /v1/normalize/address: the cheap,
// no-geocode half of §4.4 — syntactic normalization only.
func (s *Server) handleNormalizeAddress(w http.ResponseWriter, r *http.Request) {
	var in address.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"line1":       strings.TrimSpace(in.Line1),
		"line2":       strings.TrimSpace(in.Line2),
		"city":        strings.TrimSpace(in.City),
		"postal_code": strings.ToUpper(strings.TrimSpace(in.PostalCode)),
		"state":       strings.ToUpper(strings.TrimSpace(in.State)),
		"country":     strings.ToUpper(strings.TrimSpace(in.Country)),
	})
}

// handleValidateTaxID implements POST /v1/validate/tax-id (§4.5).
func (s *Server) handleValidateTaxID(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	typ := taxid.Type(strings.ToLower(req.Type))
	var result taxid.Result
	if typ == taxid.TypeVAT {
		result = taxid.ValidateVAT(r.Context(), s.VATClient, req.Value)
	} else {
		result = taxid.Validate(typ, req.Value)
	}
	actx, _ := authContext(r)
	s.logAndDispatch(r.Context(), actx.ProjectID, "validate.tax_id", "/v1/validate/tax-id", result.ReasonCodes, statusFor(result.Valid), nil)
	writeJSON(w, r, http.StatusOK, result)
}

var namePattern = regexp.MustCompile(`^[\p{L}\p{M}'\-. ]{1,120}$`)

// handleValidateName implements POST /v1/validate/name: format only, no
// external lookups, per §6's route table annotation.
func (s *Server) handleValidateName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	trimmed := strings.TrimSpace(req.Name)
	valid := namePattern.MatchString(trimmed)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"valid":        valid,
		"normalized":   trimmed,
		"reason_codes": []reason.Code{},
	})
}

func statusFor(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

// logAndDispatch appends one event-log entry for the completed operation
// and fires matching webhook subscriptions, per §4.12/§4.13. The
// validate (email, phone, address, tax-id), verify, dedupe and order
// handlers call it; the name, normalize, rules, logs, usage and health
// handlers do not. A dispatch is attempted after the row commits.
func (s *Server) logAndDispatch(ctx context.Context, tenantID, eventType, endpoint string, codes []reason.Code, status string, meta map[string]string) {
	if s.EventLog == nil {
		return
	}
	entry, err := s.EventLog.Append(eventlog.Entry{
		ProjectID:   tenantID,
		Type:        eventType,
		Endpoint:    endpoint,
		ReasonCodes: codes,
		Status:      status,
		Meta:        meta,
		CreatedAt:   s.now(),
	})
	if err != nil || s.Webhooks == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	go func() {
		_ = s.Webhooks.Dispatch(context.WithoutCancel(ctx), webhook.Event{
			TenantID: tenantID,
			Type:     eventType,
			Payload:  payload,
		})
	}()
}
