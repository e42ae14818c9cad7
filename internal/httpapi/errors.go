package httpapi

import (
	"encoding/json"
	"net/http"
)

// errorBody is the §6 error envelope: {error:{code,message}, request_id}.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	var eb errorBody
	eb.Error.Code = code
	eb.Error.Message = message
	eb.RequestID = r.Header.Get(requestIDHeader)
	_ = json.NewEncoder(w).Encode(eb)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(withRequestID(r, v))
}

// envelope stamps request_id onto any response body (§6: "Responses always
// carry request_id"), without requiring every handler's result type to
// declare the field itself.
type envelope struct {
	Body      any    `json:"-"`
	RequestID string `json:"request_id"`
}

// withRequestID returns a value that marshals as v's fields plus
// request_id, by re-marshaling through a map merge.
func withRequestID(r *http.Request, v any) map[string]any {
	raw, err := json.Marshal(v)
	m := map[string]any{}
	if err == nil {
		_ = json.Unmarshal(raw, &m)
	}
	m["request_id"] = r.Header.Get(requestIDHeader)
	return m
}
