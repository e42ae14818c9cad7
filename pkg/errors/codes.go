// Package errors defines the HTTP-facing error code registry shared by every
// OrbiCheck handler. These codes are the ones carried in the top-level error
// envelope (see handler.go); they are distinct from the reason-code
// catalogue in internal/reason, which explains *why* a validation or risk
// decision came out the way it did rather than *what* went wrong with the
// request itself.
package errors

import (
	"encoding/json"
	"sort"
)

// Code is a stable HTTP error code. Once published, codes are API-stable.
type Code string

// CodeMeta carries the HTTP mapping and documentation for a Code.
type CodeMeta struct {
	HTTPStatus  int    `json:"http_status"`
	Retryable   bool   `json:"retryable"`
	Kind        string `json:"kind"` // client|server|security|dependency
	Description string `json:"description"`
}

// ---- input / schema ----
const (
	ValidationError Code = "validation_error"
	InvalidURL      Code = "invalid_url"
	InvalidType     Code = "invalid_type"
	InvalidIDs      Code = "invalid_ids"
	MissingPayload  Code = "missing_payload"
)

// ---- auth / tenancy ----
const (
	Unauthorized Code = "unauthorized"
	InvalidToken Code = "invalid_token"
	NoProject    Code = "no_project"
)

// ---- lookup / conflict ----
const (
	NotFound            Code = "not_found"
	UserExists          Code = "user_exists"
	IdempotencyConflict Code = "idempotency_conflict"
)

// ---- rate / transport ----
const (
	RateLimited       Code = "rate_limited"
	ServerError       Code = "server_error"
	WebhookSendFailed Code = "webhook.send_failed"
)

var registry = map[Code]CodeMeta{
	ValidationError: {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "request body failed schema validation"},
	InvalidURL:      {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "path or query parameter malformed"},
	InvalidType:     {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "field has the wrong type"},
	InvalidIDs:      {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "one or more referenced ids are malformed"},
	MissingPayload:  {HTTPStatus: 400, Retryable: false, Kind: "client", Description: "request body required but absent"},

	Unauthorized: {HTTPStatus: 401, Retryable: false, Kind: "security", Description: "no credential could be resolved from the request"},
	InvalidToken: {HTTPStatus: 401, Retryable: false, Kind: "security", Description: "credential present but invalid or expired"},
	NoProject:    {HTTPStatus: 403, Retryable: false, Kind: "security", Description: "credential valid but not scoped to a project"},

	NotFound:            {HTTPStatus: 404, Retryable: false, Kind: "client", Description: "resource not found"},
	UserExists:          {HTTPStatus: 409, Retryable: false, Kind: "client", Description: "user already registered"},
	IdempotencyConflict: {HTTPStatus: 409, Retryable: false, Kind: "client", Description: "same idempotency key reused with a different body"},

	RateLimited:       {HTTPStatus: 429, Retryable: true, Kind: "client", Description: "tenant exceeded its configured rate limit"},
	ServerError:       {HTTPStatus: 500, Retryable: true, Kind: "server", Description: "uncaught internal failure"},
	WebhookSendFailed: {HTTPStatus: 502, Retryable: true, Kind: "dependency", Description: "webhook delivery exhausted its retry budget"},
}

// Meta returns the metadata for code, if known.
func Meta(code Code) (CodeMeta, bool) {
	m, ok := registry[code]
	return m, ok
}

// Known reports whether code is in the registry.
func Known(code Code) bool {
	_, ok := registry[code]
	return ok
}

// List returns every known code, sorted.
func List() []Code {
	out := make([]Code, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportJSON renders the catalogue endpoint body (`/v1/rules/catalog/error-codes`).
func ExportJSON() []byte {
	type row struct {
		Code Code     `json:"code"`
		Meta CodeMeta `json:"meta"`
	}
	codes := List()
	rows := make([]row, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, row{Code: c, Meta: registry[c]})
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return []byte("[]")
	}
	return b
}
