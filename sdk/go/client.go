// Package orbicheck is a thin Go SDK for the OrbiCheck runtime API.
//
// Design goals:
// - stdlib-only HTTP
// - consistent headers (tenant, request id, trace propagation)
// - bounded IO for safety
// - consistent error envelope decoding (pkg/errors)
//
// The client covers every /v1 route in the runtime route table; it does not
// assume schemas beyond what's documented on each method.
package orbicheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	orbierrors "github.com/orbicheck/orbicheck/pkg/errors"
	"github.com/orbicheck/orbicheck/pkg/telemetry"
)

const (
	DefaultTenantHeader  = "X-Tenant-Id"
	DefaultRequestHeader = "X-Request-Id"

	DefaultMaxRequestBytes  = int64(4 * 1024 * 1024) // 4 MiB
	DefaultMaxResponseBytes = int64(8 * 1024 * 1024) // 8 MiB
	DefaultTimeout          = 15 * time.Second
)

// Client is a thin HTTP client wrapper with safe defaults.
type Client struct {
	BaseURL string

	TenantHeader  string
	RequestHeader string

	// DefaultTenant is used when a request doesn't set WithTenant and ctx
	// carries no tenant_id value.
	DefaultTenant string

	// StaticHeaders are applied to every request (e.g. an API key).
	StaticHeaders map[string]string

	HTTP *http.Client

	MaxRequestBytes  int64
	MaxResponseBytes int64
}

// NewClient constructs a client with safe defaults.
func NewClient(baseURL string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	return &Client{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		TenantHeader:     DefaultTenantHeader,
		RequestHeader:    DefaultRequestHeader,
		HTTP:             &http.Client{Timeout: DefaultTimeout},
		MaxRequestBytes:  DefaultMaxRequestBytes,
		MaxResponseBytes: DefaultMaxResponseBytes,
		StaticHeaders:    map[string]string{},
	}
}

// RequestOption mutates an outgoing request configuration.
type RequestOption func(*requestCfg)

type requestCfg struct {
	tenantID   string
	requestID  string
	apiKey     string
	headers    map[string]string
	traceState telemetry.SpanContext
	haveTrace  bool
}

// WithTenant forces a tenant header value for this request.
func WithTenant(tenant string) RequestOption {
	return func(c *requestCfg) { c.tenantID = strings.TrimSpace(tenant) }
}

// WithRequestID forces a request id header for this request.
func WithRequestID(reqID string) RequestOption {
	return func(c *requestCfg) { c.requestID = strings.TrimSpace(reqID) }
}

// WithAPIKey sets the Bearer credential for this request (§5.1 API key auth).
func WithAPIKey(key string) RequestOption {
	return func(c *requestCfg) { c.apiKey = strings.TrimSpace(key) }
}

// WithHeader sets an extra header for this request.
func WithHeader(k, v string) RequestOption {
	return func(c *requestCfg) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
}

// WithSpanContext forces a trace context for this request (overrides any
// SpanContext carried on ctx).
func WithSpanContext(sc telemetry.SpanContext) RequestOption {
	return func(c *requestCfg) {
		c.traceState = sc
		c.haveTrace = true
	}
}

// Validate/normalize endpoints (§4.2-§4.5).

func (c *Client) ValidateEmail(ctx context.Context, email string, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/validate/email", map[string]string{"email": email}, opts...)
}

func (c *Client) ValidatePhone(ctx context.Context, phone, country string, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/validate/phone", map[string]string{"phone": phone, "country": country}, opts...)
}

func (c *Client) VerifyPhone(ctx context.Context, verificationSID, code string, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/verify/phone", map[string]string{"verification_sid": verificationSID, "code": code}, opts...)
}

func (c *Client) ValidateAddress(ctx context.Context, address any, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/validate/address", address, opts...)
}

func (c *Client) NormalizeAddress(ctx context.Context, address any, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/normalize/address", address, opts...)
}

func (c *Client) ValidateTaxID(ctx context.Context, typ, value string, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/validate/tax-id", map[string]string{"type": typ, "value": value}, opts...)
}

func (c *Client) ValidateName(ctx context.Context, name string, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/validate/name", map[string]string{"name": name}, opts...)
}

// Dedupe endpoints (§4.8-§4.10).

func (c *Client) DedupeCustomer(ctx context.Context, customer any, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/dedupe/customer", customer, opts...)
}

func (c *Client) DedupeAddress(ctx context.Context, address any, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/dedupe/address", address, opts...)
}

func (c *Client) DedupeMerge(ctx context.Context, canonicalID string, duplicateIDs []string, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/dedupe/merge", map[string]any{
		"canonical_id":  canonicalID,
		"duplicate_ids": duplicateIDs,
	}, opts...)
}

// OrdersEvaluate runs the risk engine over one order (§4.11).
func (c *Client) OrdersEvaluate(ctx context.Context, order any, opts ...RequestOption) (json.RawMessage, error) {
	return c.postJSON(ctx, "/v1/orders/evaluate", order, opts...)
}

// Rules endpoints (§4.6).

func (c *Client) RulesList(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v1/rules", opts...)
}

func (c *Client) RulesCatalog(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v1/rules/catalog", opts...)
}

func (c *Client) RulesCatalogErrorCodes(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v1/rules/catalog/error-codes", opts...)
}

// Data/management endpoints (§4.12-§4.13).

func (c *Client) DataLogs(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v1/data/logs", opts...)
}

func (c *Client) DataLogsGet(ctx context.Context, id string, opts ...RequestOption) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v1/data/logs/"+strings.TrimSpace(id), opts...)
}

func (c *Client) DataLogsDelete(ctx context.Context, id string, opts ...RequestOption) error {
	_, err := c.doRaw(ctx, http.MethodDelete, "/v1/data/logs/"+strings.TrimSpace(id), nil, opts...)
	return err
}

func (c *Client) DataUsage(ctx context.Context, opts ...RequestOption) (json.RawMessage, error) {
	return c.getJSON(ctx, "/v1/data/usage", opts...)
}

func (c *Client) DataUsageDelete(ctx context.Context, opts ...RequestOption) error {
	_, err := c.doRaw(ctx, http.MethodDelete, "/v1/data/usage", nil, opts...)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	return c.doRaw(ctx, http.MethodGet, path, nil, opts...)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.doRaw(ctx, http.MethodPost, path, body, opts...)
}

// DoJSON performs an HTTP request with an optional JSON body and optionally
// decodes a JSON response into out. If out is nil, the response body is
// discarded (still bounded). If the response is non-2xx, attempts to parse
// the OrbiCheck error envelope and returns *APIError.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any, out any, opts ...RequestOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := c.doRaw(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("orbicheck sdk: decode response json: %w", err)
	}
	return nil
}

// ---- errors ----

// APIError is returned for non-2xx responses.
type APIError struct {
	Status    int
	Code      orbierrors.Code
	Message   string
	Retryable bool
	Kind      string
	RequestID string
	TraceID   string
	RawBody   []byte // bounded
}

func (e *APIError) Error() string {
	code := string(e.Code)
	if code == "" {
		code = "unknown"
	}
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("orbicheck api error: status=%d code=%s retryable=%t msg=%s", e.Status, code, e.Retryable, msg)
}

// ---- internal request execution ----

func (c *Client) doRaw(ctx context.Context, method, path string, body any, opts ...RequestOption) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil {
		return nil, errors.New("orbicheck sdk: nil client")
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: DefaultTimeout}
	}
	if c.TenantHeader == "" {
		c.TenantHeader = DefaultTenantHeader
	}
	if c.RequestHeader == "" {
		c.RequestHeader = DefaultRequestHeader
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}

	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("orbicheck sdk: base url required")
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, errors.New("orbicheck sdk: method required")
	}

	p := strings.TrimSpace(path)
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	url := base + p

	cfg := requestCfg{}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}

	if cfg.tenantID == "" {
		if v := ctx.Value(ctxKeyTenantID); v != nil {
			if s, ok := v.(string); ok {
				cfg.tenantID = strings.TrimSpace(s)
			}
		}
		if cfg.tenantID == "" {
			cfg.tenantID = strings.TrimSpace(c.DefaultTenant)
		}
	}
	if cfg.requestID == "" {
		if v := ctx.Value(ctxKeyRequestID); v != nil {
			if s, ok := v.(string); ok {
				cfg.requestID = strings.TrimSpace(s)
			}
		}
	}

	var reqBody io.Reader
	if body != nil && method != http.MethodGet && method != http.MethodHead && method != http.MethodDelete {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("orbicheck sdk: encode request json: %w", err)
		}
		if int64(len(b)) > c.MaxRequestBytes {
			return nil, fmt.Errorf("orbicheck sdk: request body too large (%d>%d)", len(b), c.MaxRequestBytes)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range c.StaticHeaders {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		req.Header.Set(k, strings.TrimSpace(v))
	}
	for k, v := range cfg.headers {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		req.Header.Set(k, strings.TrimSpace(v))
	}

	if cfg.tenantID != "" && c.TenantHeader != "" {
		req.Header.Set(c.TenantHeader, cfg.tenantID)
	}
	if cfg.requestID != "" && c.RequestHeader != "" {
		req.Header.Set(c.RequestHeader, cfg.requestID)
	}
	if cfg.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.apiKey)
	}

	// Trace propagation: prefer an explicit WithSpanContext, else whatever
	// the caller's ctx already carries (see pkg/telemetry.SpanContextFromContext).
	sc := cfg.traceState
	if !cfg.haveTrace {
		if got, ok := telemetry.SpanContextFromContext(ctx); ok {
			sc = got
		}
	}
	if sc.TraceID != "" {
		req.Header.Set("X-Trace-Id", sc.TraceID)
	}
	if sc.SpanID != "" {
		req.Header.Set("X-Span-Id", sc.SpanID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	lr := io.LimitReader(resp.Body, c.MaxResponseBytes+1)
	raw, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > c.MaxResponseBytes {
		return nil, fmt.Errorf("orbicheck sdk: response body too large (%d>%d)", len(raw), c.MaxResponseBytes)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return raw, nil
	}

	return nil, parseErrorEnvelope(resp.StatusCode, raw)
}

type ctxKey string

const (
	ctxKeyTenantID  ctxKey = "tenant_id"
	ctxKeyRequestID ctxKey = "request_id"
)

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
		Kind      string `json:"kind"`
		RequestID string `json:"request_id"`
		TraceID   string `json:"trace_id"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func parseErrorEnvelope(status int, raw []byte) *APIError {
	out := &APIError{
		Status:    status,
		Code:      orbierrors.ServerError,
		Message:   "request failed",
		Retryable: true,
		Kind:      "server",
		RawBody:   raw,
	}

	var env errorEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return out
	}

	if env.Error.Code != "" {
		out.Code = orbierrors.Code(env.Error.Code)
		if meta, ok := orbierrors.Meta(out.Code); ok {
			out.Retryable = meta.Retryable
			out.Kind = meta.Kind
		}
	}
	if env.Error.Message != "" {
		out.Message = env.Error.Message
	}
	if env.Error.Kind != "" {
		out.Kind = env.Error.Kind
	}
	if env.Error.RequestID != "" {
		out.RequestID = env.Error.RequestID
	} else if env.RequestID != "" {
		out.RequestID = env.RequestID
	}
	if env.Error.TraceID != "" {
		out.TraceID = env.Error.TraceID
	}
	if !orbierrors.Known(out.Code) {
		out.Code = orbierrors.ServerError
		out.Retryable = true
		out.Kind = "server"
	}
	return out
}
