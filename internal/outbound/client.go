// Package outbound centralizes the explicit per-call timeouts and
// self-throttling required of every external HTTP collaborator (§5):
// geocoder ≤5s, VIES ≤10s, general HTTP ≤10s, disposable-list fetch
// (unbounded in spec but treated as "general HTTP" here).
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps http.Client with a fixed per-call timeout and a token-bucket
// limiter so a slow or chatty provider cannot be hammered by retries; this
// is separate from the per-tenant fixed-window rate limiter in
// internal/ratelimit, which governs inbound requests, not outbound ones.
type Client struct {
	hc      *http.Client
	limiter *rate.Limiter
}

// New builds a Client with the given per-call timeout and an outbound rate
// of rps requests/second (burst equal to rps, minimum 1).
func New(timeout time.Duration, rps float64) *Client {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// DoJSON issues req (already built by the caller, without a deadline),
// waits for outbound throttling, bounds the request to the client's
// timeout, and decodes a JSON body into out if non-nil.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("outbound: rate wait: %w", err)
	}
	resp, err := c.hc.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("outbound: request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp, fmt.Errorf("outbound: read body: %w", err)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("outbound: decode body: %w", err)
		}
	}
	return resp, nil
}

// Timeouts matches the explicit per-service deadlines from the design notes.
var Timeouts = struct {
	DNS       time.Duration
	Geocoder  time.Duration
	VIES      time.Duration
	General   time.Duration
	Webhook   time.Duration
	Request   time.Duration
}{
	DNS:      5 * time.Second,
	Geocoder: 5 * time.Second,
	VIES:     10 * time.Second,
	General:  10 * time.Second,
	Webhook:  10 * time.Second,
	Request:  10 * time.Second,
}
