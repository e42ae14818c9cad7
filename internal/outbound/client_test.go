package outbound

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(time.Second, 100)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := c.DoJSON(context.Background(), req, &out)
	if err != nil {
		t.Fatalf("do json: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !out.OK {
		t.Fatalf("expected decoded body ok=true")
	}
}

func TestDoJSONRespectsOutboundRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(time.Second, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	// Exhaust the single-token bucket, then a second immediate call under a
	// tight deadline should fail waiting for the limiter rather than hang.
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := c.DoJSON(context.Background(), req, nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := c.DoJSON(ctx, req2, nil); err == nil {
		t.Fatalf("expected second call to be throttled under a short deadline")
	}
}
