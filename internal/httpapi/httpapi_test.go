package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/orbicheck/orbicheck/internal/auth"
	"github.com/orbicheck/orbicheck/internal/cache"
	"github.com/orbicheck/orbicheck/internal/disposable"
	"github.com/orbicheck/orbicheck/internal/eventlog"
	"github.com/orbicheck/orbicheck/internal/validate/email"
	"github.com/orbicheck/orbicheck/pkg/telemetry"
)

var errDBUnreachable = errors.New("db down")

type fakeResolver struct{}

func (f *fakeResolver) HasMX(_ context.Context, _ string) (bool, error)   { return true, nil }
func (f *fakeResolver) HasA(_ context.Context, _ string) (bool, error)    { return false, nil }
func (f *fakeResolver) HasAAAA(_ context.Context, _ string) (bool, error) { return false, nil }

func newTestServer(t *testing.T) (*Server, *auth.SessionProvider) {
	t.Helper()
	sessions, err := auth.NewSessionProvider([]byte("test-secret-test-secret"), 0)
	if err != nil {
		t.Fatalf("NewSessionProvider: %v", err)
	}
	s := &Server{
		Auth:     &auth.Resolver{Sessions: sessions},
		EventLog: eventlog.NewAppendOnly(1000),
	}
	return s, sessions
}

func withSession(t *testing.T, r *http.Request, sessions *auth.SessionProvider, projectID string) {
	t.Helper()
	tok, err := sessions.Issue(projectID, "user-1", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r.AddCookie(&http.Cookie{Name: "orbicheck_session", Value: tok})
}

func TestRulesCatalogIsPublicAndListsCodes(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/rules/catalog", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Codes []map[string]any `json:"codes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Codes) == 0 {
		t.Fatal("expected a non-empty reason code catalogue")
	}
}

func TestValidateEmailRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/validate/email", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rec.Code)
	}
}

func TestValidateEmailWithSessionSucceeds(t *testing.T) {
	s, sessions := newTestServer(t)
	store, err := cache.NewLRUStore(64)
	if err != nil {
		t.Fatalf("NewLRUStore: %v", err)
	}
	s.EmailValidator = email.New(store, disposable.NewSet(), &fakeResolver{})
	router := NewRouter(s, nil)

	body := strings.NewReader(`{"email":"Test@Example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/validate/email", body)
	withSession(t, req, sessions, "tenant-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result email.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Normalized != "test@example.com" {
		t.Fatalf("expected normalized email, got %q", result.Normalized)
	}

	page, err := s.EventLog.List("tenant-1", "", 10)
	if err != nil || len(page.Entries) != 1 {
		t.Fatalf("expected one event-log entry for tenant-1, got %d (err=%v)", len(page.Entries), err)
	}
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

type recordingMeter struct {
	counters map[string]int64
}

func newRecordingMeter() *recordingMeter {
	return &recordingMeter{counters: make(map[string]int64)}
}

func (m *recordingMeter) IncCounter(_ context.Context, name string, delta int64, _ telemetry.Labels) error {
	m.counters[name] += delta
	return nil
}

func (m *recordingMeter) SetGauge(context.Context, string, float64, telemetry.Labels) error {
	return nil
}

func (m *recordingMeter) ObserveHistogram(context.Context, string, float64, []float64, telemetry.Labels) error {
	return nil
}

func TestHealthIsPublicAndReportsComponentStatus(t *testing.T) {
	s, _ := newTestServer(t)
	store, err := cache.NewLRUStore(64)
	if err != nil {
		t.Fatalf("NewLRUStore: %v", err)
	}
	s.Cache = store
	s.DB = &fakePinger{}
	router := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap struct {
		Overall    string `json:"overall"`
		Components []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.Overall != "ok" {
		t.Fatalf("expected overall ok, got %q", snap.Overall)
	}
	if len(snap.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(snap.Components))
	}
}

func TestHealthReportsFatalWhenDatabaseUnreachable(t *testing.T) {
	s, _ := newTestServer(t)
	s.DB = &fakePinger{err: errDBUnreachable}
	router := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when the database is unreachable, got %d", rec.Code)
	}
}

func TestRequestsAreCountedThroughConfiguredMeter(t *testing.T) {
	s, _ := newTestServer(t)
	m := newRecordingMeter()
	s.Meter = m
	router := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/rules/catalog", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.counters["orbicheck_http_requests_total"] != 1 {
		t.Fatalf("expected exactly one recorded request, got %d", m.counters["orbicheck_http_requests_total"])
	}
}

func TestDataLogsRejectsRuntimeOnlyCredential(t *testing.T) {
	s, _ := newTestServer(t)
	router := NewRouter(s, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/data/logs", nil)
	req.Header.Set("Authorization", "HMAC keyId=abc,ts=0,nonce=x,signature=y")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for HMAC credential on a management route, got %d", rec.Code)
	}
}
