package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/orbicheck/orbicheck/internal/auth"
	"github.com/orbicheck/orbicheck/internal/idempotency"
	"github.com/orbicheck/orbicheck/internal/ratelimit"
	"github.com/orbicheck/orbicheck/pkg/telemetry"
)

type ctxKey int

const (
	ctxKeyAuth ctxKey = iota
)

func authContext(r *http.Request) (auth.Context, bool) {
	v, ok := r.Context().Value(ctxKeyAuth).(auth.Context)
	return v, ok
}

// requireAuth authenticates every request against class, attaching the
// resolved auth.Context for downstream handlers, per §4.9's credential
// detection order (session → Bearer API key/PAT → HMAC).
func requireAuth(resolver *auth.Resolver, class auth.RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				writeError(w, r, http.StatusInternalServerError, "internal_error", "auth not configured")
				return
			}
			actx, err := resolver.Authenticate(r, class)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid credentials")
					return
				}
				writeError(w, r, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyAuth, actx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tenantOf and bucketOf adapt the resolved auth.Context into the keys
// ratelimit.Limiter needs; the bucket is the route's mux template, which
// gorilla/mux exposes via mux.CurrentRoute.
func tenantOf(r *http.Request) string {
	if actx, ok := authContext(r); ok {
		return actx.ProjectID
	}
	return "anonymous"
}

func bucketOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return r.Method + " " + tpl
		}
	}
	return r.Method + " " + r.URL.Path
}

func onRateLimited(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", "request rate limit exceeded")
}

// withIdempotency implements the §5 idempotency-key contract: a repeated
// key with an identical body returns the cached response verbatim; a
// repeated key with a different body is a conflict; a key already
// in-flight is rejected rather than double-processed.
func withIdempotency(store *idempotency.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if store == nil || key == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}
			actx, _ := authContext(r)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, "invalid_request", "could not read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			cached, replay, err := store.Begin(r.Context(), actx.ProjectID, key, body)
			switch {
			case errors.Is(err, idempotency.ErrConflict):
				writeError(w, r, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different request body")
				return
			case errors.Is(err, idempotency.ErrInFlight):
				writeError(w, r, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is already in progress")
				return
			case err != nil:
				writeError(w, r, http.StatusInternalServerError, "internal_error", "idempotency store unavailable")
				return
			}
			if replay {
				w.Header().Set("content-type", "application/json; charset=utf-8")
				w.Header().Set("Idempotency-Replayed", "true")
				_, _ = w.Write(cached)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				_ = store.Complete(r.Context(), actx.ProjectID, key, body, rec.body.Bytes())
			} else {
				_ = store.Release(r.Context(), actx.ProjectID, key)
			}
		})
	}
}

// statusRecorder captures both the status code and body written by the
// wrapped handler so withIdempotency can cache the exact response bytes.
type statusRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.body.Write(b)
	return s.ResponseWriter.Write(b)
}

// recoverer turns a handler panic into a 500 instead of tearing down the
// listener goroutine, matching the teacher's withRequestLogging/withAuth
// middleware-composition style in services/control-plane/coordinator.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logger != nil {
						logger.Error("panic recovered", "panic", rec, "path", r.URL.Path)
					}
					writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// withLogging logs one line per completed request, the way the teacher's
// gateway logs requests around its own handler chain.
func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if logger != nil {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"request_id", r.Header.Get(requestIDHeader),
				)
			}
		})
	}
}

// rateLimited wraps ratelimit.Middleware with this package's tenant/bucket
// keying and error envelope.
func rateLimited(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(l, tenantOf, bucketOf, onRateLimited)
}

// withMetrics records one request counter and one latency observation per
// completed request via m, keyed by route/method/status the same way
// bucketOf keys the rate limiter. m may be nil; telemetry's wrapper
// functions fall back to telemetry.NopMeterInstance.
func withMetrics(m telemetry.Meter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			labels := telemetry.Labels{
				"route":  bucketOf(r),
				"status": strconv.Itoa(rec.status),
			}
			_ = telemetry.IncCounter(m, r.Context(), "orbicheck_http_requests_total", 1, labels)
			_ = telemetry.ObserveHistogram(m, r.Context(), "orbicheck_http_request_duration_seconds",
				time.Since(start).Seconds(), telemetry.DefaultHistogramBuckets(), labels)
		})
	}
}
