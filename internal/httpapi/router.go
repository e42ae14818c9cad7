package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbicheck/orbicheck/internal/auth"
	"github.com/orbicheck/orbicheck/pkg/telemetry"
)

// NewRouter builds the full §6 `/v1` route table bound to s, wrapped in
// the request envelope (request id → logging → recovery → auth → rate
// limit → idempotency → handler), the way the teacher composes
// withRequestLogging(withCORS(withAuth(r))) around its own mux.Router in
// services/control-plane/coordinator.
func NewRouter(s *Server, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.StrictSlash(true)

	runtime := runtimeChain(s, logger)
	management := managementChain(s, logger)
	public := publicChain(s, logger)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.Handle("/health", public(http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet)

	v1.Handle("/validate/email", runtime(http.HandlerFunc(s.handleValidateEmail))).Methods(http.MethodPost)
	v1.Handle("/validate/phone", runtime(http.HandlerFunc(s.handleValidatePhone))).Methods(http.MethodPost)
	v1.Handle("/verify/phone", runtime(http.HandlerFunc(s.handleVerifyPhone))).Methods(http.MethodPost)
	v1.Handle("/validate/address", runtime(http.HandlerFunc(s.handleValidateAddress))).Methods(http.MethodPost)
	v1.Handle("/validate/tax-id", runtime(http.HandlerFunc(s.handleValidateTaxID))).Methods(http.MethodPost)
	v1.Handle("/validate/name", runtime(http.HandlerFunc(s.handleValidateName))).Methods(http.MethodPost)
	v1.Handle("/normalize/address", runtime(http.HandlerFunc(s.handleNormalizeAddress))).Methods(http.MethodPost)

	v1.Handle("/dedupe/customer", runtime(http.HandlerFunc(s.handleDedupeCustomer))).Methods(http.MethodPost)
	v1.Handle("/dedupe/address", runtime(http.HandlerFunc(s.handleDedupeAddress))).Methods(http.MethodPost)
	v1.Handle("/dedupe/merge", runtime(http.HandlerFunc(s.handleDedupeMerge))).Methods(http.MethodPost)

	v1.Handle("/orders/evaluate", runtime(http.HandlerFunc(s.handleOrdersEvaluate))).Methods(http.MethodPost)

	v1.Handle("/rules", runtime(http.HandlerFunc(s.handleRulesList))).Methods(http.MethodGet)
	v1.Handle("/rules/catalog", public(http.HandlerFunc(s.handleRulesCatalog))).Methods(http.MethodGet)
	v1.Handle("/rules/catalog/error-codes", public(http.HandlerFunc(s.handleRulesCatalogErrorCodes))).Methods(http.MethodGet)

	v1.Handle("/data/logs", management(http.HandlerFunc(s.handleLogsList))).Methods(http.MethodGet)
	v1.Handle("/data/logs/{id}", management(http.HandlerFunc(s.handleLogsGet))).Methods(http.MethodGet)
	v1.Handle("/data/logs/{id}", management(http.HandlerFunc(s.handleLogsDelete))).Methods(http.MethodDelete)
	v1.Handle("/data/usage", management(http.HandlerFunc(s.handleDataUsage))).Methods(http.MethodGet)
	v1.Handle("/data/usage", management(http.HandlerFunc(s.handleDataUsageDelete))).Methods(http.MethodDelete)

	if pm, ok := s.Meter.(*telemetry.PrometheusMeter); ok && pm.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(pm.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

// runtimeChain wraps a handler with the full runtime-credential envelope
// (§4.9 RouteRuntime: session, PAT, API key, or HMAC).
func runtimeChain(s *Server, logger *slog.Logger) func(http.Handler) http.Handler {
	return chain(
		RequestID,
		withLogging(logger),
		withMetrics(s.Meter),
		recoverer(logger),
		requireAuth(s.Auth, auth.RouteRuntime),
		rateLimited(s.RateLimiter),
		withIdempotency(s.Idempotency),
	)
}

// managementChain wraps a handler with the §4.9 RouteManagement envelope
// (session or PAT only) and no idempotency store, since GET/DELETE on
// /v1/data aren't replay-cached mutations.
func managementChain(s *Server, logger *slog.Logger) func(http.Handler) http.Handler {
	return chain(
		RequestID,
		withLogging(logger),
		withMetrics(s.Meter),
		recoverer(logger),
		requireAuth(s.Auth, auth.RouteManagement),
		rateLimited(s.RateLimiter),
	)
}

// publicChain serves read-only catalogue data with no auth requirement.
func publicChain(s *Server, logger *slog.Logger) func(http.Handler) http.Handler {
	return chain(
		RequestID,
		withLogging(logger),
		withMetrics(s.Meter),
		recoverer(logger),
	)
}

// chain composes middleware left-to-right: chain(a, b, c)(h) runs
// a(b(c(h))), i.e. a observes the request first.
func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}
