// Package httpapi binds the §6 `/v1` route table to the request envelope
// (auth → rate limit → idempotency → schema validation → handler → event
// log → webhook dispatch) and the validator/dedupe/rules/riskeval
// collaborators, the way the teacher's gateway service wires its own
// mux.Router + middleware stack in services/control-plane.
package httpapi

import (
	"context"
	"time"

	"github.com/orbicheck/orbicheck/internal/auth"
	"github.com/orbicheck/orbicheck/internal/cache"
	"github.com/orbicheck/orbicheck/internal/dedupe"
	"github.com/orbicheck/orbicheck/internal/disposable"
	"github.com/orbicheck/orbicheck/internal/eventlog"
	"github.com/orbicheck/orbicheck/internal/idempotency"
	"github.com/orbicheck/orbicheck/internal/ratelimit"
	"github.com/orbicheck/orbicheck/internal/riskeval"
	"github.com/orbicheck/orbicheck/internal/rules"
	"github.com/orbicheck/orbicheck/internal/validate/address"
	"github.com/orbicheck/orbicheck/internal/validate/email"
	"github.com/orbicheck/orbicheck/internal/validate/phone"
	"github.com/orbicheck/orbicheck/internal/validate/taxid"
	"github.com/orbicheck/orbicheck/internal/webhook"
	"github.com/orbicheck/orbicheck/pkg/telemetry"
)

// Pinger is satisfied by internal/storage.Store; kept narrow so tests can
// supply a fake without dragging in database/sql.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RuleSource resolves a tenant's enabled rule set, compiling on demand.
type RuleSource interface {
	RulesFor(ctx context.Context, tenantID string) ([]rules.Rule, error)
}

// OTPStore resolves a verification id back to its phone.OTPProvider call
// so the verify endpoint can check a code without re-parsing the number.
type OTPStore interface {
	phone.OTPProvider
}

// Server holds every collaborator a `/v1` handler needs. All fields may be
// nil in unit tests that only exercise handlers not touching them.
type Server struct {
	Auth        *auth.Resolver
	RateLimiter *ratelimit.Limiter
	Idempotency *idempotency.Store

	EmailValidator   *email.Validator
	PhoneHint        string
	OTP              OTPStore
	AddressValidator *address.Validator
	Disposable       *disposable.Set

	CustomerDedupe dedupe.CustomerSource
	AddressDedupe  dedupe.AddressSource
	Merger         dedupe.Merger

	RiskEvaluator *riskeval.Evaluator
	RuleEngine    *rules.Engine
	Rules         RuleSource

	// VATClient is the optional VIES lookup; nil means validate/tax-id
	// still returns the format/checksum verdict for VAT numbers, just
	// without the registry check (§4.5: best-effort).
	VATClient taxid.VIESClient

	EventLog *eventlog.AppendOnly
	Webhooks *webhook.Dispatcher

	// ServiceName/Env identify this deployment in the /v1/health snapshot.
	ServiceName string
	Env         string
	DB          Pinger
	Cache       cache.Store

	// Meter records request counters/histograms; nil falls back to
	// telemetry.NopMeterInstance via the telemetry package's own wrappers.
	Meter telemetry.Meter

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
