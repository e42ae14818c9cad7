// Package webhook implements the §4.12 webhook dispatcher: on every
// event-log write, POST a signed JSON body to each matching per-tenant
// subscription, with bounded exponential-backoff retries.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/orbicheck/orbicheck/internal/reason"
	"github.com/orbicheck/orbicheck/pkg/queue"
)

const signatureHeader = "X-OrbiCheck-Signature"

// maxAttempts and the backoff schedule below satisfy §4.12: "max 5
// attempts, last attempt at most ~30 minutes later".
const maxAttempts = 5

// Subscription is a tenant's registered webhook endpoint.
type Subscription struct {
	ID     string
	TenantID string
	URL    string
	Secret string
	Events []string
}

// Event is one outbound notification, built from an event-log write.
type Event struct {
	TenantID string
	Type     string
	Payload  []byte
}

// SubscriptionSource resolves which subscriptions match an event type for
// a tenant.
type SubscriptionSource interface {
	SubscriptionsFor(ctx context.Context, tenantID, eventType string) ([]Subscription, error)
}

// Poster performs the actual HTTP delivery; cmd/orbicheckd's implementation
// wraps a plain http.Client set to outbound.Timeouts.Webhook.
type Poster interface {
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (status int, err error)
}

// FailureSink records a delivery that exhausted its retry budget, per
// §4.12: "failure emits webhook.send_failed in the originating tenant's
// log".
type FailureSink interface {
	RecordFailure(ctx context.Context, tenantID string, code reason.Code, detail string) error
}

// Dispatcher wires the subscription source, HTTP poster, DLQ, and failure
// sink together.
type Dispatcher struct {
	Subscriptions SubscriptionSource
	Poster        Poster
	DLQ           queue.DLQStore
	Failures      FailureSink

	// NewBackoff builds the retry schedule for one delivery attempt loop;
	// overridable in tests to avoid real sleeps.
	NewBackoff func() backoff.BackOff
}

// New builds a Dispatcher with the production 5-attempt/~30-minute
// exponential schedule.
func New(subs SubscriptionSource, poster Poster, dlq queue.DLQStore, failures FailureSink) *Dispatcher {
	return &Dispatcher{
		Subscriptions: subs,
		Poster:        poster,
		DLQ:           dlq,
		Failures:      failures,
		NewBackoff:    defaultBackoff,
	}
}

func defaultBackoff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Minute
	eb.Multiplier = 4
	eb.MaxInterval = 15 * time.Minute
	eb.MaxElapsedTime = 30 * time.Minute
	return backoff.WithMaxRetries(eb, maxAttempts-1)
}

// Dispatch fans an event out to every matching subscription, delivering
// each independently and best-effort (§4.12).
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	subs, err := d.Subscriptions.SubscriptionsFor(ctx, ev.TenantID, ev.Type)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		d.deliverOne(ctx, sub, ev)
	}
	return nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, sub Subscription, ev Event) {
	env, err := queue.NormalizeEnvelope(queue.Envelope{
		Type:    ev.Type,
		Tenant:  ev.TenantID,
		Payload: ev.Payload,
	})
	if err != nil {
		return
	}

	signature := sign(sub.Secret, ev.Payload)
	headers := map[string]string{
		"Content-Type":   "application/json",
		signatureHeader:  "sha256=" + signature,
	}

	attempt := 0
	op := func() error {
		attempt++
		status, err := d.Poster.Post(ctx, sub.URL, ev.Payload, headers)
		if err != nil {
			return err
		}
		if status < 200 || status >= 300 {
			return backoffableStatusError{status: status}
		}
		return nil
	}

	bo := d.NewBackoff()
	if err := backoff.Retry(op, bo); err != nil {
		d.deadLetter(ctx, sub, env, attempt, err)
	}
}

type backoffableStatusError struct{ status int }

func (e backoffableStatusError) Error() string {
	return "webhook: non-2xx response"
}

func (d *Dispatcher) deadLetter(ctx context.Context, sub Subscription, env queue.Envelope, attempt int, cause error) {
	if d.DLQ != nil {
		rec, err := queue.NewDLQRecord("webhooks", env, attempt, cause.Error(), time.Time{})
		if err == nil {
			_ = d.DLQ.Put(ctx, rec)
		}
	}
	if d.Failures != nil {
		_ = d.Failures.RecordFailure(ctx, sub.TenantID, reason.WebhookSendFailed, cause.Error())
	}
}

// sign computes the HMAC-SHA256 signature over the raw body, hex-encoded.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Marshal builds the JSON payload for an event-log entry, the shape every
// webhook body carries.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
