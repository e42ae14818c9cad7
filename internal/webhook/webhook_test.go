package webhook

import (
	"context"
	"testing"

	"github.com/cenkalti/backoff/v4"

	"github.com/orbicheck/orbicheck/internal/reason"
)

type fakeSubscriptionSource struct {
	subs []Subscription
}

func (f *fakeSubscriptionSource) SubscriptionsFor(_ context.Context, _, _ string) ([]Subscription, error) {
	return f.subs, nil
}

type fakePoster struct {
	calls    int
	failUntil int
	lastHeaders map[string]string
}

func (f *fakePoster) Post(_ context.Context, _ string, _ []byte, headers map[string]string) (int, error) {
	f.calls++
	f.lastHeaders = headers
	if f.calls <= f.failUntil {
		return 500, nil
	}
	return 200, nil
}

type fakeFailureSink struct {
	recorded []reason.Code
}

func (f *fakeFailureSink) RecordFailure(_ context.Context, _ string, code reason.Code, _ string) error {
	f.recorded = append(f.recorded, code)
	return nil
}

func noWaitBackoff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, maxAttempts-1)
}

func TestDispatchSuccessOnFirstAttempt(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []Subscription{{ID: "s1", TenantID: "t1", URL: "http://example.com/hook", Secret: "shh"}}}
	poster := &fakePoster{}
	failures := &fakeFailureSink{}
	d := New(subs, poster, nil, failures)
	d.NewBackoff = noWaitBackoff

	err := d.Dispatch(context.Background(), Event{TenantID: "t1", Type: "order.evaluated", Payload: []byte(`{"a":1}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if poster.calls != 1 {
		t.Fatalf("expected 1 call, got %d", poster.calls)
	}
	if len(failures.recorded) != 0 {
		t.Fatalf("expected no failures recorded, got %v", failures.recorded)
	}
	if poster.lastHeaders[signatureHeader] == "" {
		t.Fatal("expected signature header to be set")
	}
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []Subscription{{ID: "s1", TenantID: "t1", URL: "http://example.com/hook", Secret: "shh"}}}
	poster := &fakePoster{failUntil: 2}
	d := New(subs, poster, nil, &fakeFailureSink{})
	d.NewBackoff = noWaitBackoff

	err := d.Dispatch(context.Background(), Event{TenantID: "t1", Type: "order.evaluated", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if poster.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", poster.calls)
	}
}

func TestDispatchExhaustsRetriesAndRecordsFailure(t *testing.T) {
	subs := &fakeSubscriptionSource{subs: []Subscription{{ID: "s1", TenantID: "t1", URL: "http://example.com/hook", Secret: "shh"}}}
	poster := &fakePoster{failUntil: maxAttempts + 10}
	failures := &fakeFailureSink{}
	d := New(subs, poster, nil, failures)
	d.NewBackoff = noWaitBackoff

	err := d.Dispatch(context.Background(), Event{TenantID: "t1", Type: "order.evaluated", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if poster.calls != maxAttempts {
		t.Fatalf("expected %d calls, got %d", maxAttempts, poster.calls)
	}
	if len(failures.recorded) != 1 || failures.recorded[0] != reason.WebhookSendFailed {
		t.Fatalf("expected one webhook.send_failed, got %v", failures.recorded)
	}
}

func TestSignComputesHMACSHA256(t *testing.T) {
	sig := sign("secret", []byte(`{"a":1}`))
	if len(sig) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(sig))
	}
}
