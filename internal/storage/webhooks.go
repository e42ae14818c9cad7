package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/orbicheck/orbicheck/internal/webhook"
)

// SubscriptionsFor satisfies webhook.SubscriptionSource: the tenant's
// registered endpoints whose events list contains eventType (or "*").
func (s *Store) SubscriptionsFor(ctx context.Context, tenantID, eventType string) ([]webhook.Subscription, error) {
	rows, err := s.query(ctx, `SELECT id, tenant_id, url, secret, events_json
		FROM webhook_subscriptions WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []webhook.Subscription
	for rows.Next() {
		var sub webhook.Subscription
		var eventsJSON string
		if err := rows.Scan(&sub.ID, &sub.TenantID, &sub.URL, &sub.Secret, &eventsJSON); err != nil {
			return nil, err
		}
		var events []string
		_ = json.Unmarshal([]byte(eventsJSON), &events)
		sub.Events = events
		if subscriptionMatches(events, eventType) {
			out = append(out, sub)
		}
	}
	return out, rows.Err()
}

func subscriptionMatches(events []string, eventType string) bool {
	for _, e := range events {
		if e == "*" || e == eventType || strings.HasSuffix(eventType, "."+strings.TrimSuffix(e, ".*")) {
			return true
		}
	}
	return false
}
