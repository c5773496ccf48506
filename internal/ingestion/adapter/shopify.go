package adapter

import (
	"time"

	"github.com/growhalo/halo/internal/ingestion/domain"
)

// shopifyAdapter handles both order and customer webhooks, which arrive on
// the same topic-less intake path. Shape detection precedence:
//
//  1. line_items or total_price present            -> order
//  2. email present and line_items absent          -> customer
//  3. explicit event_type field                    -> as stated
//  4. otherwise                                    -> order
type shopifyAdapter struct{}

func (shopifyAdapter) ValidateAndExtract(payload map[string]any) (domain.EventInput, error) {
	eventType := detectShopifyEventType(payload)

	id := stringField(payload, "id")
	createdAt, ok := timeField(payload, "created_at")
	if id == "" || !ok {
		return domain.EventInput{}, validationErrorf("shopify %s missing id or created_at", eventType)
	}

	return domain.EventInput{
		ExternalID:      id,
		EventType:       eventType,
		Payload:         payload,
		SourceTimestamp: createdAt,
	}, nil
}

func detectShopifyEventType(payload map[string]any) domain.EventType {
	if _, ok := payload["line_items"]; ok {
		return domain.EventTypeOrder
	}
	if _, ok := payload["total_price"]; ok {
		return domain.EventTypeOrder
	}
	if _, ok := payload["email"]; ok {
		return domain.EventTypeCustomer
	}
	if raw, ok := payload["event_type"].(string); ok {
		switch domain.EventType(raw) {
		case domain.EventTypeOrder, domain.EventTypeCustomer, domain.EventTypeAdSpend:
			return domain.EventType(raw)
		}
	}
	return domain.EventTypeOrder
}

func timeField(payload map[string]any, key string) (time.Time, bool) {
	raw, ok := payload[key].(string)
	if !ok || raw == "" {
		return time.Time{}, false
	}
	return parseTime(raw)
}

func parseTime(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
