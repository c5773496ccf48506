package transformer

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ingestion "github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/stretchr/testify/require"
)

func rawEvent(source ingestion.Source, eventType ingestion.EventType, payload map[string]any) ingestion.RawEventDTO {
	return ingestion.RawEventDTO{
		ID:              snowflake.ID(1),
		TenantID:        snowflake.ID(9),
		Source:          source,
		EventType:       eventType,
		ExternalID:      "ext-1",
		Payload:         payload,
		SourceTimestamp: time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC),
	}
}

func TestOrderTransformLineItemsAndTotals(t *testing.T) {
	order := Order(rawEvent(ingestion.SourceShopify, ingestion.EventTypeOrder, map[string]any{
		"subtotal_price":  "100.00",
		"total_discounts": "10.00",
		"total_tax":       "7.20",
		"total_price":     "97.20",
		"currency":        "EUR",
		"email":           "buyer@example.com",
		"created_at":      "2026-03-05T09:00:00Z",
		"line_items": []any{
			map[string]any{"sku": "A-1", "title": "Widget", "price": "25.00", "quantity": float64(4)},
			map[string]any{"sku": "B-2", "name": "Gadget", "price": float64(0)},
		},
	}))

	require.Equal(t, 100.0, order.Subtotal)
	require.Equal(t, 97.2, order.TotalRevenue)
	require.Equal(t, "EUR", order.Currency)
	require.Equal(t, "buyer@example.com", order.CustomerEmail)
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), order.OrderDate)

	require.Len(t, order.LineItems, 2)
	require.Equal(t, "Widget", order.LineItems[0].Name)
	require.Equal(t, 4, order.LineItems[0].Quantity)
	require.Equal(t, 100.0, order.LineItems[0].TotalPrice)
	// Quantity defaults to 1 when absent.
	require.Equal(t, 1, order.LineItems[1].Quantity)
}

func TestOrderTransformRevenueFallback(t *testing.T) {
	order := Order(rawEvent(ingestion.SourceShopify, ingestion.EventTypeOrder, map[string]any{
		"subtotal":       float64(50),
		"total_discount": float64(5),
		"total_tax":      float64(3),
	}))

	require.Equal(t, 48.0, order.TotalRevenue)
	require.Equal(t, "USD", order.Currency)
	// No date in payload: source timestamp day wins.
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), order.OrderDate)
}

func TestOrderTransformNestedCustomerEmail(t *testing.T) {
	order := Order(rawEvent(ingestion.SourceShopify, ingestion.EventTypeOrder, map[string]any{
		"total_price": "10.00",
		"customer":    map[string]any{"email": "nested@example.com"},
	}))

	require.Equal(t, "nested@example.com", order.CustomerEmail)
	require.Nil(t, order.CustomerID)
}

func TestCustomerTransform(t *testing.T) {
	customer := Customer(rawEvent(ingestion.SourceShopify, ingestion.EventTypeCustomer, map[string]any{
		"email":            "jo@example.com",
		"first_order_date": "2026-01-15",
		"orders_count":     float64(3),
		"total_spent":      "149.50",
	}))

	require.Equal(t, "jo@example.com", customer.Email)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), customer.FirstOrderDate)
	require.Equal(t, 3, customer.TotalOrders)
	require.Equal(t, 149.5, customer.TotalRevenue)
}

func TestAdSpendTransformMetaCurrencyUnits(t *testing.T) {
	spend := AdSpend(rawEvent(ingestion.SourceMeta, ingestion.EventTypeAdSpend, map[string]any{
		"campaign_id":   "c-1",
		"campaign_name": "Spring",
		"spend":         "50.00",
		"impressions":   float64(1000),
		"clicks":        float64(40),
		"date_start":    "2026-03-05",
	}))

	require.Equal(t, 50.0, spend.Amount)
	require.Equal(t, int64(1000), spend.Impressions)
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), spend.SpendDate)
}

func TestAdSpendTransformGoogleMicros(t *testing.T) {
	spend := AdSpend(rawEvent(ingestion.SourceGoogle, ingestion.EventTypeAdSpend, map[string]any{
		"campaign_id": "c-2",
		"cost_micros": float64(12_340_000),
		"date":        "2026-03-05",
	}))

	require.Equal(t, 12.34, spend.Amount)
}

func TestAdSpendTransformAmountFallback(t *testing.T) {
	spend := AdSpend(rawEvent(ingestion.SourceGoogle, ingestion.EventTypeAdSpend, map[string]any{
		"campaign_id": "c-3",
		"amount":      float64(7.5),
		"date":        "2026-03-05",
	}))

	require.Equal(t, 7.5, spend.Amount)
}
