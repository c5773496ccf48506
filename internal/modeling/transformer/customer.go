package transformer

import (
	ingestion "github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/modeling/domain"
)

// Customer normalizes a customer payload. Counters come straight from the
// payload, never from counting our own rows; re-running the same event
// reproduces the identical record.
func Customer(raw ingestion.RawEventDTO) domain.Customer {
	p := raw.Payload

	return domain.Customer{
		TenantID:       raw.TenantID,
		Source:         string(raw.Source),
		ExternalID:     raw.ExternalID,
		Email:          str(p, "email"),
		FirstOrderDate: domain.Day(date(p, raw.SourceTimestamp, "first_order_date", "created_at")),
		TotalOrders:    int(num(p, "orders_count", "total_orders")),
		TotalRevenue:   num(p, "total_spent", "total_revenue"),
	}
}
