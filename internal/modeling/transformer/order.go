package transformer

import (
	ingestion "github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/modeling/domain"
)

// Order normalizes an order payload. Money fields default to zero and
// total revenue falls back to subtotal - discount + tax when the payload
// carries no explicit total. Customer linkage is deferred; the processor
// fills customer_id once the customer record exists.
func Order(raw ingestion.RawEventDTO) domain.Order {
	p := raw.Payload

	var lineItems []domain.LineItem
	if rawItems, ok := p["line_items"].([]any); ok {
		lineItems = make([]domain.LineItem, 0, len(rawItems))
		for _, entry := range rawItems {
			item, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			quantity := num(item, "quantity")
			if quantity == 0 {
				quantity = 1
			}
			unitPrice := num(item, "price")
			lineItems = append(lineItems, domain.LineItem{
				SKU:        str(item, "sku"),
				Name:       str(item, "name", "title"),
				Quantity:   int(quantity),
				UnitPrice:  unitPrice,
				TotalPrice: unitPrice * quantity,
			})
		}
	}

	subtotal := num(p, "subtotal_price", "subtotal")
	totalDiscount := num(p, "total_discounts", "total_discount")
	totalTax := num(p, "total_tax")
	totalRevenue := num(p, "total_price", "total_revenue")
	if totalRevenue == 0 {
		totalRevenue = subtotal - totalDiscount + totalTax
	}

	currency := str(p, "currency")
	if currency == "" {
		currency = "USD"
	}

	email := str(p, "email", "customer_email")
	if email == "" {
		if customer, ok := p["customer"].(map[string]any); ok {
			email = str(customer, "email")
		}
	}

	return domain.Order{
		TenantID:      raw.TenantID,
		Source:        string(raw.Source),
		ExternalID:    raw.ExternalID,
		CustomerEmail: email,
		LineItems:     lineItems,
		Subtotal:      subtotal,
		TotalDiscount: totalDiscount,
		TotalTax:      totalTax,
		TotalRevenue:  totalRevenue,
		Currency:      currency,
		OrderDate:     domain.Day(date(p, raw.SourceTimestamp, "created_at")),
	}
}
