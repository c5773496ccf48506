// Package domain contains the canonical models the pipeline normalizes
// raw events into. Rows are keyed by their external identity, so repeated
// upserts of the same source record replace fields instead of accumulating.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// LineItem is one order line as normalized from the provider payload.
type LineItem struct {
	SKU        string  `json:"sku"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

// Order is the canonical order model. Identity is (tenant, source, external id).
type Order struct {
	ID            snowflake.ID                     `json:"id" gorm:"primaryKey"`
	TenantID      snowflake.ID                     `json:"tenant_id" gorm:"not null;uniqueIndex:ux_orders_identity,priority:1;index:ix_orders_tenant_email,priority:1"`
	Source        string                           `json:"source" gorm:"type:text;not null;uniqueIndex:ux_orders_identity,priority:2"`
	ExternalID    string                           `json:"external_id" gorm:"type:text;not null;uniqueIndex:ux_orders_identity,priority:3"`
	CustomerID    *snowflake.ID                    `json:"customer_id" gorm:""`
	CustomerEmail string                           `json:"customer_email" gorm:"type:text;not null;default:'';index:ix_orders_tenant_email,priority:2"`
	LineItems     datatypes.JSONSlice[LineItem]    `json:"line_items" gorm:"type:jsonb"`
	Subtotal      float64                          `json:"subtotal" gorm:"not null;default:0"`
	TotalDiscount float64                          `json:"total_discount" gorm:"not null;default:0"`
	TotalTax      float64                          `json:"total_tax" gorm:"not null;default:0"`
	TotalRevenue  float64                          `json:"total_revenue" gorm:"not null;default:0"`
	Currency      string                           `json:"currency" gorm:"type:text;not null;default:'USD'"`
	OrderDate     time.Time                        `json:"order_date" gorm:"not null;index"`
	CreatedAt     time.Time                        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time                        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Customer is the canonical customer model. Identity is (tenant, source, external id).
type Customer struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID `json:"tenant_id" gorm:"not null;uniqueIndex:ux_customers_identity,priority:1"`
	Source         string       `json:"source" gorm:"type:text;not null;uniqueIndex:ux_customers_identity,priority:2"`
	ExternalID     string       `json:"external_id" gorm:"type:text;not null;uniqueIndex:ux_customers_identity,priority:3"`
	Email          string       `json:"email" gorm:"type:text;not null;default:''"`
	FirstOrderDate time.Time    `json:"first_order_date" gorm:"not null;index"`
	TotalOrders    int          `json:"total_orders" gorm:"not null;default:0"`
	TotalRevenue   float64      `json:"total_revenue" gorm:"not null;default:0"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// AdSpend is one campaign-day of normalized spend. Identity is
// (tenant, source, campaign, day).
type AdSpend struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID     snowflake.ID `json:"tenant_id" gorm:"not null;uniqueIndex:ux_ad_spend_identity,priority:1"`
	Source       string       `json:"source" gorm:"type:text;not null;uniqueIndex:ux_ad_spend_identity,priority:2"`
	CampaignID   string       `json:"campaign_id" gorm:"type:text;not null;uniqueIndex:ux_ad_spend_identity,priority:3"`
	CampaignName string       `json:"campaign_name" gorm:"type:text;not null;default:''"`
	Amount       float64      `json:"amount" gorm:"not null;default:0"`
	Impressions  int64        `json:"impressions" gorm:"not null;default:0"`
	Clicks       int64        `json:"clicks" gorm:"not null;default:0"`
	SpendDate    time.Time    `json:"spend_date" gorm:"not null;uniqueIndex:ux_ad_spend_identity,priority:4;index"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AdSpend) TableName() string { return "ad_spend" }

// Day truncates a timestamp to its UTC calendar day. Canonical date columns
// always hold midnight UTC so equality lookups work on every dialect.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contract is the modeling surface the analytics domain reads from.
type Contract interface {
	OrdersByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]Order, error)
	NewCustomersByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]Customer, error)
	AdSpendByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]AdSpend, error)
}
