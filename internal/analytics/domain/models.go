// Package domain contains the derived analytics models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DailySummary holds one tenant-day of aggregated metrics. The aggregation
// job recomputes the whole row from canonical models; values are never
// incremented in place.
type DailySummary struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID      snowflake.ID `json:"tenant_id" gorm:"not null;uniqueIndex:ux_daily_summaries_tenant_date,priority:1"`
	SummaryDate   time.Time    `json:"summary_date" gorm:"not null;uniqueIndex:ux_daily_summaries_tenant_date,priority:2"`
	Revenue       float64      `json:"revenue" gorm:"not null;default:0"`
	OrdersCount   int          `json:"orders_count" gorm:"not null;default:0"`
	NewCustomers  int          `json:"new_customers" gorm:"not null;default:0"`
	AdSpend       float64      `json:"ad_spend" gorm:"not null;default:0"`
	Roas          float64      `json:"roas" gorm:"not null;default:0"`
	Cac           float64      `json:"cac" gorm:"not null;default:0"`
	AvgOrderValue float64      `json:"avg_order_value" gorm:"not null;default:0"`
	ComputedAt    time.Time    `json:"computed_at" gorm:"not null"`
}

// TableName sets the database table name.
func (DailySummary) TableName() string { return "daily_summaries" }

// MetricsBucket is one rolled-up window of summaries with derived metrics
// recomputed from the window totals.
type MetricsBucket struct {
	Revenue       float64 `json:"revenue"`
	OrdersCount   int     `json:"orders_count"`
	NewCustomers  int     `json:"new_customers"`
	AdSpend       float64 `json:"ad_spend"`
	Roas          float64 `json:"roas"`
	Cac           float64 `json:"cac"`
	AvgOrderValue float64 `json:"avg_order_value"`
}

// MetricsSummary compares the current period against the previous one.
type MetricsSummary struct {
	Current  MetricsBucket      `json:"current"`
	Previous MetricsBucket      `json:"previous"`
	Changes  map[string]float64 `json:"changes"`
}

// TimeSeriesPoint is one bucket of a time-series query; only requested
// metrics are populated.
type TimeSeriesPoint struct {
	Date    string             `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
}

type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
	GranularityMonthly Granularity = "monthly"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return true
	}
	return false
}
