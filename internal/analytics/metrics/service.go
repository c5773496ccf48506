// Package metrics is the read side over daily summaries.
package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/analytics/aggregation"
	"github.com/growhalo/halo/internal/analytics/domain"
	"github.com/growhalo/halo/internal/analytics/repository"
	"github.com/growhalo/halo/internal/clock"
	modeling "github.com/growhalo/halo/internal/modeling/domain"
	modelingrepo "github.com/growhalo/halo/internal/modeling/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Summaries *repository.SummaryRepository
	AdSpend   *modelingrepo.AdSpendRepository
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	summaries *repository.SummaryRepository
	adSpend   *modelingrepo.AdSpendRepository
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:       p.Log.Named("analytics.metrics"),
		clock:     p.Clock,
		summaries: p.Summaries,
		adSpend:   p.AdSpend,
	}
}

// Summary rolls up the period and the equal-length previous period
// immediately preceding it, with percentage changes per metric.
func (s *Service) Summary(ctx context.Context, tenantID snowflake.ID, period string) (*domain.MetricsSummary, error) {
	currentStart, currentEnd, previousStart, previousEnd := resolvePeriod(s.clock.Now(), period)

	currentRows, err := s.summaries.GetByDateRange(ctx, tenantID, currentStart, currentEnd)
	if err != nil {
		return nil, err
	}
	previousRows, err := s.summaries.GetByDateRange(ctx, tenantID, previousStart, previousEnd)
	if err != nil {
		return nil, err
	}

	current := Rollup(currentRows)
	previous := Rollup(previousRows)

	return &domain.MetricsSummary{
		Current:  current,
		Previous: previous,
		Changes: map[string]float64{
			"revenue":         PctChange(current.Revenue, previous.Revenue),
			"orders_count":    PctChange(float64(current.OrdersCount), float64(previous.OrdersCount)),
			"new_customers":   PctChange(float64(current.NewCustomers), float64(previous.NewCustomers)),
			"ad_spend":        PctChange(current.AdSpend, previous.AdSpend),
			"roas":            PctChange(current.Roas, previous.Roas),
			"cac":             PctChange(current.Cac, previous.Cac),
			"avg_order_value": PctChange(current.AvgOrderValue, previous.AvgOrderValue),
		},
	}, nil
}

// TimeSeries buckets summaries by granularity and emits only the requested
// metrics per point. Weekly buckets key on the ISO week's Monday; monthly
// buckets on year-month.
func (s *Service) TimeSeries(ctx context.Context, tenantID snowflake.ID, start, end time.Time, granularity domain.Granularity, metricNames []string) ([]domain.TimeSeriesPoint, error) {
	if !granularity.Valid() {
		return nil, fmt.Errorf("invalid granularity %q", granularity)
	}

	rows, err := s.summaries.GetByDateRange(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]domain.DailySummary{}
	keys := make([]string, 0)
	for _, row := range rows {
		key := bucketKey(row.SummaryDate, granularity)
		if _, seen := grouped[key]; !seen {
			keys = append(keys, key)
		}
		grouped[key] = append(grouped[key], row)
	}
	// Rows arrive date-ascending, so first-seen order is chronological.

	points := make([]domain.TimeSeriesPoint, 0, len(keys))
	for _, key := range keys {
		rolled := Rollup(grouped[key])
		values := map[string]float64{}
		for _, name := range metricNames {
			if v, ok := metricValue(rolled, name); ok {
				values[name] = v
			}
		}
		points = append(points, domain.TimeSeriesPoint{Date: key, Metrics: values})
	}
	return points, nil
}

// AdSpendBreakdown sums spend per campaign over the range, with each
// campaign's share of the total.
type CampaignBreakdown struct {
	modelingrepo.CampaignSpend
	PctOfTotal float64 `json:"pct_of_total"`
}

func (s *Service) AdSpendBreakdown(ctx context.Context, tenantID snowflake.ID, start, end time.Time) ([]CampaignBreakdown, error) {
	rows, err := s.adSpend.BreakdownByCampaign(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, row := range rows {
		total += row.Amount
	}

	out := make([]CampaignBreakdown, 0, len(rows))
	for _, row := range rows {
		pct := 0.0
		if total > 0 {
			pct = aggregation.Round2(row.Amount / total * 100)
		}
		out = append(out, CampaignBreakdown{CampaignSpend: row, PctOfTotal: pct})
	}
	return out, nil
}

// resolvePeriod maps a period label onto the current window ending today
// and the previous window of identical length immediately before it.
func resolvePeriod(now time.Time, period string) (currentStart, currentEnd, previousStart, previousEnd time.Time) {
	days := 30
	switch period {
	case "last_7_days":
		days = 7
	case "last_14_days":
		days = 14
	case "last_30_days":
		days = 30
	case "last_90_days":
		days = 90
	}

	today := modeling.Day(now)
	currentEnd = today
	currentStart = today.AddDate(0, 0, -(days - 1))
	previousEnd = currentStart.AddDate(0, 0, -1)
	previousStart = previousEnd.AddDate(0, 0, -(days - 1))
	return currentStart, currentEnd, previousStart, previousEnd
}

// Rollup sums a window of summaries and re-derives ratio metrics from the
// window totals, never by averaging daily values.
func Rollup(rows []domain.DailySummary) domain.MetricsBucket {
	var revenue, adSpend float64
	var ordersCount, newCustomers int
	for _, row := range rows {
		revenue += row.Revenue
		adSpend += row.AdSpend
		ordersCount += row.OrdersCount
		newCustomers += row.NewCustomers
	}

	var roas, cac, avgOrderValue float64
	if adSpend > 0 {
		roas = revenue / adSpend
	}
	if newCustomers > 0 {
		cac = adSpend / float64(newCustomers)
	}
	if ordersCount > 0 {
		avgOrderValue = revenue / float64(ordersCount)
	}

	return domain.MetricsBucket{
		Revenue:       aggregation.Round2(revenue),
		OrdersCount:   ordersCount,
		NewCustomers:  newCustomers,
		AdSpend:       aggregation.Round2(adSpend),
		Roas:          aggregation.Round4(roas),
		Cac:           aggregation.Round2(cac),
		AvgOrderValue: aggregation.Round2(avgOrderValue),
	}
}

// PctChange returns the percentage change rounded to 2dp. Against a zero
// baseline the change is 100 when anything appeared, else 0.
func PctChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return math.Round((current-previous)/previous*10000) / 100
}

func bucketKey(date time.Time, granularity domain.Granularity) string {
	day := modeling.Day(date)
	switch granularity {
	case domain.GranularityWeekly:
		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return day.AddDate(0, 0, -(weekday - 1)).Format("2006-01-02")
	case domain.GranularityMonthly:
		return day.Format("2006-01")
	default:
		return day.Format("2006-01-02")
	}
}

func metricValue(bucket domain.MetricsBucket, name string) (float64, bool) {
	switch name {
	case "revenue":
		return bucket.Revenue, true
	case "orders_count":
		return float64(bucket.OrdersCount), true
	case "new_customers":
		return float64(bucket.NewCustomers), true
	case "ad_spend":
		return bucket.AdSpend, true
	case "roas":
		return bucket.Roas, true
	case "cac":
		return bucket.Cac, true
	case "avg_order_value":
		return bucket.AvgOrderValue, true
	}
	return 0, false
}
