// Package aggregation recomputes daily summaries from the canonical models.
package aggregation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/analytics/domain"
	"github.com/growhalo/halo/internal/analytics/repository"
	"github.com/growhalo/halo/internal/clock"
	"github.com/growhalo/halo/internal/cloudmetrics"
	modeling "github.com/growhalo/halo/internal/modeling/domain"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	tenantdomain "github.com/growhalo/halo/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type JobParam struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Modeling  modeling.Contract
	Summaries *repository.SummaryRepository
	Tenants   tenantdomain.Repository
}

type Job struct {
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	modeling  modeling.Contract
	summaries *repository.SummaryRepository
	tenants   tenantdomain.Repository
}

func NewJob(p JobParam) *Job {
	return &Job{
		log:       p.Log.Named("analytics.aggregation"),
		clock:     p.Clock,
		genID:     p.GenID,
		modeling:  p.Modeling,
		summaries: p.Summaries,
		tenants:   p.Tenants,
	}
}

// Name identifies the job on the scheduler.
func (j *Job) Name() string { return "aggregate" }

// Run recomputes today's summary for every tenant. A tenant failure is
// logged and skipped; the loop always visits every tenant.
func (j *Job) Run(ctx context.Context) error {
	tenants, err := j.tenants.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}

	today := modeling.Day(j.clock.Now())
	for _, tenant := range tenants {
		if err := j.AggregateForDate(ctx, tenant.ID, today); err != nil {
			cloudmetrics.RecordPipelineError(tenant.ID.String(), "aggregation")
			j.log.Error("tenant aggregation failed",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Time("date", today),
				zap.Error(err),
			)
		}
	}
	return nil
}

// RunForDateRange recomputes one tenant's summaries per calendar day over
// [start, end] inclusive.
func (j *Job) RunForDateRange(ctx context.Context, tenantID snowflake.ID, start, end time.Time) error {
	for day := modeling.Day(start); !day.After(modeling.Day(end)); day = day.AddDate(0, 0, 1) {
		if err := j.AggregateForDate(ctx, tenantID, day); err != nil {
			return fmt.Errorf("aggregate %s: %w", day.Format("2006-01-02"), err)
		}
	}
	return nil
}

// AggregateForDate rebuilds the (tenant, date) summary from scratch.
// Derived metrics come from the day's totals, never from averaging.
func (j *Job) AggregateForDate(ctx context.Context, tenantID snowflake.ID, date time.Time) error {
	day := modeling.Day(date)

	orders, err := j.modeling.OrdersByDate(ctx, tenantID, day)
	if err != nil {
		return fmt.Errorf("orders by date: %w", err)
	}
	newCustomers, err := j.modeling.NewCustomersByDate(ctx, tenantID, day)
	if err != nil {
		return fmt.Errorf("new customers by date: %w", err)
	}
	spendRows, err := j.modeling.AdSpendByDate(ctx, tenantID, day)
	if err != nil {
		return fmt.Errorf("ad spend by date: %w", err)
	}

	var revenue, adSpend float64
	for _, order := range orders {
		revenue += order.TotalRevenue
	}
	for _, row := range spendRows {
		adSpend += row.Amount
	}
	ordersCount := len(orders)
	newCustomerCount := len(newCustomers)

	var roas, cac, avgOrderValue float64
	if adSpend > 0 {
		roas = revenue / adSpend
	}
	if newCustomerCount > 0 {
		cac = adSpend / float64(newCustomerCount)
	}
	if ordersCount > 0 {
		avgOrderValue = revenue / float64(ordersCount)
	}

	summary := &domain.DailySummary{
		ID:            j.genID.Generate(),
		TenantID:      tenantID,
		SummaryDate:   day,
		Revenue:       Round2(revenue),
		OrdersCount:   ordersCount,
		NewCustomers:  newCustomerCount,
		AdSpend:       Round2(adSpend),
		Roas:          Round4(roas),
		Cac:           Round2(cac),
		AvgOrderValue: Round2(avgOrderValue),
		ComputedAt:    j.clock.Now(),
	}
	if err := j.summaries.Upsert(ctx, summary); err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	obsmetrics.Pipeline().AddSummariesWritten(1)
	cloudmetrics.RecordSummariesComputed(tenantID.String(), 1)
	return nil
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds ratio metrics to four places.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
