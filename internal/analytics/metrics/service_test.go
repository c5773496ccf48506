package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/analytics/domain"
	"github.com/growhalo/halo/internal/analytics/repository"
	"github.com/growhalo/halo/internal/clock"
	modelingrepo "github.com/growhalo/halo/internal/modeling/repository"
	"github.com/growhalo/halo/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testTenant = snowflake.ID(600)

func newTestService(t *testing.T, now time.Time) (*Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.DailySummary{}))

	svc := NewService(ServiceParam{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(now),
		Summaries: repository.ProvideSummaries(repository.SummaryParams{DB: conn}),
		AdSpend:   modelingrepo.ProvideAdSpend(modelingrepo.AdSpendParams{DB: conn}),
	})
	return svc, conn
}

var summarySeq int64 = 1

func seedSummary(t *testing.T, conn *gorm.DB, date time.Time, revenue float64, orders int, spend float64) {
	t.Helper()
	summarySeq++
	require.NoError(t, conn.Create(&domain.DailySummary{
		ID:          snowflake.ID(summarySeq),
		TenantID:    testTenant,
		SummaryDate: date,
		Revenue:     revenue,
		OrdersCount: orders,
		AdSpend:     spend,
		ComputedAt:  time.Now().UTC(),
	}).Error)
}

func TestPctChange(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		previous float64
		want     float64
	}{
		{name: "growth", current: 150, previous: 100, want: 50},
		{name: "decline", current: 75, previous: 100, want: -25},
		{name: "zero_baseline_with_activity", current: 10, previous: 0, want: 100},
		{name: "zero_baseline_no_activity", current: 0, previous: 0, want: 0},
		{name: "rounded", current: 1, previous: 3, want: -66.67},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PctChange(tc.current, tc.previous))
		})
	}
}

func TestRollupDerivesFromTotals(t *testing.T) {
	rows := []domain.DailySummary{
		{Revenue: 100, OrdersCount: 2, NewCustomers: 1, AdSpend: 20, Roas: 5},
		{Revenue: 50, OrdersCount: 1, NewCustomers: 1, AdSpend: 30, Roas: 1.6667},
	}

	bucket := Rollup(rows)
	require.Equal(t, 150.0, bucket.Revenue)
	require.Equal(t, 3, bucket.OrdersCount)
	// 150/50, not an average of the daily roas values.
	require.Equal(t, 3.0, bucket.Roas)
	require.Equal(t, 25.0, bucket.Cac)
	require.Equal(t, 50.0, bucket.AvgOrderValue)
}

func TestSummaryComparesAgainstPreviousPeriod(t *testing.T) {
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	svc, conn := newTestService(t, now)

	// Current window (last 7 days incl. today): one row.
	seedSummary(t, conn, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), 200, 4, 40)
	// Previous window: one row.
	seedSummary(t, conn, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 100, 2, 40)
	// Outside both windows.
	seedSummary(t, conn, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 999, 9, 999)

	summary, err := svc.Summary(context.Background(), testTenant, "last_7_days")
	require.NoError(t, err)
	require.Equal(t, 200.0, summary.Current.Revenue)
	require.Equal(t, 100.0, summary.Previous.Revenue)
	require.Equal(t, 100.0, summary.Changes["revenue"])
	require.Equal(t, 100.0, summary.Changes["orders_count"])
	require.Equal(t, 0.0, summary.Changes["ad_spend"])
}

func TestTimeSeriesWeeklyBucketsKeyOnMonday(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, conn := newTestService(t, now)

	// 2026-03-11 is a Wednesday, 2026-03-17 the following Tuesday; both
	// belong to the ISO week starting Monday 2026-03-09.
	seedSummary(t, conn, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), 10, 1, 0)
	seedSummary(t, conn, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), 20, 1, 0)

	points, err := svc.TimeSeries(context.Background(), testTenant,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		domain.GranularityWeekly,
		[]string{"revenue"},
	)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "2026-03-09", points[0].Date)
	require.Equal(t, 30.0, points[0].Metrics["revenue"])
}

func TestTimeSeriesOnlyRequestedMetrics(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, conn := newTestService(t, now)

	seedSummary(t, conn, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), 10, 2, 5)

	points, err := svc.TimeSeries(context.Background(), testTenant,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		domain.GranularityDaily,
		[]string{"revenue", "roas", "not_a_metric"},
	)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "2026-03-11", points[0].Date)
	require.Contains(t, points[0].Metrics, "revenue")
	require.Contains(t, points[0].Metrics, "roas")
	require.NotContains(t, points[0].Metrics, "not_a_metric")

	_, err = svc.TimeSeries(context.Background(), testTenant, now, now, domain.Granularity("hourly"), nil)
	require.Error(t, err)
}

func TestTimeSeriesMonthlyKeys(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	svc, conn := newTestService(t, now)

	seedSummary(t, conn, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), 10, 1, 0)
	seedSummary(t, conn, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), 20, 1, 0)

	points, err := svc.TimeSeries(context.Background(), testTenant,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		domain.GranularityMonthly,
		[]string{"revenue"},
	)
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2026-03", points[0].Date)
	require.Equal(t, "2026-04", points[1].Date)
}
