package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/growhalo/halo/internal/analytics/aggregation"
	analyticsdomain "github.com/growhalo/halo/internal/analytics/domain"
	analyticsmetrics "github.com/growhalo/halo/internal/analytics/metrics"
	analyticsrepo "github.com/growhalo/halo/internal/analytics/repository"
	"github.com/growhalo/halo/internal/clock"
	"github.com/growhalo/halo/internal/config"
	connectiondomain "github.com/growhalo/halo/internal/connection/domain"
	connectionrepo "github.com/growhalo/halo/internal/connection/repository"
	ingestiondomain "github.com/growhalo/halo/internal/ingestion/domain"
	ingestionrepo "github.com/growhalo/halo/internal/ingestion/repository"
	ingestionservice "github.com/growhalo/halo/internal/ingestion/service"
	modelingdomain "github.com/growhalo/halo/internal/modeling/domain"
	"github.com/growhalo/halo/internal/modeling/processor"
	modelingrepo "github.com/growhalo/halo/internal/modeling/repository"
	"github.com/growhalo/halo/internal/observability"
	tenantdomain "github.com/growhalo/halo/internal/tenant/domain"
	tenantrepo "github.com/growhalo/halo/internal/tenant/repository"
	"github.com/growhalo/halo/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&tenantdomain.Tenant{},
		&connectiondomain.Connection{},
		&ingestiondomain.IngestionBatch{},
		&ingestiondomain.RawEvent{},
		&ingestiondomain.SyncCursor{},
		&modelingdomain.Order{},
		&modelingdomain.Customer{},
		&modelingdomain.AdSpend{},
		&analyticsdomain.DailySummary{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	logger := zap.NewNop()
	fc := clock.NewFakeClock(testNow)

	raw := ingestionrepo.ProvideRawEvents(ingestionrepo.RawEventParams{DB: conn})
	batches := ingestionrepo.ProvideBatches(ingestionrepo.BatchParams{DB: conn})
	cursors := ingestionrepo.ProvideCursors(ingestionrepo.CursorParams{DB: conn})
	summaries := analyticsrepo.ProvideSummaries(analyticsrepo.SummaryParams{DB: conn})
	adSpend := modelingrepo.ProvideAdSpend(modelingrepo.AdSpendParams{DB: conn})

	tenants := tenantrepo.Provide(tenantrepo.Params{DB: conn})
	connections := connectionrepo.Provide(connectionrepo.Params{DB: conn})

	ingestSvc := ingestionservice.NewService(ingestionservice.ServiceParam{
		Log:     logger,
		GenID:   node,
		Batches: batches,
		Raw:     raw,
	})

	proc := processor.NewProcessor(processor.ProcessorParam{
		Log:       logger,
		GenID:     node,
		Ingestion: raw,
		Orders:    modelingrepo.ProvideOrders(modelingrepo.OrderParams{DB: conn}),
		Customers: modelingrepo.ProvideCustomers(modelingrepo.CustomerParams{DB: conn}),
		AdSpend:   adSpend,
	})

	aggregator := aggregation.NewJob(aggregation.JobParam{
		Log:       logger,
		Clock:     fc,
		GenID:     node,
		Modeling:  proc,
		Summaries: summaries,
		Tenants:   tenants,
	})

	metricsSvc := analyticsmetrics.NewService(analyticsmetrics.ServiceParam{
		Log:       logger,
		Clock:     fc,
		Summaries: summaries,
		AdSpend:   adSpend,
	})

	srv := NewServer(ServerParams{
		Gin:         NewEngine(observability.Config{}, nil),
		Cfg:         config.Config{},
		DB:          conn,
		GenID:       node,
		IngestSvc:   ingestSvc,
		Cursors:     cursors,
		Connections: connections,
		Tenants:     tenants,
		Aggregator:  aggregator,
		MetricsSvc:  metricsSvc,
	})
	return srv, conn
}

func seedTenant(t *testing.T, conn *gorm.DB, id snowflake.ID) {
	t.Helper()
	require.NoError(t, conn.Create(&tenantdomain.Tenant{
		ID:        id,
		Name:      "Acme Shop",
		Slug:      fmt.Sprintf("acme-%d", id),
		Plan:      tenantdomain.PlanStarter,
		CreatedAt: testNow,
	}).Error)
}

func doRequest(t *testing.T, srv *Server, method, path string, tenantID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenantID != "" {
		req.Header.Set(tenantHeader, tenantID)
	}

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func shopifyOrderBody(externalID, total string) map[string]any {
	return map[string]any{
		"id":          externalID,
		"total_price": total,
		"created_at":  "2026-03-14T10:00:00Z",
		"line_items":  []any{map[string]any{"sku": "A-1", "quantity": 1}},
	}
}

func TestTenantHeaderIsEnforced(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	cases := []struct {
		name       string
		tenantID   string
		wantStatus int
		wantType   string
	}{
		{name: "missing header", tenantID: "", wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "malformed id", tenantID: "not-a-snowflake", wantStatus: http.StatusBadRequest, wantType: "validation_error"},
		{name: "unknown tenant", tenantID: "999", wantStatus: http.StatusUnauthorized, wantType: "unauthorized"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodGet, "/v1/ingest/batches", tc.tenantID, nil)
			require.Equal(t, tc.wantStatus, w.Code)
			require.Equal(t, tc.wantType, decodeError(t, w).Type)
		})
	}
}

func TestIngestBatchIsIdempotentAcrossRequests(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	body := map[string]any{
		"source": "shopify",
		"events": []any{
			map[string]any{"payload": shopifyOrderBody("1001", "49.90")},
			map[string]any{"payload": shopifyOrderBody("1002", "12.00")},
		},
	}

	w := doRequest(t, srv, http.MethodPost, "/v1/ingest/batch", "101", body)
	require.Equal(t, http.StatusOK, w.Code)

	var first ingestiondomain.IngestionBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Equal(t, 2, first.Accepted)
	require.Equal(t, 0, first.Duplicates)
	require.Equal(t, ingestiondomain.BatchCompleted, first.Status)

	w = doRequest(t, srv, http.MethodPost, "/v1/ingest/batch", "101", body)
	require.Equal(t, http.StatusOK, w.Code)

	var second ingestiondomain.IngestionBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.Equal(t, 0, second.Accepted)
	require.Equal(t, 2, second.Duplicates)

	var stored int64
	require.NoError(t, conn.Model(&ingestiondomain.RawEvent{}).Count(&stored).Error)
	require.EqualValues(t, 2, stored)
}

func TestIngestBatchRejectsUnknownSource(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	body := map[string]any{
		"source": "pinterest",
		"events": []any{map[string]any{"payload": shopifyOrderBody("1001", "49.90")}},
	}

	w := doRequest(t, srv, http.MethodPost, "/v1/ingest/batch", "101", body)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_error", decodeError(t, w).Type)
}

func TestIngestWebhookAcceptsSinglePayload(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	w := doRequest(t, srv, http.MethodPost, "/v1/ingest/webhook/shopify", "101", shopifyOrderBody("2001", "75.00"))
	require.Equal(t, http.StatusOK, w.Code)

	var batch ingestiondomain.IngestionBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Equal(t, 1, batch.TotalEvents)
	require.Equal(t, 1, batch.Accepted)
}

func TestGetBatchUnknownReturns404(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	w := doRequest(t, srv, http.MethodGet, "/v1/ingest/batches/424242", "101", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", decodeError(t, w).Type)
}

func seedCursor(t *testing.T, conn *gorm.DB, tenantID snowflake.ID, cursorID snowflake.ID) {
	t.Helper()

	lastErr := "rate limited by provider"
	require.NoError(t, conn.Create(&connectiondomain.Connection{
		ID:                cursorID + 1,
		TenantID:          tenantID,
		Source:            "shopify",
		ExternalAccountID: fmt.Sprintf("shop-%d", tenantID),
		Status:            connectiondomain.StatusActive,
		CreatedAt:         testNow,
	}).Error)
	require.NoError(t, conn.Create(&ingestiondomain.SyncCursor{
		ID:           cursorID,
		ConnectionID: cursorID + 1,
		TenantID:     tenantID,
		EventType:    ingestiondomain.EventTypeOrder,
		CursorField:  "updated_at",
		CursorValue:  "2026-03-01T00:00:00Z",
		Status:       ingestiondomain.CursorFailed,
		NextSyncAt:   testNow.Add(4 * time.Hour),
		ErrorCount:   3,
		LastError:    &lastErr,
		CreatedAt:    testNow,
	}).Error)
}

func TestTriggerSyncMarksCursorDue(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))
	seedCursor(t, conn, snowflake.ID(101), snowflake.ID(7000))

	w := doRequest(t, srv, http.MethodPost, "/v1/syncs/7000/trigger", "101", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var cursor ingestiondomain.SyncCursor
	require.NoError(t, conn.First(&cursor, "id = ?", snowflake.ID(7000)).Error)
	require.Equal(t, ingestiondomain.CursorIdle, cursor.Status)
	require.False(t, cursor.NextSyncAt.After(time.Now().UTC()))
	// Position survives a manual trigger; only reset clears it.
	require.Equal(t, "2026-03-01T00:00:00Z", cursor.CursorValue)
}

func TestResetSyncClearsPositionAndErrors(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))
	seedCursor(t, conn, snowflake.ID(101), snowflake.ID(7000))

	w := doRequest(t, srv, http.MethodPost, "/v1/syncs/7000/reset", "101", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cursor ingestiondomain.SyncCursor
	require.NoError(t, conn.First(&cursor, "id = ?", snowflake.ID(7000)).Error)
	require.Equal(t, ingestiondomain.CursorIdle, cursor.Status)
	require.Empty(t, cursor.CursorValue)
	require.Zero(t, cursor.ErrorCount)
	require.Nil(t, cursor.LastError)
}

func TestTriggerSyncForeignCursorReadsAsNotFound(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))
	seedTenant(t, conn, snowflake.ID(202))
	seedCursor(t, conn, snowflake.ID(202), snowflake.ID(7000))

	w := doRequest(t, srv, http.MethodPost, "/v1/syncs/7000/trigger", "101", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "not_found", decodeError(t, w).Type)
}

func seedSummary(t *testing.T, conn *gorm.DB, tenantID snowflake.ID, id snowflake.ID, date time.Time, revenue float64, orders int) {
	t.Helper()
	require.NoError(t, conn.Create(&analyticsdomain.DailySummary{
		ID:          id,
		TenantID:    tenantID,
		SummaryDate: date,
		Revenue:     revenue,
		OrdersCount: orders,
		ComputedAt:  testNow,
	}).Error)
}

func TestMetricsSummaryRollsUpCurrentAndPreviousPeriods(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	// Current 7-day window is Mar 9 through Mar 15; previous is Mar 2 through Mar 8.
	seedSummary(t, conn, snowflake.ID(101), 1, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), 100, 2)
	seedSummary(t, conn, snowflake.ID(101), 2, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 50, 1)
	seedSummary(t, conn, snowflake.ID(101), 3, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), 30, 1)

	w := doRequest(t, srv, http.MethodGet, "/v1/analytics/summary?period=last_7_days", "101", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var summary analyticsdomain.MetricsSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Equal(t, 150.0, summary.Current.Revenue)
	require.Equal(t, 3, summary.Current.OrdersCount)
	require.Equal(t, 30.0, summary.Previous.Revenue)
	require.Equal(t, 400.0, summary.Changes["revenue"])
}

func TestMetricsTimeSeriesReturnsRequestedMetrics(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))
	seedSummary(t, conn, snowflake.ID(101), 1, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 50, 1)
	seedSummary(t, conn, snowflake.ID(101), 2, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), 25, 1)

	w := doRequest(t, srv, http.MethodGet,
		"/v1/analytics/timeseries?start_date=2026-03-09&end_date=2026-03-15&metrics=revenue", "101", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Series []analyticsdomain.TimeSeriesPoint `json:"series"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Series, 2)
	require.Equal(t, "2026-03-10", resp.Series[0].Date)
	require.Equal(t, 50.0, resp.Series[0].Metrics["revenue"])
	require.Equal(t, 25.0, resp.Series[1].Metrics["revenue"])
}

func TestMetricsTimeSeriesRejectsUnknownGranularity(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	w := doRequest(t, srv, http.MethodGet,
		"/v1/analytics/timeseries?start_date=2026-03-09&end_date=2026-03-15&granularity=hourly", "101", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_error", decodeError(t, w).Type)
}

func TestRunAggregationRecomputesRequestedRange(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&modelingdomain.Order{
		ID:           9001,
		TenantID:     101,
		Source:       "shopify",
		ExternalID:   "1001",
		TotalRevenue: 80,
		OrderDate:    day,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}).Error)
	require.NoError(t, conn.Create(&modelingdomain.AdSpend{
		ID:         9002,
		TenantID:   101,
		Source:     "meta",
		CampaignID: "c-1",
		Amount:     20,
		SpendDate:  day,
		CreatedAt:  testNow,
	}).Error)

	w := doRequest(t, srv, http.MethodPost, "/v1/analytics/aggregate", "101", map[string]any{
		"start_date": "2026-03-14",
		"end_date":   "2026-03-14",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var summary analyticsdomain.DailySummary
	require.NoError(t, conn.First(&summary, "tenant_id = ? AND summary_date = ?", snowflake.ID(101), day).Error)
	require.Equal(t, 80.0, summary.Revenue)
	require.Equal(t, 1, summary.OrdersCount)
	require.Equal(t, 20.0, summary.AdSpend)
	require.Equal(t, 4.0, summary.Roas)
}

func TestAdSpendBreakdownSharesSumToTotal(t *testing.T) {
	srv, conn := newTestServer(t)
	seedTenant(t, conn, snowflake.ID(101))

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Create(&modelingdomain.AdSpend{
		ID: 1, TenantID: 101, Source: "meta", CampaignID: "c-1", CampaignName: "Spring", Amount: 75, SpendDate: day, CreatedAt: testNow,
	}).Error)
	require.NoError(t, conn.Create(&modelingdomain.AdSpend{
		ID: 2, TenantID: 101, Source: "google", CampaignID: "c-2", CampaignName: "Brand", Amount: 25, SpendDate: day, CreatedAt: testNow,
	}).Error)

	w := doRequest(t, srv, http.MethodGet,
		"/v1/analytics/spend/campaigns?start_date=2026-03-14&end_date=2026-03-14", "101", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Campaigns []analyticsmetrics.CampaignBreakdown `json:"campaigns"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Campaigns, 2)

	var total float64
	for _, c := range resp.Campaigns {
		total += c.PctOfTotal
	}
	require.Equal(t, 100.0, total)
}
