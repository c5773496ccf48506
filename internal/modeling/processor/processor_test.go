package processor

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	ingestion "github.com/growhalo/halo/internal/ingestion/domain"
	ingestionrepo "github.com/growhalo/halo/internal/ingestion/repository"
	"github.com/growhalo/halo/internal/modeling/domain"
	"github.com/growhalo/halo/internal/modeling/repository"
	"github.com/growhalo/halo/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const testTenant = snowflake.ID(77)

func newTestProcessor(t *testing.T) (*Processor, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&ingestion.RawEvent{},
		&domain.Order{},
		&domain.Customer{},
		&domain.AdSpend{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	proc := NewProcessor(ProcessorParam{
		Log:       zap.NewNop(),
		GenID:     node,
		Ingestion: ingestionrepo.ProvideRawEvents(ingestionrepo.RawEventParams{DB: conn}),
		Orders:    repository.ProvideOrders(repository.OrderParams{DB: conn}),
		Customers: repository.ProvideCustomers(repository.CustomerParams{DB: conn}),
		AdSpend:   repository.ProvideAdSpend(repository.AdSpendParams{DB: conn}),
	})
	return proc, conn
}

var rawSeq int64 = 1000

func seedRawEvent(t *testing.T, conn *gorm.DB, eventType ingestion.EventType, externalID string, payload datatypes.JSONMap) ingestion.RawEvent {
	t.Helper()
	rawSeq++
	event := ingestion.RawEvent{
		ID:              snowflake.ID(rawSeq),
		TenantID:        testTenant,
		Source:          ingestion.SourceShopify,
		EventType:       eventType,
		ExternalID:      externalID,
		IdempotencyKey:  ingestion.IdempotencyKey(ingestion.SourceShopify, eventType, externalID),
		Payload:         payload,
		Status:          ingestion.RawEventAccepted,
		SourceTimestamp: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		ReceivedAt:      time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&event).Error)
	return event
}

func TestProcessingIsIdempotent(t *testing.T) {
	proc, conn := newTestProcessor(t)
	ctx := context.Background()

	seedRawEvent(t, conn, ingestion.EventTypeOrder, "5001", datatypes.JSONMap{
		"total_price": "97.20",
		"email":       "a@example.com",
		"created_at":  "2026-03-10T08:00:00Z",
	})
	require.NoError(t, proc.Run(ctx))

	var first domain.Order
	require.NoError(t, conn.Where("tenant_id = ?", testTenant).First(&first).Error)
	require.Equal(t, 97.2, first.TotalRevenue)

	// Replay the same event, as a crash between upsert and the processed
	// mark would.
	require.NoError(t, conn.Model(&ingestion.RawEvent{}).
		Where("external_id = ?", "5001").
		Update("processed_at", nil).Error)
	require.NoError(t, proc.Run(ctx))

	var orders []domain.Order
	require.NoError(t, conn.Where("tenant_id = ?", testTenant).Find(&orders).Error)
	require.Len(t, orders, 1)
	require.Equal(t, first.ID, orders[0].ID)
	require.Equal(t, 97.2, orders[0].TotalRevenue)
}

func TestMalformedEventDoesNotBlockBatch(t *testing.T) {
	proc, conn := newTestProcessor(t)
	ctx := context.Background()

	bad := seedRawEvent(t, conn, ingestion.EventType("subscription"), "6001", datatypes.JSONMap{})
	seedRawEvent(t, conn, ingestion.EventTypeOrder, "6002", datatypes.JSONMap{
		"total_price": "10.00",
	})

	require.NoError(t, proc.Run(ctx))

	var rejected ingestion.RawEvent
	require.NoError(t, conn.First(&rejected, "id = ?", bad.ID).Error)
	require.Equal(t, ingestion.RawEventRejected, rejected.Status)
	require.NotNil(t, rejected.FailureReason)
	require.Contains(t, *rejected.FailureReason, "unknown event type")

	var count int64
	require.NoError(t, conn.Model(&domain.Order{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCustomerUpsertLinksOrders(t *testing.T) {
	proc, conn := newTestProcessor(t)
	ctx := context.Background()

	seedRawEvent(t, conn, ingestion.EventTypeOrder, "7001", datatypes.JSONMap{
		"total_price": "30.00",
		"email":       "link@example.com",
	})
	require.NoError(t, proc.Run(ctx))

	var order domain.Order
	require.NoError(t, conn.Where("external_id = ?", "7001").First(&order).Error)
	require.Nil(t, order.CustomerID)

	seedRawEvent(t, conn, ingestion.EventTypeCustomer, "c-9", datatypes.JSONMap{
		"email":        "link@example.com",
		"orders_count": float64(1),
		"total_spent":  "30.00",
	})
	require.NoError(t, proc.Run(ctx))

	var customer domain.Customer
	require.NoError(t, conn.Where("external_id = ?", "c-9").First(&customer).Error)

	require.NoError(t, conn.Where("external_id = ?", "7001").First(&order).Error)
	require.NotNil(t, order.CustomerID)
	require.Equal(t, customer.ID, *order.CustomerID)
}

func TestCustomerFirstOrderDateOnlyMovesEarlier(t *testing.T) {
	proc, conn := newTestProcessor(t)
	ctx := context.Background()

	seedRawEvent(t, conn, ingestion.EventTypeCustomer, "c-20", datatypes.JSONMap{
		"email":            "d@example.com",
		"first_order_date": "2026-01-10",
	})
	require.NoError(t, proc.Run(ctx))

	// A later delivery with a later first-order date must not move it forward.
	rawSeq++
	require.NoError(t, conn.Create(&ingestion.RawEvent{
		ID:             snowflake.ID(rawSeq),
		TenantID:       testTenant,
		Source:         ingestion.SourceShopify,
		EventType:      ingestion.EventTypeCustomer,
		ExternalID:     "c-20",
		IdempotencyKey: "replay:c-20",
		Payload: datatypes.JSONMap{
			"email":            "d@example.com",
			"first_order_date": "2026-02-01",
		},
		Status:          ingestion.RawEventAccepted,
		SourceTimestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		ReceivedAt:      time.Now().UTC(),
	}).Error)
	require.NoError(t, proc.Run(ctx))

	var customer domain.Customer
	require.NoError(t, conn.Where("external_id = ?", "c-20").First(&customer).Error)
	require.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), customer.FirstOrderDate.UTC())
}
