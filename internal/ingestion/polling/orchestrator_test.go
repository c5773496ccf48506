package polling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/clock"
	connection "github.com/growhalo/halo/internal/connection/domain"
	connrepo "github.com/growhalo/halo/internal/connection/repository"
	"github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/ingestion/poller"
	"github.com/growhalo/halo/internal/ingestion/repository"
	"github.com/growhalo/halo/internal/ingestion/service"
	"github.com/growhalo/halo/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fixture struct {
	orch    *Orchestrator
	conn    *gorm.DB
	clock   *clock.FakeClock
	cursors *repository.CursorRepository
	pollers *poller.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&connection.Connection{},
		&domain.RawEvent{},
		&domain.IngestionBatch{},
		&domain.SyncCursor{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cursors := repository.ProvideCursors(repository.CursorParams{DB: conn})
	pollers := poller.NewRegistry()

	svc := service.NewService(service.ServiceParam{
		Log:     zap.NewNop(),
		GenID:   node,
		Batches: repository.ProvideBatches(repository.BatchParams{DB: conn}),
		Raw:     repository.ProvideRawEvents(repository.RawEventParams{DB: conn}),
	})

	orch := NewOrchestrator(OrchestratorParam{
		Log:         zap.NewNop(),
		Clock:       fake,
		Cursors:     cursors,
		Connections: connrepo.Provide(connrepo.Params{DB: conn}),
		Ingestion:   svc,
		Pollers:     pollers,
	})
	return &fixture{orch: orch, conn: conn, clock: fake, cursors: cursors, pollers: pollers}
}

func (f *fixture) seedConnection(t *testing.T, id snowflake.ID, status connection.Status) {
	t.Helper()
	require.NoError(t, f.conn.Create(&connection.Connection{
		ID:                id,
		TenantID:          snowflake.ID(7),
		Source:            string(domain.SourceShopify),
		ExternalAccountID: "shop-" + id.String(),
		Status:            status,
		CreatedAt:         f.clock.Now(),
	}).Error)
}

func (f *fixture) seedCursor(t *testing.T, id, connID snowflake.ID) *domain.SyncCursor {
	t.Helper()
	cursor := &domain.SyncCursor{
		ID:           id,
		ConnectionID: connID,
		TenantID:     snowflake.ID(7),
		EventType:    domain.EventTypeOrder,
		CursorField:  "updated_at",
		Status:       domain.CursorIdle,
		NextSyncAt:   f.clock.Now().Add(-time.Minute),
		CreatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.conn.Create(cursor).Error)
	return cursor
}

type scriptedPoller struct {
	result poller.PollResult
	err    error
	calls  int
}

func (p *scriptedPoller) Poll(ctx context.Context, conn *connection.Connection, cursor *domain.SyncCursor) (poller.PollResult, error) {
	p.calls++
	return p.result, p.err
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) domain.SyncCursor {
	t.Helper()
	var cursor domain.SyncCursor
	require.NoError(t, f.conn.First(&cursor, "id = ?", id).Error)
	return cursor
}

func TestZeroEventPollAdvancesCursor(t *testing.T) {
	f := newFixture(t)
	f.seedConnection(t, 11, connection.StatusActive)
	f.seedCursor(t, 21, 11)
	f.pollers.Register(domain.SourceShopify, &scriptedPoller{
		result: poller.PollResult{NextCursorValue: "2026-03-01T11:59:00Z"},
	})

	result, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, CycleResult{Due: 1, Polled: 1}, result)

	cursor := f.reload(t, 21)
	require.Equal(t, domain.CursorIdle, cursor.Status)
	require.Equal(t, "2026-03-01T11:59:00Z", cursor.CursorValue)
	require.Equal(t, f.clock.Now().Add(30*time.Second), cursor.NextSyncAt.UTC())
	require.Equal(t, 0, cursor.ErrorCount)
}

func TestPolledEventsAreIngested(t *testing.T) {
	f := newFixture(t)
	f.seedConnection(t, 12, connection.StatusActive)
	f.seedCursor(t, 22, 12)
	f.pollers.Register(domain.SourceShopify, &scriptedPoller{
		result: poller.PollResult{
			Events: []domain.EventInput{{
				EventType:  domain.EventTypeOrder,
				ExternalID: "9001",
				Payload:    datatypes.JSONMap{"id": "9001", "total_price": "15.00"},
			}},
			NextCursorValue: "9001",
		},
	})

	_, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.conn.Model(&domain.RawEvent{}).Where("tenant_id = ?", 7).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestInactiveConnectionIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.seedConnection(t, 13, connection.StatusPaused)
	f.seedCursor(t, 23, 13)
	scripted := &scriptedPoller{}
	f.pollers.Register(domain.SourceShopify, scripted)

	result, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, CycleResult{Due: 1, Polled: 1}, result)
	require.Equal(t, 0, scripted.calls)

	cursor := f.reload(t, 23)
	require.Equal(t, domain.CursorIdle, cursor.Status)
	require.Equal(t, 0, cursor.ErrorCount)
}

func TestPollFailureBacksOff(t *testing.T) {
	f := newFixture(t)
	f.seedConnection(t, 14, connection.StatusActive)
	f.seedCursor(t, 24, 14)
	scripted := &scriptedPoller{err: errors.New("upstream 500")}
	f.pollers.Register(domain.SourceShopify, scripted)

	result, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, CycleResult{Due: 1, Failed: 1}, result)

	cursor := f.reload(t, 24)
	require.Equal(t, domain.CursorFailed, cursor.Status)
	require.Equal(t, 1, cursor.ErrorCount)
	require.NotNil(t, cursor.LastError)
	require.Contains(t, *cursor.LastError, "upstream 500")
	require.Equal(t, f.clock.Now().Add(30*time.Second), cursor.NextSyncAt.UTC())

	// Failed cursors come due again after the backoff window; the second
	// failure doubles the retry delay.
	f.clock.Advance(time.Minute)

	_, err = f.orch.RunCycle(context.Background())
	require.NoError(t, err)

	cursor = f.reload(t, 24)
	require.Equal(t, 2, cursor.ErrorCount)
	require.Equal(t, f.clock.Now().Add(60*time.Second), cursor.NextSyncAt.UTC())
}

func TestRunningCursorIsNotClaimed(t *testing.T) {
	f := newFixture(t)
	f.seedConnection(t, 15, connection.StatusActive)
	cursor := f.seedCursor(t, 25, 15)
	require.NoError(t, f.conn.Model(cursor).Update("status", domain.CursorRunning).Error)

	scripted := &scriptedPoller{}
	f.pollers.Register(domain.SourceShopify, scripted)

	result, err := f.orch.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, CycleResult{}, result)
	require.Equal(t, 0, scripted.calls)
}

func TestBackoffIsCapped(t *testing.T) {
	require.Equal(t, 30*time.Second, backoff(0, 30, 3600))
	require.Equal(t, 60*time.Second, backoff(1, 30, 3600))
	require.Equal(t, 480*time.Second, backoff(4, 30, 3600))
	require.Equal(t, 3600*time.Second, backoff(7, 30, 3600))
	require.Equal(t, 3600*time.Second, backoff(50, 30, 3600))
}
