package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/ingestion/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertResult reports the conflict outcome of a bulk insert.
type InsertResult struct {
	Accepted   int
	Duplicates int
}

// RawEventRepository owns the append-only raw event store and implements the
// contract the modeling domain consumes.
type RawEventRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

type RawEventParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideRawEvents(p RawEventParams) *RawEventRepository {
	return &RawEventRepository{db: p.DB, clock: func() time.Time { return time.Now().UTC() }}
}

// BulkInsert appends events, skipping rows whose (tenant, idempotency key)
// already exists. Duplicates are an expected outcome, not an error.
func (r *RawEventRepository) BulkInsert(ctx context.Context, events []domain.RawEvent) (InsertResult, error) {
	if len(events) == 0 {
		return InsertResult{}, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&events)
	if tx.Error != nil {
		return InsertResult{}, tx.Error
	}

	accepted := int(tx.RowsAffected)
	return InsertResult{Accepted: accepted, Duplicates: len(events) - accepted}, nil
}

func (r *RawEventRepository) UnprocessedEvents(ctx context.Context, q domain.UnprocessedQuery) ([]domain.RawEventDTO, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	stmt := r.db.WithContext(ctx).
		Model(&domain.RawEvent{}).
		Where("status = ?", domain.RawEventAccepted).
		Where("processed_at IS NULL")
	if q.EventType != "" {
		stmt = stmt.Where("event_type = ?", q.EventType)
	}

	var rows []domain.RawEvent
	if err := stmt.Order("received_at asc, id asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.RawEventDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RawEventDTO{
			ID:              row.ID,
			TenantID:        row.TenantID,
			ConnectionID:    row.ConnectionID,
			Source:          row.Source,
			EventType:       row.EventType,
			ExternalID:      row.ExternalID,
			Payload:         row.Payload,
			SourceTimestamp: row.SourceTimestamp,
		})
	}
	return out, nil
}

func (r *RawEventRepository) MarkProcessed(ctx context.Context, rawEventID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE raw_events SET processed_at = ? WHERE id = ?`,
		r.clock(),
		rawEventID,
	).Error
}

func (r *RawEventRepository) MarkFailed(ctx context.Context, rawEventID snowflake.ID, reason string) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE raw_events SET status = ?, failure_reason = ?, processed_at = ? WHERE id = ?`,
		domain.RawEventRejected,
		reason,
		r.clock(),
		rawEventID,
	).Error
}

// CountUnprocessed groups pending work by source for the status endpoint.
func (r *RawEventRepository) CountUnprocessed(ctx context.Context, tenantID snowflake.ID) (map[string]int64, error) {
	type row struct {
		Source string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&domain.RawEvent{}).
		Select("source, count(*) as count").
		Where("tenant_id = ?", tenantID).
		Where("status = ?", domain.RawEventAccepted).
		Where("processed_at IS NULL").
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Source] = r.Count
	}
	return out, nil
}
