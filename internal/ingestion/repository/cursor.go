package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/ingestion/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type CursorRepository struct {
	db *gorm.DB
}

type CursorParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideCursors(p CursorParams) *CursorRepository {
	return &CursorRepository{db: p.DB}
}

func (r *CursorRepository) FindDue(ctx context.Context, now time.Time) ([]domain.SyncCursor, error) {
	var cursors []domain.SyncCursor
	err := r.db.WithContext(ctx).
		Model(&domain.SyncCursor{}).
		Where("status IN ?", []domain.CursorStatus{domain.CursorIdle, domain.CursorFailed}).
		Where("next_sync_at <= ?", now).
		Order("next_sync_at asc, id asc").
		Find(&cursors).Error
	if err != nil {
		return nil, err
	}
	return cursors, nil
}

// Claim transitions idle (or failed, on retry) -> running atomically. A
// false return means another
// cycle won the cursor between the due query and this update.
func (r *CursorRepository) Claim(ctx context.Context, cursorID snowflake.ID) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(
		`UPDATE sync_cursors SET status = ? WHERE id = ? AND status IN (?, ?)`,
		domain.CursorRunning,
		cursorID,
		domain.CursorIdle,
		domain.CursorFailed,
	)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

// Advance records a successful poll: new position, next due time, error state cleared.
func (r *CursorRepository) Advance(ctx context.Context, cursorID snowflake.ID, cursorValue string, nextSyncAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE sync_cursors
		 SET cursor_value = ?, next_sync_at = ?, status = ?, error_count = 0, last_error = NULL
		 WHERE id = ?`,
		cursorValue,
		nextSyncAt,
		domain.CursorIdle,
		cursorID,
	).Error
}

// MarkFailed records a poll failure and schedules the retry.
func (r *CursorRepository) MarkFailed(ctx context.Context, cursorID snowflake.ID, reason string, nextSyncAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE sync_cursors
		 SET status = ?, last_error = ?, error_count = error_count + 1, next_sync_at = ?
		 WHERE id = ?`,
		domain.CursorFailed,
		reason,
		nextSyncAt,
		cursorID,
	).Error
}

// Release returns a claimed cursor to idle without touching its position,
// used when the owning connection is missing or inactive.
func (r *CursorRepository) Release(ctx context.Context, cursorID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE sync_cursors SET status = ? WHERE id = ?`,
		domain.CursorIdle,
		cursorID,
	).Error
}

func (r *CursorRepository) FindByID(ctx context.Context, cursorID snowflake.ID) (*domain.SyncCursor, error) {
	var cursor domain.SyncCursor
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, connection_id, tenant_id, event_type, cursor_field, cursor_value,
		        status, next_sync_at, error_count, last_error, created_at
		 FROM sync_cursors WHERE id = ?`,
		cursorID,
	).Scan(&cursor).Error
	if err != nil {
		return nil, err
	}
	if cursor.ID == 0 {
		return nil, nil
	}
	return &cursor, nil
}

func (r *CursorRepository) FindByTenant(ctx context.Context, tenantID snowflake.ID) ([]domain.SyncCursor, error) {
	var cursors []domain.SyncCursor
	err := r.db.WithContext(ctx).
		Model(&domain.SyncCursor{}).
		Where("tenant_id = ?", tenantID).
		Order("created_at asc, id asc").
		Find(&cursors).Error
	if err != nil {
		return nil, err
	}
	return cursors, nil
}

func (r *CursorRepository) Create(ctx context.Context, cursor *domain.SyncCursor) error {
	return r.db.WithContext(ctx).Create(cursor).Error
}

// Trigger forces a cursor due now and ready to be claimed.
func (r *CursorRepository) Trigger(ctx context.Context, cursorID snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE sync_cursors SET next_sync_at = ?, status = ? WHERE id = ?`,
		now,
		domain.CursorIdle,
		cursorID,
	).Error
}

// Reset clears the position and error state for a full backfill.
func (r *CursorRepository) Reset(ctx context.Context, cursorID snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE sync_cursors
		 SET cursor_value = '', status = ?, error_count = 0, last_error = NULL, next_sync_at = ?
		 WHERE id = ?`,
		domain.CursorIdle,
		now,
		cursorID,
	).Error
}
