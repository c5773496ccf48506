package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/ingestion/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type BatchRepository struct {
	db *gorm.DB
}

type BatchParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideBatches(p BatchParams) *BatchRepository {
	return &BatchRepository{db: p.DB}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.IngestionBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// Finalize writes the terminal counts exactly once; a batch is immutable
// after completed_at is set.
func (r *BatchRepository) Finalize(ctx context.Context, batchID snowflake.ID, accepted, rejected, duplicates int, status domain.BatchStatus, completedAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE ingestion_batches
		 SET accepted = ?, rejected = ?, duplicates = ?, status = ?, completed_at = ?
		 WHERE id = ? AND completed_at IS NULL`,
		accepted,
		rejected,
		duplicates,
		status,
		completedAt,
		batchID,
	).Error
}

func (r *BatchRepository) FindByID(ctx context.Context, tenantID, batchID snowflake.ID) (*domain.IngestionBatch, error) {
	var batch domain.IngestionBatch
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, source, total_events, accepted, rejected, duplicates, status, created_at, completed_at
		 FROM ingestion_batches WHERE tenant_id = ? AND id = ?`,
		tenantID,
		batchID,
	).Scan(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

func (r *BatchRepository) ListByTenant(ctx context.Context, tenantID snowflake.ID, limit int) ([]domain.IngestionBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	var batches []domain.IngestionBatch
	err := r.db.WithContext(ctx).
		Model(&domain.IngestionBatch{}).
		Where("tenant_id = ?", tenantID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}
