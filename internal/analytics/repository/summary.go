package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/analytics/domain"
	modeling "github.com/growhalo/halo/internal/modeling/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SummaryRepository struct {
	db *gorm.DB
}

type SummaryParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideSummaries(p SummaryParams) *SummaryRepository {
	return &SummaryRepository{db: p.DB}
}

// Upsert fully replaces the summary for (tenant, summary date).
func (r *SummaryRepository) Upsert(ctx context.Context, summary *domain.DailySummary) error {
	summary.SummaryDate = modeling.Day(summary.SummaryDate)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "summary_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"revenue",
			"orders_count",
			"new_customers",
			"ad_spend",
			"roas",
			"cac",
			"avg_order_value",
			"computed_at",
		}),
	}).Create(summary).Error
}

func (r *SummaryRepository) GetByDateRange(ctx context.Context, tenantID snowflake.ID, start, end time.Time) ([]domain.DailySummary, error) {
	var rows []domain.DailySummary
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("summary_date >= ? AND summary_date <= ?", modeling.Day(start), modeling.Day(end)).
		Order("summary_date asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SummaryRepository) GetLatest(ctx context.Context, tenantID snowflake.ID) (*domain.DailySummary, error) {
	var row domain.DailySummary
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("summary_date desc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
