package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/modeling/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AdSpendRepository struct {
	db *gorm.DB
}

type AdSpendParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideAdSpend(p AdSpendParams) *AdSpendRepository {
	return &AdSpendRepository{db: p.DB}
}

// Upsert replaces the spend row for (tenant, source, campaign, day).
func (r *AdSpendRepository) Upsert(ctx context.Context, spend *domain.AdSpend) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "source"}, {Name: "campaign_id"}, {Name: "spend_date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"campaign_name",
			"amount",
			"impressions",
			"clicks",
		}),
	}).Create(spend).Error
}

func (r *AdSpendRepository) GetByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]domain.AdSpend, error) {
	var rows []domain.AdSpend
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("spend_date = ?", domain.Day(date)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// BreakdownByCampaign sums spend per campaign over a date range.
type CampaignSpend struct {
	Source       string  `json:"source"`
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	Amount       float64 `json:"amount"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
}

func (r *AdSpendRepository) BreakdownByCampaign(ctx context.Context, tenantID snowflake.ID, start, end time.Time) ([]CampaignSpend, error) {
	var rows []CampaignSpend
	err := r.db.WithContext(ctx).
		Model(&domain.AdSpend{}).
		Select(`source, campaign_id, campaign_name,
			SUM(amount) AS amount,
			SUM(impressions) AS impressions,
			SUM(clicks) AS clicks`).
		Where("tenant_id = ?", tenantID).
		Where("spend_date >= ? AND spend_date <= ?", domain.Day(start), domain.Day(end)).
		Group("source, campaign_id, campaign_name").
		Order("amount DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
