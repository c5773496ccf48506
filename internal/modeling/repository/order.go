package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/modeling/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepository struct {
	db *gorm.DB
}

type OrderParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideOrders(p OrderParams) *OrderRepository {
	return &OrderRepository{db: p.DB}
}

// Upsert replaces the canonical order for (tenant, source, external id).
// Fields are overwritten from the source event, never accumulated, so a
// re-run of the same raw event converges on the identical row.
func (r *OrderRepository) Upsert(ctx context.Context, order *domain.Order) error {
	order.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"customer_email",
			"line_items",
			"subtotal",
			"total_discount",
			"total_tax",
			"total_revenue",
			"currency",
			"order_date",
			"updated_at",
		}),
	}).Create(order).Error
}

func (r *OrderRepository) GetByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("order_date = ?", domain.Day(date)).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// LinkCustomer backfills customer_id on orders that matched only by email
// at transform time.
func (r *OrderRepository) LinkCustomer(ctx context.Context, tenantID snowflake.ID, source, email string, customerID snowflake.ID) error {
	if email == "" {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("tenant_id = ? AND source = ? AND customer_email = ? AND customer_id IS NULL", tenantID, source, email).
		Update("customer_id", customerID).Error
}

func (r *OrderRepository) FindByExternalID(ctx context.Context, tenantID snowflake.ID, source, externalID string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND source = ? AND external_id = ?", tenantID, source, externalID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}
