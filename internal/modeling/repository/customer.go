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

type CustomerRepository struct {
	db *gorm.DB
}

type CustomerParams struct {
	fx.In

	DB *gorm.DB
}

func ProvideCustomers(p CustomerParams) *CustomerRepository {
	return &CustomerRepository{db: p.DB}
}

// Upsert replaces the canonical customer for (tenant, source, external id),
// except first_order_date which only ever moves earlier. Returns the stored
// row so the processor can link orders by its id.
func (r *CustomerRepository) Upsert(ctx context.Context, customer *domain.Customer) (*domain.Customer, error) {
	existing, err := r.FindByExternalID(ctx, customer.TenantID, customer.Source, customer.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.FirstOrderDate.Before(customer.FirstOrderDate) {
		customer.FirstOrderDate = existing.FirstOrderDate
	}

	customer.UpdatedAt = time.Now().UTC()
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}, {Name: "source"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email",
			"first_order_date",
			"total_orders",
			"total_revenue",
			"updated_at",
		}),
	}).Create(customer).Error
	if err != nil {
		return nil, err
	}
	return r.FindByExternalID(ctx, customer.TenantID, customer.Source, customer.ExternalID)
}

func (r *CustomerRepository) FindByExternalID(ctx context.Context, tenantID snowflake.ID, source, externalID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND source = ? AND external_id = ?", tenantID, source, externalID).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// GetNewByDate returns customers whose first order landed on the given day.
func (r *CustomerRepository) GetNewByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Where("first_order_date = ?", domain.Day(date)).
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}
