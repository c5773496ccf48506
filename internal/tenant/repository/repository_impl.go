package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

type Params struct {
	fx.In

	DB *gorm.DB
}

func Provide(p Params) domain.Repository {
	return &repo{db: p.DB}
}

func (r *repo) FindAll(ctx context.Context) ([]domain.Tenant, error) {
	var tenants []domain.Tenant
	err := r.db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Order("created_at asc, id asc").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, slug, plan, settings, created_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}
