package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/connection/domain"
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

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, source, external_account_id, credentials, status, config, created_at
		 FROM connections WHERE id = ?`,
		id,
	).Scan(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}

func (r *repo) FindByExternalAccount(ctx context.Context, source, externalAccountID string) (*domain.Connection, error) {
	var conn domain.Connection
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, source, external_account_id, credentials, status, config, created_at
		 FROM connections WHERE source = ? AND external_account_id = ?`,
		source,
		externalAccountID,
	).Scan(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}
