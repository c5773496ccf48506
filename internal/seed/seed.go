package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	connectiondomain "github.com/growhalo/halo/internal/connection/domain"
	ingestiondomain "github.com/growhalo/halo/internal/ingestion/domain"
	tenantdomain "github.com/growhalo/halo/internal/tenant/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const demoTenantName = "Demo Shop"

// connection sources and the event types each one syncs.
var demoSources = map[ingestiondomain.Source][]ingestiondomain.EventType{
	ingestiondomain.SourceShopify: {ingestiondomain.EventTypeOrder, ingestiondomain.EventTypeCustomer},
	ingestiondomain.SourceMeta:    {ingestiondomain.EventTypeAdSpend},
	ingestiondomain.SourceGoogle:  {ingestiondomain.EventTypeAdSpend},
}

// EnsureDemoTenant seeds a demo tenant with one connection per source and
// idle sync cursors, so a fresh install has something to poll. Safe to run
// on every startup.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := ensureTenantTx(ctx, tx, node)
		if err != nil {
			return err
		}
		for source, eventTypes := range demoSources {
			conn, err := ensureConnectionTx(ctx, tx, node, tenant.ID, source)
			if err != nil {
				return err
			}
			for _, eventType := range eventTypes {
				if err := ensureCursorTx(ctx, tx, node, conn, eventType); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*tenantdomain.Tenant, error) {
	tenantSlug := slug.Make(demoTenantName)

	var tenant tenantdomain.Tenant
	err := tx.WithContext(ctx).Where("slug = ?", tenantSlug).First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tenant = tenantdomain.Tenant{
		ID:        node.Generate(),
		Name:      demoTenantName,
		Slug:      tenantSlug,
		Plan:      tenantdomain.PlanStarter,
		Settings:  datatypes.JSONMap{"currency": "USD"},
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func ensureConnectionTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, source ingestiondomain.Source) (*connectiondomain.Connection, error) {
	externalAccountID := "demo-" + string(source)

	var conn connectiondomain.Connection
	err := tx.WithContext(ctx).
		Where("source = ? AND external_account_id = ?", string(source), externalAccountID).
		First(&conn).Error
	if err == nil {
		return &conn, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conn = connectiondomain.Connection{
		ID:                node.Generate(),
		TenantID:          tenantID,
		Source:            string(source),
		ExternalAccountID: externalAccountID,
		Status:            connectiondomain.StatusActive,
		Config:            datatypes.JSONMap{"poll_interval_seconds": float64(300)},
		CreatedAt:         time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func ensureCursorTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, conn *connectiondomain.Connection, eventType ingestiondomain.EventType) error {
	var cursor ingestiondomain.SyncCursor
	err := tx.WithContext(ctx).
		Where("connection_id = ? AND event_type = ?", conn.ID, eventType).
		First(&cursor).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	cursor = ingestiondomain.SyncCursor{
		ID:           node.Generate(),
		ConnectionID: conn.ID,
		TenantID:     conn.TenantID,
		EventType:    eventType,
		CursorField:  "updated_at",
		Status:       ingestiondomain.CursorIdle,
		NextSyncAt:   now,
		CreatedAt:    now,
	}
	return tx.WithContext(ctx).Create(&cursor).Error
}
