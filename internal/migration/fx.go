package migration

import (
	analyticsdomain "github.com/growhalo/halo/internal/analytics/domain"
	"github.com/growhalo/halo/internal/config"
	connectiondomain "github.com/growhalo/halo/internal/connection/domain"
	ingestiondomain "github.com/growhalo/halo/internal/ingestion/domain"
	modelingdomain "github.com/growhalo/halo/internal/modeling/domain"
	"github.com/growhalo/halo/internal/seed"
	tenantdomain "github.com/growhalo/halo/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql installs lean on gorm's schema sync.
			if err := conn.AutoMigrate(
				&tenantdomain.Tenant{},
				&connectiondomain.Connection{},
				&ingestiondomain.IngestionBatch{},
				&ingestiondomain.RawEvent{},
				&ingestiondomain.SyncCursor{},
				&modelingdomain.Order{},
				&modelingdomain.Customer{},
				&modelingdomain.AdSpend{},
				&analyticsdomain.DailySummary{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemo {
			return seed.EnsureDemoTenant(conn)
		}
		return nil
	}),
)
