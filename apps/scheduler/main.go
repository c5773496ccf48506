package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/analytics"
	"github.com/growhalo/halo/internal/clock"
	"github.com/growhalo/halo/internal/cloudmetrics"
	"github.com/growhalo/halo/internal/config"
	"github.com/growhalo/halo/internal/connection"
	"github.com/growhalo/halo/internal/ingestion"
	"github.com/growhalo/halo/internal/migration"
	"github.com/growhalo/halo/internal/modeling"
	"github.com/growhalo/halo/internal/observability"
	"github.com/growhalo/halo/internal/scheduler"
	"github.com/growhalo/halo/internal/tenant"
	"github.com/growhalo/halo/pkg/db"
	"github.com/growhalo/halo/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cloudmetrics.Module,
		migration.Module,

		// Jobs the scheduler drives: poll, process, aggregate
		tenant.Module,
		connection.Module,
		ingestion.Module,
		modeling.Module,
		analytics.Module,

		// No HTTP server in this binary
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
