package analytics

import (
	"github.com/growhalo/halo/internal/analytics/aggregation"
	"github.com/growhalo/halo/internal/analytics/metrics"
	"github.com/growhalo/halo/internal/analytics/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("analytics",
	fx.Provide(
		repository.ProvideSummaries,
		aggregation.NewJob,
		metrics.NewService,
	),
)
