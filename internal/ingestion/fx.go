package ingestion

import (
	"github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/ingestion/poller"
	"github.com/growhalo/halo/internal/ingestion/polling"
	"github.com/growhalo/halo/internal/ingestion/repository"
	"github.com/growhalo/halo/internal/ingestion/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingestion",
	fx.Provide(
		repository.ProvideRawEvents,
		repository.ProvideBatches,
		repository.ProvideCursors,
		poller.NewRegistry,
		service.NewService,
		polling.NewOrchestrator,
		func(r *repository.RawEventRepository) domain.Contract { return r },
	),
)
