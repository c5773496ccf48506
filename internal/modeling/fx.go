package modeling

import (
	"github.com/growhalo/halo/internal/modeling/domain"
	"github.com/growhalo/halo/internal/modeling/processor"
	"github.com/growhalo/halo/internal/modeling/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("modeling",
	fx.Provide(
		repository.ProvideOrders,
		repository.ProvideCustomers,
		repository.ProvideAdSpend,
		processor.NewProcessor,
		func(p *processor.Processor) domain.Contract { return p },
	),
)
