package connection

import (
	"github.com/growhalo/halo/internal/connection/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("connection",
	fx.Provide(repository.Provide),
)
