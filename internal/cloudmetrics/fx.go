package cloudmetrics

import (
	"context"
	"time"

	"github.com/growhalo/halo/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pushInterval = 15 * time.Minute

var Module = fx.Module("cloud.metrics",
	fx.Provide(
		fx.Annotate(prometheus.NewRegistry, fx.ResultTags(`name:"cloud_registry"`)),
	),
	fx.Invoke(fx.Annotate(register, fx.ParamTags(``, ``, `name:"cloud_registry"`, ``))),
)

func register(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.CloudMetrics.Enabled {
		return
	}

	setRecorder(&recorder{metrics: newMetrics(registry)})

	pusher := NewPusher(cfg, logger)
	if pusher == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(pushInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						if err := pusher.Push(ctx, registry); err != nil {
							logger.Warn("cloud metrics push failed", zap.Error(err))
						}
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			// Final push so shutdown does not lose the last window.
			if err := pusher.Push(stopCtx, registry); err != nil {
				logger.Warn("final cloud metrics push failed", zap.Error(err))
			}
			return nil
		},
	})
}
