package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/growhalo/halo/internal/analytics/aggregation"
	analyticsmetrics "github.com/growhalo/halo/internal/analytics/metrics"
	"github.com/growhalo/halo/internal/config"
	connectiondomain "github.com/growhalo/halo/internal/connection/domain"
	ingestiondomain "github.com/growhalo/halo/internal/ingestion/domain"
	ingestionrepo "github.com/growhalo/halo/internal/ingestion/repository"
	"github.com/growhalo/halo/internal/observability"
	obsmiddleware "github.com/growhalo/halo/internal/observability/logger"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	obstracing "github.com/growhalo/halo/internal/observability/tracing"
	"github.com/growhalo/halo/internal/ratelimit"
	tenantdomain "github.com/growhalo/halo/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	ingestSvc   ingestiondomain.Service
	cursors     *ingestionrepo.CursorRepository
	connections connectiondomain.Repository
	tenants     tenantdomain.Repository
	aggregator  *aggregation.Job
	metricsSvc  *analyticsmetrics.Service
	limiter     *ratelimit.IngestLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	IngestSvc   ingestiondomain.Service
	Cursors     *ingestionrepo.CursorRepository
	Connections connectiondomain.Repository
	Tenants     tenantdomain.Repository
	Aggregator  *aggregation.Job
	MetricsSvc  *analyticsmetrics.Service
	Limiter     *ratelimit.IngestLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		ingestSvc:   p.IngestSvc,
		cursors:     p.Cursors,
		connections: p.Connections,
		tenants:     p.Tenants,
		aggregator:  p.Aggregator,
		metricsSvc:  p.MetricsSvc,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.TenantRequired())

	ingest := v1.Group("/ingest")
	ingest.POST("/batch", s.IngestRateLimit(), s.IngestBatch)
	ingest.POST("/webhook/:source", s.IngestRateLimit(), s.IngestWebhook)
	ingest.GET("/batches", s.ListBatches)
	ingest.GET("/batches/:id", s.GetBatch)
	ingest.GET("/status", s.PipelineStatus)

	syncs := v1.Group("/syncs")
	syncs.GET("", s.ListSyncs)
	syncs.POST("/:id/trigger", s.TriggerSync)
	syncs.POST("/:id/reset", s.ResetSync)

	analytics := v1.Group("/analytics")
	analytics.POST("/aggregate", s.RunAggregation)
	analytics.GET("/summary", s.MetricsSummary)
	analytics.GET("/timeseries", s.MetricsTimeSeries)
	analytics.GET("/spend/campaigns", s.AdSpendBreakdown)
}
