// Package polling drains due sync cursors and hands their events to ingestion.
package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/growhalo/halo/internal/clock"
	connection "github.com/growhalo/halo/internal/connection/domain"
	"github.com/growhalo/halo/internal/config"
	"github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/ingestion/poller"
	"github.com/growhalo/halo/internal/ingestion/repository"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type OrchestratorParam struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Cursors     *repository.CursorRepository
	Connections connection.Repository
	Ingestion   domain.Service
	Pollers     *poller.Registry
	Pipeline    *config.PipelineConfigHolder `optional:"true"`
}

// Orchestrator claims due cursors one at a time and polls them. A cursor
// failure marks that cursor and moves on; it never aborts the cycle.
type Orchestrator struct {
	log         *zap.Logger
	clock       clock.Clock
	cursors     *repository.CursorRepository
	connections connection.Repository
	ingestion   domain.Service
	pollers     *poller.Registry
	pipeline    *config.PipelineConfigHolder
}

func NewOrchestrator(p OrchestratorParam) *Orchestrator {
	return &Orchestrator{
		log:         p.Log.Named("ingestion.polling"),
		clock:       p.Clock,
		cursors:     p.Cursors,
		connections: p.Connections,
		ingestion:   p.Ingestion,
		pollers:     p.Pollers,
		pipeline:    p.Pipeline,
	}
}

// Name identifies the orchestrator on the job scheduler.
func (o *Orchestrator) Name() string { return "poll" }

func (o *Orchestrator) Run(ctx context.Context) error {
	_, err := o.RunCycle(ctx)
	return err
}

// CycleResult summarizes one orchestrator pass.
type CycleResult struct {
	Due    int
	Polled int
	Failed int
}

func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	now := o.clock.Now()
	due, err := o.cursors.FindDue(ctx, now)
	if err != nil {
		return CycleResult{}, fmt.Errorf("find due cursors: %w", err)
	}

	result := CycleResult{Due: len(due)}
	for i := range due {
		cursor := &due[i]
		claimed, err := o.cursors.Claim(ctx, cursor.ID)
		if err != nil {
			o.log.Error("claim cursor", zap.String("cursor_id", cursor.ID.String()), zap.Error(err))
			result.Failed++
			continue
		}
		if !claimed {
			// Another worker got there first.
			continue
		}

		if err := o.pollCursor(ctx, cursor); err != nil {
			o.failCursor(ctx, cursor, err)
			result.Failed++
			continue
		}
		result.Polled++
	}

	if result.Due > 0 {
		o.log.Info("poll cycle",
			zap.Int("due", result.Due),
			zap.Int("polled", result.Polled),
			zap.Int("failed", result.Failed),
		)
	}
	obsmetrics.Pipeline().ObservePollCycle(result.Polled, result.Failed)
	return result, nil
}

func (o *Orchestrator) pollCursor(ctx context.Context, cursor *domain.SyncCursor) error {
	conn, err := o.connections.FindByID(ctx, cursor.ConnectionID)
	if err != nil {
		return fmt.Errorf("load connection: %w", err)
	}
	if conn == nil || conn.Status != connection.StatusActive {
		// Paused and revoked connections stay parked until reactivated.
		if err := o.cursors.Release(ctx, cursor.ID); err != nil {
			return fmt.Errorf("release cursor: %w", err)
		}
		o.log.Debug("cursor skipped, connection not active",
			zap.String("cursor_id", cursor.ID.String()))
		return nil
	}

	source := domain.Source(conn.Source)
	sourcePoller, err := o.pollers.ForSource(source)
	if err != nil {
		return err
	}
	page, err := sourcePoller.Poll(ctx, conn, cursor)
	if err != nil {
		return fmt.Errorf("poll %s: %w", source, err)
	}

	if len(page.Events) > 0 {
		connID := conn.ID
		if _, err := o.ingestion.Ingest(ctx, domain.IngestRequest{
			TenantID:     cursor.TenantID,
			ConnectionID: &connID,
			Source:       source,
			Events:       page.Events,
		}); err != nil {
			return fmt.Errorf("ingest polled events: %w", err)
		}
	}

	// Empty pages still advance; a stalled cursor value would re-fetch the
	// same window forever.
	nextValue := page.NextCursorValue
	if nextValue == "" {
		nextValue = cursor.CursorValue
	}
	cfg := o.pipelineConfig()
	nextSyncAt := o.clock.Now().Add(conn.PollInterval(time.Duration(cfg.DefaultPollSeconds) * time.Second))
	return o.cursors.Advance(ctx, cursor.ID, nextValue, nextSyncAt)
}

func (o *Orchestrator) failCursor(ctx context.Context, cursor *domain.SyncCursor, cause error) {
	cfg := o.pipelineConfig()
	delay := backoff(cursor.ErrorCount, cfg.DefaultPollSeconds, cfg.MaxBackoffSeconds)
	nextSyncAt := o.clock.Now().Add(delay)
	if err := o.cursors.MarkFailed(ctx, cursor.ID, cause.Error(), nextSyncAt); err != nil {
		o.log.Error("mark cursor failed", zap.String("cursor_id", cursor.ID.String()), zap.Error(err))
		return
	}
	o.log.Warn("cursor poll failed",
		zap.String("cursor_id", cursor.ID.String()),
		zap.String("tenant_id", cursor.TenantID.String()),
		zap.Duration("retry_in", delay),
		zap.Error(cause),
	)
}

func (o *Orchestrator) pipelineConfig() config.PipelineConfig {
	if o.pipeline == nil {
		return config.DefaultPipelineConfig()
	}
	return o.pipeline.Get()
}

// backoff doubles the base poll interval per consecutive failure, capped so a
// flapping upstream cannot push the retry horizon out indefinitely.
func backoff(errorCount, baseSeconds, maxSeconds int) time.Duration {
	delay := baseSeconds
	for i := 0; i < errorCount; i++ {
		delay *= 2
		if delay >= maxSeconds {
			delay = maxSeconds
			break
		}
	}
	if delay > maxSeconds {
		delay = maxSeconds
	}
	return time.Duration(delay) * time.Second
}
