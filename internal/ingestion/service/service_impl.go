package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/cloudmetrics"
	"github.com/growhalo/halo/internal/config"
	"github.com/growhalo/halo/internal/ingestion/adapter"
	"github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/ingestion/repository"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Batches  *repository.BatchRepository
	Raw      *repository.RawEventRepository
	Pipeline *config.PipelineConfigHolder `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	batches  *repository.BatchRepository
	raw      *repository.RawEventRepository
	pipeline *config.PipelineConfigHolder
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:      p.Log.Named("ingestion.service"),
		genID:    p.GenID,
		batches:  p.Batches,
		raw:      p.Raw,
		pipeline: p.Pipeline,
	}
}

// Ingest runs one batch through the source adapter and into the raw event
// store. Rejected events are dropped without storing partial payloads;
// duplicates are absorbed by the (tenant, idempotency key) constraint.
func (s *Service) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestionBatch, error) {
	if !req.Source.Valid() {
		return nil, domain.ErrInvalidSource
	}
	if len(req.Events) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	if max := s.maxBatchItems(); max > 0 && len(req.Events) > max {
		return nil, domain.ErrBatchTooLarge
	}

	now := time.Now().UTC()
	batch := &domain.IngestionBatch{
		ID:          s.genID.Generate(),
		TenantID:    req.TenantID,
		Source:      req.Source,
		TotalEvents: len(req.Events),
		Status:      domain.BatchProcessing,
		CreatedAt:   now,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("create ingestion batch: %w", err)
	}

	sourceAdapter, err := adapter.ForSource(req.Source)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.RawEvent, 0, len(req.Events))
	rejected := 0
	for _, event := range req.Events {
		extracted, err := s.extract(sourceAdapter, event)
		if err != nil {
			rejected++
			continue
		}

		sourceTS := extracted.SourceTimestamp
		if sourceTS.IsZero() {
			sourceTS = now
		}

		rows = append(rows, domain.RawEvent{
			ID:              s.genID.Generate(),
			TenantID:        req.TenantID,
			ConnectionID:    req.ConnectionID,
			Source:          req.Source,
			EventType:       extracted.EventType,
			ExternalID:      extracted.ExternalID,
			IdempotencyKey:  domain.IdempotencyKey(req.Source, extracted.EventType, extracted.ExternalID),
			Payload:         extracted.Payload,
			Status:          domain.RawEventAccepted,
			BatchID:         &batch.ID,
			SourceTimestamp: sourceTS,
			ReceivedAt:      now,
		})
	}

	result, err := s.raw.BulkInsert(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("insert raw events: %w", err)
	}

	status := domain.BatchCompleted
	if rejected > 0 {
		status = domain.BatchPartialFailure
	}
	completedAt := time.Now().UTC()
	if err := s.batches.Finalize(ctx, batch.ID, result.Accepted, rejected, result.Duplicates, status, completedAt); err != nil {
		return nil, fmt.Errorf("finalize ingestion batch: %w", err)
	}

	batch.Accepted = result.Accepted
	batch.Rejected = rejected
	batch.Duplicates = result.Duplicates
	batch.Status = status
	batch.CompletedAt = &completedAt

	obsmetrics.Pipeline().ObserveIngest(string(req.Source), result.Accepted, rejected, result.Duplicates)
	cloudmetrics.RecordIngestedEvents(req.TenantID.String(), string(req.Source), result.Accepted)

	s.log.Info("batch ingested",
		zap.String("batch_id", batch.ID.String()),
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("source", string(req.Source)),
		zap.Int("total", batch.TotalEvents),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", rejected),
		zap.Int("duplicates", result.Duplicates),
	)

	return batch, nil
}

// extract trusts pre-extracted events that already carry an external id and
// event type; everything else goes through the source adapter.
func (s *Service) extract(a adapter.SourceAdapter, event domain.EventInput) (domain.EventInput, error) {
	if event.ExternalID != "" && event.EventType != "" {
		return event, nil
	}
	return a.ValidateAndExtract(event.Payload)
}

func (s *Service) GetBatch(ctx context.Context, tenantID, batchID snowflake.ID) (*domain.IngestionBatch, error) {
	batch, err := s.batches.FindByID(ctx, tenantID, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	return batch, nil
}

func (s *Service) ListBatches(ctx context.Context, tenantID snowflake.ID, limit int) ([]domain.IngestionBatch, error) {
	return s.batches.ListByTenant(ctx, tenantID, limit)
}

func (s *Service) PipelineStatus(ctx context.Context, tenantID snowflake.ID) (map[string]int64, error) {
	return s.raw.CountUnprocessed(ctx, tenantID)
}

func (s *Service) maxBatchItems() int {
	if s.pipeline == nil {
		return config.DefaultPipelineConfig().IngestMaxBatchItems
	}
	return s.pipeline.Get().IngestMaxBatchItems
}
