// Package processor drains accepted raw events into the canonical models.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/growhalo/halo/internal/config"
	ingestion "github.com/growhalo/halo/internal/ingestion/domain"
	"github.com/growhalo/halo/internal/modeling/domain"
	"github.com/growhalo/halo/internal/modeling/repository"
	"github.com/growhalo/halo/internal/modeling/transformer"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ProcessorParam struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Ingestion ingestion.Contract
	Orders    *repository.OrderRepository
	Customers *repository.CustomerRepository
	AdSpend   *repository.AdSpendRepository
	Pipeline  *config.PipelineConfigHolder `optional:"true"`
}

// Processor transforms raw events oldest-first. Every event succeeds or
// fails on its own; one malformed payload never blocks the batch.
type Processor struct {
	log       *zap.Logger
	genID     *snowflake.Node
	ingestion ingestion.Contract
	orders    *repository.OrderRepository
	customers *repository.CustomerRepository
	adSpend   *repository.AdSpendRepository
	pipeline  *config.PipelineConfigHolder
}

func NewProcessor(p ProcessorParam) *Processor {
	return &Processor{
		log:       p.Log.Named("modeling.processor"),
		genID:     p.GenID,
		ingestion: p.Ingestion,
		orders:    p.Orders,
		customers: p.Customers,
		adSpend:   p.AdSpend,
		pipeline:  p.Pipeline,
	}
}

// Name identifies the processor on the job scheduler.
func (p *Processor) Name() string { return "process" }

func (p *Processor) Run(ctx context.Context) error {
	limit := config.DefaultPipelineConfig().ProcessBatchSize
	if p.pipeline != nil {
		limit = p.pipeline.Get().ProcessBatchSize
	}

	events, err := p.ingestion.UnprocessedEvents(ctx, ingestion.UnprocessedQuery{Limit: limit})
	if err != nil {
		return fmt.Errorf("fetch unprocessed events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	processed := map[ingestion.EventType]int{}
	failed := map[ingestion.EventType]int{}
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			failed[event.EventType]++
			p.log.Warn("event rejected",
				zap.String("raw_event_id", event.ID.String()),
				zap.String("tenant_id", event.TenantID.String()),
				zap.String("event_type", string(event.EventType)),
				zap.Error(err),
			)
			if markErr := p.ingestion.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				p.log.Error("mark event failed", zap.String("raw_event_id", event.ID.String()), zap.Error(markErr))
			}
			continue
		}
		if err := p.ingestion.MarkProcessed(ctx, event.ID); err != nil {
			// The upsert landed; the re-run will replay it idempotently.
			p.log.Error("mark event processed", zap.String("raw_event_id", event.ID.String()), zap.Error(err))
			continue
		}
		processed[event.EventType]++
	}

	for eventType, count := range processed {
		obsmetrics.Pipeline().ObserveProcessed(string(eventType), count, failed[eventType])
		delete(failed, eventType)
	}
	for eventType, count := range failed {
		obsmetrics.Pipeline().ObserveProcessed(string(eventType), 0, count)
	}

	p.log.Info("raw events drained", zap.Int("fetched", len(events)))
	return nil
}

func (p *Processor) processEvent(ctx context.Context, event ingestion.RawEventDTO) error {
	switch event.EventType {
	case ingestion.EventTypeOrder:
		order := transformer.Order(event)
		order.ID = p.genID.Generate()
		return p.orders.Upsert(ctx, &order)

	case ingestion.EventTypeCustomer:
		customer := transformer.Customer(event)
		customer.ID = p.genID.Generate()
		stored, err := p.customers.Upsert(ctx, &customer)
		if err != nil {
			return err
		}
		if stored != nil {
			return p.orders.LinkCustomer(ctx, stored.TenantID, stored.Source, stored.Email, stored.ID)
		}
		return nil

	case ingestion.EventTypeAdSpend:
		spend := transformer.AdSpend(event)
		spend.ID = p.genID.Generate()
		return p.adSpend.Upsert(ctx, &spend)

	default:
		return fmt.Errorf("unknown event type: %s", event.EventType)
	}
}

// OrdersByDate implements the contract the analytics domain reads from.
func (p *Processor) OrdersByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]domain.Order, error) {
	return p.orders.GetByDate(ctx, tenantID, date)
}

func (p *Processor) NewCustomersByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]domain.Customer, error) {
	return p.customers.GetNewByDate(ctx, tenantID, date)
}

func (p *Processor) AdSpendByDate(ctx context.Context, tenantID snowflake.ID, date time.Time) ([]domain.AdSpend, error) {
	return p.adSpend.GetByDate(ctx, tenantID, date)
}
