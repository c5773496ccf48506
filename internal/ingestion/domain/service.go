package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// EventInput is one intake record: either pre-extracted (ExternalID set) or
// a raw provider payload the source adapter still has to validate.
type EventInput struct {
	ExternalID      string         `json:"external_id"`
	EventType       EventType      `json:"event_type"`
	Payload         map[string]any `json:"payload"`
	SourceTimestamp time.Time      `json:"source_timestamp"`
}

// IngestRequest scopes one ingest call to a tenant and source.
type IngestRequest struct {
	TenantID     snowflake.ID
	ConnectionID *snowflake.ID
	Source       Source
	Events       []EventInput
}

// UnprocessedQuery filters the processor's drain.
type UnprocessedQuery struct {
	EventType EventType
	Limit     int
}

// RawEventDTO is the read model handed to the event processor.
type RawEventDTO struct {
	ID              snowflake.ID
	TenantID        snowflake.ID
	ConnectionID    *snowflake.ID
	Source          Source
	EventType       EventType
	ExternalID      string
	Payload         map[string]any
	SourceTimestamp time.Time
}

type Service interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestionBatch, error)
	GetBatch(ctx context.Context, tenantID, batchID snowflake.ID) (*IngestionBatch, error)
	ListBatches(ctx context.Context, tenantID snowflake.ID, limit int) ([]IngestionBatch, error)
	PipelineStatus(ctx context.Context, tenantID snowflake.ID) (map[string]int64, error)
}

// Contract is the ingestion surface exposed to the modeling domain: pull raw
// events in receipt order and signal per-event processing outcome.
type Contract interface {
	UnprocessedEvents(ctx context.Context, q UnprocessedQuery) ([]RawEventDTO, error)
	MarkProcessed(ctx context.Context, rawEventID snowflake.ID) error
	MarkFailed(ctx context.Context, rawEventID snowflake.ID, reason string) error
}

var (
	ErrInvalidSource = errors.New("invalid_source")
	ErrEmptyBatch    = errors.New("empty_batch")
	ErrBatchTooLarge = errors.New("batch_too_large")
	ErrBatchNotFound = errors.New("batch_not_found")
)
