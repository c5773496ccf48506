// Package domain contains persistence models for raw event intake.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceShopify Source = "shopify"
	SourceMeta    Source = "meta"
	SourceGoogle  Source = "google"
)

func (s Source) Valid() bool {
	switch s {
	case SourceShopify, SourceMeta, SourceGoogle:
		return true
	}
	return false
}

type EventType string

const (
	EventTypeOrder    EventType = "order"
	EventTypeCustomer EventType = "customer"
	EventTypeAdSpend  EventType = "ad_spend"
)

type RawEventStatus string

const (
	RawEventAccepted RawEventStatus = "accepted"
	RawEventRejected RawEventStatus = "rejected"
)

type BatchStatus string

const (
	BatchProcessing     BatchStatus = "processing"
	BatchCompleted      BatchStatus = "completed"
	BatchPartialFailure BatchStatus = "partial_failure"
)

type CursorStatus string

const (
	CursorIdle    CursorStatus = "idle"
	CursorRunning CursorStatus = "running"
	CursorFailed  CursorStatus = "failed"
)

// IdempotencyKey is the uniqueness identity of a raw event within a tenant.
func IdempotencyKey(source Source, eventType EventType, externalID string) string {
	return fmt.Sprintf("%s:%s:%s", source, eventType, externalID)
}

// RawEvent is immutable once inserted except for the processed transition.
type RawEvent struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID      `json:"tenant_id" gorm:"not null;uniqueIndex:ux_raw_events_tenant_idem,priority:1"`
	ConnectionID    *snowflake.ID     `json:"connection_id" gorm:""`
	Source          Source            `json:"source" gorm:"type:text;not null;index:ix_raw_events_tenant_source_type,priority:2"`
	EventType       EventType         `json:"event_type" gorm:"type:text;not null;index:ix_raw_events_tenant_source_type,priority:3"`
	ExternalID      string            `json:"external_id" gorm:"type:text;not null"`
	IdempotencyKey  string            `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex:ux_raw_events_tenant_idem,priority:2"`
	Payload         datatypes.JSONMap `json:"payload" gorm:"type:jsonb;not null"`
	Status          RawEventStatus    `json:"status" gorm:"type:text;not null;default:accepted"`
	BatchID         *snowflake.ID     `json:"batch_id" gorm:""`
	FailureReason   *string           `json:"failure_reason" gorm:"type:text"`
	SourceTimestamp time.Time         `json:"source_timestamp" gorm:"not null"`
	ReceivedAt      time.Time         `json:"received_at" gorm:"not null;default:CURRENT_TIMESTAMP;index"`
	ProcessedAt     *time.Time        `json:"processed_at" gorm:""`
}

// TableName sets the database table name.
func (RawEvent) TableName() string { return "raw_events" }

// IngestionBatch records the outcome of one ingest call. Write-once, then
// finalized; immutable after CompletedAt is set.
type IngestionBatch struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID    snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	Source      Source       `json:"source" gorm:"type:text;not null"`
	TotalEvents int          `json:"total_events" gorm:"not null;default:0"`
	Accepted    int          `json:"accepted" gorm:"not null;default:0"`
	Rejected    int          `json:"rejected" gorm:"not null;default:0"`
	Duplicates  int          `json:"duplicates" gorm:"not null;default:0"`
	Status      BatchStatus  `json:"status" gorm:"type:text;not null;default:processing"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt *time.Time   `json:"completed_at" gorm:""`
}

// TableName sets the database table name.
func (IngestionBatch) TableName() string { return "ingestion_batches" }

// SyncCursor tracks the incremental sync position for one (connection, event type).
type SyncCursor struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	ConnectionID snowflake.ID `json:"connection_id" gorm:"not null;uniqueIndex:ux_sync_cursors_conn_type,priority:1"`
	TenantID     snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	EventType    EventType    `json:"event_type" gorm:"type:text;not null;uniqueIndex:ux_sync_cursors_conn_type,priority:2"`
	CursorField  string       `json:"cursor_field" gorm:"type:text;not null;default:updated_at"`
	CursorValue  string       `json:"cursor_value" gorm:"type:text;not null;default:''"`
	Status       CursorStatus `json:"status" gorm:"type:text;not null;default:idle"`
	NextSyncAt   time.Time    `json:"next_sync_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	ErrorCount   int          `json:"error_count" gorm:"not null;default:0"`
	LastError    *string      `json:"last_error" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SyncCursor) TableName() string { return "sync_cursors" }
