// Package domain contains connection models. Connections are owned by the
// platform layer; the pipeline only ever reads them.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusRevoked Status = "revoked"
)

// Connection links a tenant to one external account on one source.
type Connection struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID          snowflake.ID      `json:"tenant_id" gorm:"not null;index"`
	Source            string            `json:"source" gorm:"type:text;not null;uniqueIndex:ux_connections_source_account,priority:1"`
	ExternalAccountID string            `json:"external_account_id" gorm:"type:text;not null;uniqueIndex:ux_connections_source_account,priority:2"`
	Credentials       datatypes.JSONMap `json:"-" gorm:"type:jsonb"`
	Status            Status            `json:"status" gorm:"type:text;not null;default:active"`
	Config            datatypes.JSONMap `json:"config" gorm:"type:jsonb"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Connection) TableName() string { return "connections" }

// PollInterval reads the per-connection poll cadence from config,
// falling back to the supplied default.
func (c *Connection) PollInterval(def time.Duration) time.Duration {
	if c == nil || c.Config == nil {
		return def
	}
	raw, ok := c.Config["poll_interval_seconds"]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}

type Repository interface {
	FindByID(ctx context.Context, id snowflake.ID) (*Connection, error)
	FindByExternalAccount(ctx context.Context, source, externalAccountID string) (*Connection, error)
}
