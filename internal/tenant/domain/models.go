// Package domain contains the tenant models owned by the platform layer.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// Tenant is the isolation boundary. Every pipeline entity belongs to exactly one.
type Tenant struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	Name      string            `json:"name" gorm:"type:text;not null"`
	Slug      string            `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	Plan      Plan              `json:"plan" gorm:"type:text;not null;default:starter"`
	Settings  datatypes.JSONMap `json:"settings" gorm:"type:jsonb"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

type Repository interface {
	FindAll(ctx context.Context) ([]Tenant, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
}
