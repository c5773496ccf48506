// Package tenantctx carries the tenant identifier resolved at the HTTP edge.
// The pipeline itself never reads it; services take the tenant ID as an
// explicit argument so they stay independently testable.
package tenantctx

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type keyType string

const (
	TenantIDKey keyType = "tenant_id"
)

// WithTenantID annotates the context with the resolved tenant.
func WithTenantID(ctx context.Context, id snowflake.ID) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

// TenantID extracts the tenant set by the edge middleware.
func TenantID(ctx context.Context) (snowflake.ID, bool) {
	id, ok := ctx.Value(TenantIDKey).(snowflake.ID)
	return id, ok
}
