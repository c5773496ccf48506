package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ingestiondomain "github.com/growhalo/halo/internal/ingestion/domain"
)

// ListSyncs returns the tenant's sync cursors with their current position
// and health.
func (s *Server) ListSyncs(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	cursors, err := s.cursors.FindByTenant(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"syncs": cursors})
}

// TriggerSync marks a cursor due immediately. The next poll cycle picks it
// up; the handler does not poll inline.
func (s *Server) TriggerSync(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	cursor, err := s.tenantCursor(c, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	token, locked, err := s.limiter.TryLockSyncTrigger(ctx, tenantID.String(), cursor.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !locked {
		AbortWithError(c, ErrConflict)
		return
	}
	defer func() {
		_ = s.limiter.ReleaseSyncTrigger(ctx, tenantID.String(), cursor.ID.String(), token)
	}()

	if err := s.cursors.Trigger(ctx, cursor.ID, time.Now().UTC()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "triggered", "sync_id": cursor.ID.String()})
}

// ResetSync clears a cursor's position and error state so the next poll
// starts from the beginning.
func (s *Server) ResetSync(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	cursor, err := s.tenantCursor(c, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.cursors.Reset(c.Request.Context(), cursor.ID, time.Now().UTC()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset", "sync_id": cursor.ID.String()})
}

// tenantCursor loads the cursor in the path and checks tenant ownership.
// A cursor owned by another tenant reads as not found.
func (s *Server) tenantCursor(c *gin.Context, tenantID snowflake.ID) (*ingestiondomain.SyncCursor, error) {
	cursorID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		return nil, newValidationError("id", "invalid", "sync id must be a valid id")
	}

	cursor, err := s.cursors.FindByID(c.Request.Context(), cursorID)
	if err != nil {
		return nil, err
	}
	if cursor == nil || cursor.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return cursor, nil
}
