package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ingestiondomain "github.com/growhalo/halo/internal/ingestion/domain"
)

type ingestBatchRequest struct {
	Source       string                       `json:"source"`
	ConnectionID string                       `json:"connection_id"`
	Events       []ingestiondomain.EventInput `json:"events"`
}

// IngestBatch accepts a batch of raw events for one source.
func (s *Server) IngestBatch(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req ingestBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	ingestReq := ingestiondomain.IngestRequest{
		TenantID: tenantID,
		Source:   ingestiondomain.Source(strings.TrimSpace(req.Source)),
		Events:   req.Events,
	}
	if connID := strings.TrimSpace(req.ConnectionID); connID != "" {
		parsed, err := snowflake.ParseString(connID)
		if err != nil {
			AbortWithError(c, newValidationError("connection_id", "invalid", "connection_id must be a valid id"))
			return
		}
		ingestReq.ConnectionID = &parsed
	}

	batch, err := s.ingestSvc.Ingest(c.Request.Context(), ingestReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// IngestWebhook accepts a single provider payload pushed by the source.
// The payload goes through the same adapter and idempotency path as a
// polled batch of one.
func (s *Server) IngestWebhook(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	source := ingestiondomain.Source(strings.TrimSpace(c.Param("source")))

	var payload map[string]any
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	batch, err := s.ingestSvc.Ingest(c.Request.Context(), ingestiondomain.IngestRequest{
		TenantID: tenantID,
		Source:   source,
		Events:   []ingestiondomain.EventInput{{Payload: payload}},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// ListBatches returns recent ingest batches for the tenant.
func (s *Server) ListBatches(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			AbortWithError(c, newValidationError("limit", "invalid", "limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}

	batches, err := s.ingestSvc.ListBatches(c.Request.Context(), tenantID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

// GetBatch returns one ingest batch by id.
func (s *Server) GetBatch(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	batchID, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid", "batch id must be a valid id"))
		return
	}

	batch, err := s.ingestSvc.GetBatch(c.Request.Context(), tenantID, batchID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, batch)
}

// PipelineStatus reports raw event counts by processing state.
func (s *Server) PipelineStatus(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.ingestSvc.PipelineStatus(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
