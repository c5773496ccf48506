package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/growhalo/halo/internal/analytics/domain"
	modelingdomain "github.com/growhalo/halo/internal/modeling/domain"
)

const dateLayout = "2006-01-02"

type aggregateRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RunAggregation recomputes daily summaries for the tenant. Without a
// date range it recomputes today only; historical backfills pass one.
func (s *Server) RunAggregation(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req aggregateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
			return
		}
	}

	ctx := c.Request.Context()
	today := modelingdomain.Day(time.Now().UTC())

	start, end := today, today
	if req.StartDate != "" || req.EndDate != "" {
		var err error
		start, end, err = parseDateRange(req.StartDate, req.EndDate)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	if err := s.aggregator.RunForDateRange(ctx, tenantID, start, end); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "aggregated",
		"start_date": start.Format(dateLayout),
		"end_date":   end.Format(dateLayout),
	})
}

// MetricsSummary returns current-vs-previous period metrics.
func (s *Server) MetricsSummary(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	period := strings.TrimSpace(c.Query("period"))
	summary, err := s.metricsSvc.Summary(c.Request.Context(), tenantID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// MetricsTimeSeries returns bucketed metric values over a date range.
func (s *Server) MetricsTimeSeries(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	start, end, err := parseDateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	granularity := analyticsdomain.Granularity(strings.TrimSpace(c.DefaultQuery("granularity", string(analyticsdomain.GranularityDaily))))
	if !granularity.Valid() {
		AbortWithError(c, newValidationError("granularity", "invalid", "granularity must be daily, weekly or monthly"))
		return
	}

	var metricNames []string
	if raw := strings.TrimSpace(c.Query("metrics")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				metricNames = append(metricNames, name)
			}
		}
	}

	points, err := s.metricsSvc.TimeSeries(c.Request.Context(), tenantID, start, end, granularity, metricNames)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"series": points})
}

// AdSpendBreakdown returns per-campaign spend over a date range.
func (s *Server) AdSpendBreakdown(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	start, end, err := parseDateRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.metricsSvc.AdSpendBreakdown(c.Request.Context(), tenantID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": breakdown})
}

func parseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(startRaw), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("start_date", "invalid", "start_date must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(endRaw), time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, newValidationError("end_date", "invalid", "end_date must be YYYY-MM-DD")
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, newValidationError("end_date", "invalid", "end_date must not be before start_date")
	}
	return start, end, nil
}
