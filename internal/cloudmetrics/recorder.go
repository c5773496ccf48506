// Package cloudmetrics ships per-tenant accounting metrics to a hosted
// collector, separate from the operational /metrics surface.
package cloudmetrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Recorder interface {
	RecordIngestedEvents(tenantID, source string, count int)
	RecordSummariesComputed(tenantID string, count int)
	RecordPipelineError(tenantID, stage string)
}

type metrics struct {
	ingestedEvents    *prometheus.CounterVec
	summariesComputed *prometheus.CounterVec
	pipelineErrors    *prometheus.CounterVec
}

func newMetrics(registry *prometheus.Registry) *metrics {
	m := &metrics{
		ingestedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "halo_cloud_ingested_events_total",
			Help: "Events accepted into the raw store per tenant and source.",
		}, []string{"tenant_id", "source"}),
		summariesComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "halo_cloud_summaries_computed_total",
			Help: "Daily summary rows recomputed per tenant.",
		}, []string{"tenant_id"}),
		pipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "halo_cloud_pipeline_errors_total",
			Help: "Pipeline stage failures per tenant.",
		}, []string{"tenant_id", "stage"}),
	}
	if registry != nil {
		registry.MustRegister(m.ingestedEvents, m.summariesComputed, m.pipelineErrors)
	}
	return m
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordIngestedEvents(string, string, int) {}
func (noopRecorder) RecordSummariesComputed(string, int)      {}
func (noopRecorder) RecordPipelineError(string, string)       {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordIngestedEvents(tenantID, source string, count int) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordIngestedEvents(tenantID, source, count)
}

func RecordSummariesComputed(tenantID string, count int) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordSummariesComputed(tenantID, count)
}

func RecordPipelineError(tenantID, stage string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordPipelineError(tenantID, stage)
}

func (r *recorder) RecordIngestedEvents(tenantID, source string, count int) {
	if r == nil || r.metrics == nil || count <= 0 {
		return
	}
	r.metrics.ingestedEvents.WithLabelValues(normalizeLabel(tenantID), normalizeLabel(source)).
		Add(float64(count))
}

func (r *recorder) RecordSummariesComputed(tenantID string, count int) {
	if r == nil || r.metrics == nil || count <= 0 {
		return
	}
	r.metrics.summariesComputed.WithLabelValues(normalizeLabel(tenantID)).Add(float64(count))
}

func (r *recorder) RecordPipelineError(tenantID, stage string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.pipelineErrors.WithLabelValues(normalizeLabel(tenantID), normalizeLabel(stage)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
