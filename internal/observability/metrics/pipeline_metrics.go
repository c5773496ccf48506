package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonUniqueViolation  = "unique_violation"
	JobReasonDB               = "db"
	JobReasonUnknown          = "unknown"
)

const (
	EventOutcomeAccepted  = "accepted"
	EventOutcomeRejected  = "rejected"
	EventOutcomeDuplicate = "duplicate"
	EventOutcomeProcessed = "processed"
	EventOutcomeFailed    = "failed"
)

// PipelineMetrics captures ingest, processing and scheduler health signals.
type PipelineMetrics struct {
	ingestedEvents   *prometheus.CounterVec
	pollCursors      *prometheus.CounterVec
	processedEvents  *prometheus.CounterVec
	summariesWritten prometheus.Counter
	jobRuns          *prometheus.CounterVec
	jobSkips         *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobTimeouts      *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "halo"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	ingestedEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_ingested_events_total",
		Help:        "Raw events seen at intake by source and outcome.",
		ConstLabels: constLabels,
	}, []string{"source", "outcome"})
	pollCursors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_poll_cursors_total",
		Help:        "Sync cursors handled per poll cycle by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	processedEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_processed_events_total",
		Help:        "Raw events transformed into canonical records by outcome.",
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"})
	summariesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "halo_summaries_written_total",
		Help:        "Daily summary rows recomputed by the aggregation job.",
		ConstLabels: constLabels,
	})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobSkips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_scheduler_job_skips_total",
		Help:        "Scheduler ticks skipped because the previous run was still going.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "halo_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency to protect pipeline freshness.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_scheduler_job_timeouts_total",
		Help:        "Scheduler job timeouts that threaten summary freshness.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "halo_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})

	registerer.MustRegister(
		ingestedEvents,
		pollCursors,
		processedEvents,
		summariesWritten,
		jobRuns,
		jobSkips,
		jobDuration,
		jobTimeouts,
		jobErrors,
	)

	return &PipelineMetrics{
		ingestedEvents:   ingestedEvents,
		pollCursors:      pollCursors,
		processedEvents:  processedEvents,
		summariesWritten: summariesWritten,
		jobRuns:          jobRuns,
		jobSkips:         jobSkips,
		jobDuration:      jobDuration,
		jobTimeouts:      jobTimeouts,
		jobErrors:        jobErrors,
	}
}

// ObserveIngest records the outcome split of one ingest batch.
func (m *PipelineMetrics) ObserveIngest(source string, accepted, rejected, duplicates int) {
	if m == nil || m.ingestedEvents == nil {
		return
	}
	if accepted > 0 {
		m.ingestedEvents.WithLabelValues(source, EventOutcomeAccepted).Add(float64(accepted))
	}
	if rejected > 0 {
		m.ingestedEvents.WithLabelValues(source, EventOutcomeRejected).Add(float64(rejected))
	}
	if duplicates > 0 {
		m.ingestedEvents.WithLabelValues(source, EventOutcomeDuplicate).Add(float64(duplicates))
	}
}

// ObservePollCycle records cursor outcomes of one orchestrator pass.
func (m *PipelineMetrics) ObservePollCycle(polled, failed int) {
	if m == nil || m.pollCursors == nil {
		return
	}
	if polled > 0 {
		m.pollCursors.WithLabelValues(EventOutcomeProcessed).Add(float64(polled))
	}
	if failed > 0 {
		m.pollCursors.WithLabelValues(EventOutcomeFailed).Add(float64(failed))
	}
}

// ObserveProcessed records transform outcomes for one processor drain.
func (m *PipelineMetrics) ObserveProcessed(eventType string, processed, failed int) {
	if m == nil || m.processedEvents == nil {
		return
	}
	if processed > 0 {
		m.processedEvents.WithLabelValues(eventType, EventOutcomeProcessed).Add(float64(processed))
	}
	if failed > 0 {
		m.processedEvents.WithLabelValues(eventType, EventOutcomeFailed).Add(float64(failed))
	}
}

// AddSummariesWritten counts recomputed daily summary rows.
func (m *PipelineMetrics) AddSummariesWritten(count int) {
	if m == nil || m.summariesWritten == nil || count <= 0 {
		return
	}
	m.summariesWritten.Add(float64(count))
}

// IncJobRun increments the run counter for a scheduler job.
func (m *PipelineMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// IncJobSkip counts a tick dropped because the job was still in flight.
func (m *PipelineMetrics) IncJobSkip(job string) {
	if m == nil || m.jobSkips == nil {
		return
	}
	m.jobSkips.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *PipelineMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *PipelineMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *PipelineMetrics) IncJobError(job string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ClassifyJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if isUniqueViolation(err) {
		return JobReasonUniqueViolation
	}
	if isDBError(err) {
		return JobReasonDB
	}
	return JobReasonUnknown
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
