package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/growhalo/halo/internal/clock"
	"github.com/growhalo/halo/internal/config"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	"go.uber.org/zap"
)

type stubJob struct {
	name        string
	runs        atomic.Int32
	release     chan struct{}
	started     chan struct{}
	startedOnce sync.Once
	err         error

	mu    sync.Mutex
	order *[]string
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.order != nil {
		j.mu.Lock()
		*j.order = append(*j.order, j.name)
		j.mu.Unlock()
	}
	if j.started != nil {
		j.startedOnce.Do(func() { close(j.started) })
	}
	if j.release != nil {
		<-j.release
	}
	return j.err
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return &Scheduler{
		log:   zap.NewNop(),
		clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
}

func TestRunOnceRunsJobsInPipelineOrder(t *testing.T) {
	var order []string
	s := newTestScheduler(t)
	for _, name := range []string{"poll", "process", "aggregate"} {
		s.register(&stubJob{name: name, order: &order}, nil)
	}

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(order) != 3 || order[0] != "poll" || order[1] != "process" || order[2] != "aggregate" {
		t.Fatalf("unexpected job order: %v", order)
	}
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	s := newTestScheduler(t)
	wantErr := errors.New("cursor table locked")
	s.register(&stubJob{name: "poll", err: wantErr}, nil)
	s.register(&stubJob{name: "process"}, nil)

	err := s.RunOnce(context.Background())
	if err == nil || !errors.Is(err, wantErr) {
		t.Fatalf("expected poll error to surface, got %v", err)
	}
}

func TestTickSkipsWhileJobInFlight(t *testing.T) {
	s := newTestScheduler(t)
	job := &stubJob{name: "process", release: make(chan struct{}), started: make(chan struct{})}
	s.register(job, nil)
	e := s.entries[0]

	started := job.started
	if !s.tick(context.Background(), e) {
		t.Fatal("first tick should start the job")
	}
	<-started
	if s.tick(context.Background(), e) {
		t.Fatal("second tick should be skipped while the first cycle runs")
	}

	close(job.release)
	s.wg.Wait()
	if got := job.runs.Load(); got != 1 {
		t.Fatalf("expected exactly 1 run, got %d", got)
	}

	if !s.tick(context.Background(), e) {
		t.Fatal("tick after the cycle finished should start a new run")
	}
	s.wg.Wait()
}

func TestRunDrainsInFlightJobsOnShutdown(t *testing.T) {
	s := newTestScheduler(t)
	job := &stubJob{name: "aggregate", release: make(chan struct{}), started: make(chan struct{})}
	s.register(job, func(config.PipelineConfig) time.Duration { return time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-job.started
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned while a job cycle was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(job.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not drain after the job finished")
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetPipelineMetricsForTest()
	obsmetrics.PipelineWithConfig(obsmetrics.Config{
		ServiceName: "halo",
		Environment: "test",
	})

	s := newTestScheduler(t)
	err := s.runJob(context.Background(), "poll", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected soft timeout, got %v", err)
	}

	labels := map[string]string{
		"service": "halo",
		"env":     "test",
		"job":     "poll",
	}
	if got := getCounterValue(t, registry, "halo_scheduler_job_timeouts_total", labels); got != 1 {
		t.Fatalf("expected timeout count 1, got %v", got)
	}

	errorLabels := map[string]string{
		"service": "halo",
		"env":     "test",
		"job":     "poll",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	if got := getCounterValue(t, registry, "halo_scheduler_job_errors_total", errorLabels); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRunJobUnknownName(t *testing.T) {
	s := newTestScheduler(t)
	s.register(&stubJob{name: "poll"}, nil)
	if err := s.RunJob(context.Background(), "compact"); err == nil {
		t.Fatal("expected error for unknown job name")
	}
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetPipelineMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
