package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/growhalo/halo/internal/analytics/aggregation"
	"github.com/growhalo/halo/internal/clock"
	"github.com/growhalo/halo/internal/config"
	"github.com/growhalo/halo/internal/ingestion/polling"
	"github.com/growhalo/halo/internal/modeling/processor"
	obsmetrics "github.com/growhalo/halo/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

// Job is a pipeline stage the scheduler drives on an interval.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Pipeline   *config.PipelineConfigHolder `optional:"true"`
	Poller     *polling.Orchestrator
	Processor  *processor.Processor
	Aggregator *aggregation.Job
}

// entry pairs a job with its interval knob. inFlight guards against
// overlapping cycles: a tick that lands while the previous cycle is
// still running is skipped, not queued.
type entry struct {
	job      Job
	interval func(config.PipelineConfig) time.Duration
	inFlight atomic.Bool
}

type Scheduler struct {
	log      *zap.Logger
	clock    clock.Clock
	pipeline *config.PipelineConfigHolder
	entries  []*entry
	wg       sync.WaitGroup
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Poller == nil || p.Processor == nil || p.Aggregator == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		clock:    p.Clock,
		pipeline: p.Pipeline,
	}
	s.register(p.Poller, func(cfg config.PipelineConfig) time.Duration { return cfg.PollInterval })
	s.register(p.Processor, func(cfg config.PipelineConfig) time.Duration { return cfg.ProcessInterval })
	s.register(p.Aggregator, func(cfg config.PipelineConfig) time.Duration { return cfg.AggregateInterval })
	return s, nil
}

func (s *Scheduler) register(job Job, interval func(config.PipelineConfig) time.Duration) {
	s.entries = append(s.entries, &entry{job: job, interval: interval})
}

func (s *Scheduler) pipelineConfig() config.PipelineConfig {
	if s.pipeline == nil {
		return config.DefaultPipelineConfig()
	}
	return s.pipeline.Get()
}

func (s *Scheduler) jobTimeout() time.Duration {
	secs := s.pipelineConfig().JobTimeoutSeconds
	if secs <= 0 {
		secs = config.DefaultPipelineConfig().JobTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// runJob wraps one cycle of a job with a timeout and metrics. A cycle
// that hits its deadline is recorded as a timeout but not surfaced as
// an error; the next tick picks up where it left off.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	pm := obsmetrics.Pipeline()
	pm.IncJobRun(name)

	err := fn(ctx)
	pm.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		pm.IncJobTimeout(name)
	}
	pm.IncJobError(name, err)
	if isTimeout {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every job a single time, in pipeline order. Used by
// the CLI trigger path and tests; the interval loops call tick instead.
func (s *Scheduler) RunOnce(parent context.Context) error {
	timeout := s.jobTimeout()
	var err error
	for _, e := range s.entries {
		err = errors.Join(err, s.runJob(parent, e.job.Name(), timeout, e.job.Run))
	}
	return err
}

// RunJob executes the named job once, synchronously.
func (s *Scheduler) RunJob(parent context.Context, name string) error {
	for _, e := range s.entries {
		if e.job.Name() == name {
			return s.runJob(parent, name, s.jobTimeout(), e.job.Run)
		}
	}
	return fmt.Errorf("scheduler: unknown job %q", name)
}

// tick launches one cycle of the entry's job unless the previous cycle
// is still in flight. Returns false when the tick was skipped.
func (s *Scheduler) tick(ctx context.Context, e *entry) bool {
	if !e.inFlight.CompareAndSwap(false, true) {
		obsmetrics.Pipeline().IncJobSkip(e.job.Name())
		s.log.Debug("tick skipped, previous cycle still running", zap.String("job", e.job.Name()))
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer e.inFlight.Store(false)
		if err := s.runJob(ctx, e.job.Name(), s.jobTimeout(), e.job.Run); err != nil {
			s.log.Warn("job failed", zap.String("job", e.job.Name()), zap.Error(err))
		}
	}()
	return true
}

// Run drives every job on its own interval loop until ctx is canceled,
// then drains: it blocks until all in-flight cycles have returned so a
// shutdown never abandons half-written work.
func (s *Scheduler) Run(ctx context.Context) {
	for _, e := range s.entries {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	<-ctx.Done()
	s.wg.Wait()
	s.log.Info("scheduler drained")
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	interval := e.interval(s.pipelineConfig())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx, e)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, e)
			// Interval knobs reload at runtime; pick up changes per tick.
			if next := e.interval(s.pipelineConfig()); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}
