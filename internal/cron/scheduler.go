package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives Jobs from a robfig/cron engine. A tick that lands while
// the same job is still running is dropped, and a panicking run is logged
// instead of taking the process down.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []Job
	location *time.Location
	logger   *slog.Logger

	engine *cron.Cron
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation sets the zone schedules are evaluated in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// NewScheduler returns an idle Scheduler.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{location: time.UTC, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterJob queues j for Start. Names must be unique.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.Name() == j.Name() {
			return fmt.Errorf("cron: job %q already registered", j.Name())
		}
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start schedules every registered job and starts the engine. Runs get a
// context derived from ctx that Stop cancels.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	engine := cron.New(
		cron.WithParser(expressionParser),
		cron.WithLocation(s.location),
		cron.WithLogger(engineLogger{s.logger}),
	)

	for _, j := range s.jobs {
		log := engineLogger{s.logger.With("job", j.Name())}
		// Recover sits inside the skip slot: SkipIfStillRunning only hands
		// the slot back when the wrapped run returns normally.
		wrapped := cron.NewChain(cron.SkipIfStillRunning(log), cron.Recover(log)).
			Then(tick{ctx: runCtx, job: j, logger: s.logger})
		if _, err := engine.AddJob(j.Schedule(), wrapped); err != nil {
			cancel()
			return fmt.Errorf("cron: job %q: bad schedule %q: %w", j.Name(), j.Schedule(), err)
		}
	}

	s.engine, s.cancel = engine, cancel
	engine.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs), "location", s.location.String())
	return nil
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.engine.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stop: %w", ctx.Err())
	}
}

// tick adapts a Job to the engine's context-free cron.Job.
type tick struct {
	ctx    context.Context
	job    Job
	logger *slog.Logger
}

func (t tick) Run() {
	if t.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := t.job.Run(t.ctx); err != nil {
		t.logger.Error("cron: job failed", "job", t.job.Name(), "error", err)
		return
	}
	t.logger.Debug("cron: job done", "job", t.job.Name(), "took", time.Since(start))
}

// engineLogger routes robfig/cron's logging to slog. Engine chatter goes
// to debug; skipped ticks are worth a warning.
type engineLogger struct{ l *slog.Logger }

func (e engineLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		e.l.Warn("cron: previous run still in progress, tick skipped")
		return
	}
	e.l.Debug("cron: "+msg, kv...)
}

func (e engineLogger) Error(err error, msg string, kv ...any) {
	e.l.Error("cron: "+msg, append(kv, "error", err)...)
}
