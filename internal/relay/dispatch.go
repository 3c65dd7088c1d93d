package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/relayclaw/internal/cron"
)

// Notifier delivers a scheduled reply to the user.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, text string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, text string) error { return f(ctx, text) }

// Handler runs a turn. *Orchestrator implements it.
type Handler interface {
	Handle(ctx context.Context, turn Turn) (Outcome, error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Jobs     *cron.JobStore
	Handler  Handler
	Notifier Notifier
	// Location returns the zone due jobs are evaluated in. Nil means UTC.
	Location func() *time.Location
	Logger   *slog.Logger
	Now      func() time.Time // injectable for testing
}

// Dispatcher fires due jobs. It is registered with the cron scheduler at
// minute resolution; each tick collects the due jobs, marks them fired and
// runs their prompts in id order.
type Dispatcher struct {
	jobs     *cron.JobStore
	handler  Handler
	notifier Notifier
	location func() *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// Compile-time interface check.
var _ cron.Job = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = func() *time.Location { return time.UTC }
	}
	return &Dispatcher{
		jobs:     opts.Jobs,
		handler:  opts.Handler,
		notifier: opts.Notifier,
		location: opts.Location,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Name implements cron.Job.
func (d *Dispatcher) Name() string { return "dispatch" }

// Schedule implements cron.Job.
func (d *Dispatcher) Schedule() string { return "* * * * *" }

// Run implements cron.Job.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.Tick(ctx, d.now())
}

// Tick fires every job due at now. A job is marked fired before its prompt
// runs, so a slow or failing turn never fires it twice for one minute.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) error {
	asOf := now.In(d.location())
	due := d.jobs.Due(asOf)
	if len(due) == 0 {
		return nil
	}
	d.logger.Debug("relay: jobs due", "count", len(due), "as_of", asOf.Format(time.RFC3339))

	var errs []error
	for _, job := range due {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}

		if err := d.jobs.MarkFired(job.ID, asOf); err != nil {
			if errors.Is(err, cron.ErrJobNotFound) {
				// Removed since Due was computed.
				continue
			}
			d.logger.Error("relay: could not record job run", "job", job.ID, "error", err)
		}

		if _, err := d.fire(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("relay: job %d: %w", job.ID, err))
		}
	}
	return errors.Join(errs...)
}

// TestFire runs the job at the 1-based index now. The job's run state is
// left untouched and one-time jobs are kept.
func (d *Dispatcher) TestFire(ctx context.Context, index int) (Outcome, error) {
	job, ok := d.jobs.Get(index)
	if !ok {
		return Outcome{}, fmt.Errorf("relay: %w: index %d", cron.ErrJobNotFound, index)
	}
	return d.fire(ctx, job)
}

func (d *Dispatcher) fire(ctx context.Context, job cron.CronJob) (Outcome, error) {
	d.logger.Info("relay: firing job", "job", job.ID, "kind", job.Kind)

	out, err := d.handler.Handle(ctx, Turn{
		Text:      job.Prompt,
		Source:    SourceScheduled,
		Scheduled: true,
		JobID:     job.ID,
	})
	if out.Suppress {
		d.logger.Info("relay: scheduled reply suppressed", "job", job.ID)
		return out, err
	}
	if out.Text == "" || d.notifier == nil {
		return out, err
	}
	if nerr := d.notifier.Notify(ctx, out.Text); nerr != nil {
		d.logger.Error("relay: could not deliver scheduled reply", "job", job.ID, "error", nerr)
		return out, errors.Join(err, fmt.Errorf("relay: notify: %w", nerr))
	}
	return out, err
}
