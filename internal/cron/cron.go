// Package cron stores the user's scheduled prompts and runs the minute
// ticker that fires them.
//
// Two kinds of job exist: recurring jobs driven by a standard five-field
// cron expression, and one-time jobs bound to an absolute local datetime.
// The JobStore owns the persisted list; the Scheduler owns the ticker.
package cron

import "context"

// Job is a unit of periodic work run by the Scheduler.
type Job interface {
	// Name identifies the job in logs and must be unique per Scheduler.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "* * * * *").
	Schedule() string

	// Run executes one tick. Implementations should honour ctx.Done().
	Run(ctx context.Context) error
}
