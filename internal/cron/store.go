package cron

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/relayclaw/internal/statefile"
)

// ErrJobNotFound is returned when an index or id does not name a job.
var ErrJobNotFound = errors.New("cron: job not found")

// Kind distinguishes recurring from one-time jobs.
type Kind string

// Job kinds.
const (
	KindRecurring Kind = "recurring"
	KindOneTime   Kind = "one_time"
)

// CronJob is a persisted scheduled prompt.
type CronJob struct {
	ID       int    `json:"id"`
	Kind     Kind   `json:"kind"`
	Schedule string `json:"schedule"` // cron expression or local datetime
	Prompt   string `json:"prompt"`
	// Timezone is the zone a one-time datetime was written in.
	Timezone  string     `json:"timezone,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// Label returns the short display tag for the job kind.
func (j CronJob) Label() string {
	if j.Kind == KindOneTime {
		return "[ONCE]"
	}
	return "[CRON]"
}

// StoreOptions configures a JobStore.
type StoreOptions struct {
	Path   string
	Logger *slog.Logger
	Now    func() time.Time // injectable for testing
}

// JobStore is the persisted collection of scheduled jobs. Ids are assigned
// monotonically and never reused within a process. It is safe for
// concurrent use.
type JobStore struct {
	mu     sync.RWMutex
	path   string
	jobs   []CronJob
	nextID int
	dirty  bool
	logger *slog.Logger
	now    func() time.Time
}

// OpenStore loads the job list from opts.Path. A missing or corrupt file
// yields an empty store.
func OpenStore(opts StoreOptions) *JobStore {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &JobStore{
		path:   opts.Path,
		nextID: 1,
		logger: opts.Logger,
		now:    opts.Now,
	}
	s.mu.Lock()
	s.loadLocked()
	s.mu.Unlock()
	return s
}

// Path returns the backing file.
func (s *JobStore) Path() string { return s.path }

// Reload re-reads the backing file unless a change is still waiting to be
// persisted.
func (s *JobStore) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.logger.Warn("cron: reload skipped, unsaved changes pending", "path", s.path)
		return
	}
	s.loadLocked()
}

func (s *JobStore) loadLocked() {
	var jobs []CronJob
	found, err := statefile.Load(s.path, &jobs)
	if err != nil {
		s.logger.Warn("cron: ignoring unreadable jobs file", "path", s.path, "error", err)
	}
	if !found {
		jobs = nil
	}

	valid := jobs[:0:0]
	maxID := 0
	for _, j := range jobs {
		if j.Kind != KindRecurring && j.Kind != KindOneTime {
			s.logger.Warn("cron: dropping job with unknown kind", "id", j.ID, "kind", j.Kind)
			continue
		}
		maxID = max(maxID, j.ID)
		valid = append(valid, j)
	}
	for i := range valid {
		if valid[i].ID <= 0 {
			maxID++
			valid[i].ID = maxID
		}
	}

	s.jobs = valid
	s.nextID = max(s.nextID, maxID+1)
}

// AddRecurring validates expr and appends a recurring job. Nothing is
// changed when the expression is invalid.
func (s *JobStore) AddRecurring(expr, prompt string) (CronJob, error) {
	expr = strings.Join(strings.Fields(expr), " ")
	if err := ValidateExpression(expr); err != nil {
		return CronJob{}, err
	}
	if strings.TrimSpace(prompt) == "" {
		return CronJob{}, fmt.Errorf("%w: empty prompt", ErrInvalidSchedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.appendLocked(CronJob{
		Kind:     KindRecurring,
		Schedule: expr,
		Prompt:   prompt,
	})
	return job, s.persistLocked()
}

// AddOnce appends a one-time job firing at datetime, read in loc. The
// datetime must parse and lie strictly in the future.
func (s *JobStore) AddOnce(datetime, prompt string, loc *time.Location) (CronJob, error) {
	if loc == nil {
		loc = time.UTC
	}
	at, err := ParseDateTime(datetime, loc)
	if err != nil {
		return CronJob{}, err
	}
	if !at.After(s.now()) {
		return CronJob{}, fmt.Errorf("%w: %s is not in the future", ErrInvalidSchedule, strings.TrimSpace(datetime))
	}
	if strings.TrimSpace(prompt) == "" {
		return CronJob{}, fmt.Errorf("%w: empty prompt", ErrInvalidSchedule)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.appendLocked(CronJob{
		Kind:     KindOneTime,
		Schedule: strings.TrimSpace(datetime),
		Prompt:   prompt,
		Timezone: loc.String(),
	})
	return job, s.persistLocked()
}

func (s *JobStore) appendLocked(job CronJob) CronJob {
	job.ID = s.nextID
	job.CreatedAt = s.now().UTC()
	s.nextID++
	s.jobs = append(s.jobs, job)
	return job
}

// Remove deletes the job at the 1-based display index.
func (s *JobStore) Remove(index int) (CronJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 1 || index > len(s.jobs) {
		return CronJob{}, fmt.Errorf("%w: index %d (valid range 1-%d)", ErrJobNotFound, index, len(s.jobs))
	}

	removed := s.jobs[index-1]
	s.jobs = slices.Delete(slices.Clone(s.jobs), index-1, index)
	return removed, s.persistLocked()
}

// Get returns the job at the 1-based display index.
func (s *JobStore) Get(index int) (CronJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 1 || index > len(s.jobs) {
		return CronJob{}, false
	}
	return s.jobs[index-1], true
}

// List returns the jobs in creation order.
func (s *JobStore) List() []CronJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.jobs)
}

// Len returns the number of jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Due returns the jobs that should fire at asOf, in ascending id order.
// Recurring jobs are matched against the minute containing asOf, in asOf's
// location, and are skipped when they already ran for that minute. One-time
// jobs are due once their datetime is at or before asOf.
func (s *JobStore) Due(asOf time.Time) []CronJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minute := truncateMinute(asOf)
	var due []CronJob
	for _, j := range s.jobs {
		switch j.Kind {
		case KindRecurring:
			sched, err := ParseExpression(j.Schedule)
			if err != nil {
				s.logger.Warn("cron: skipping job with invalid expression", "id", j.ID, "error", err)
				continue
			}
			if j.LastRun != nil && !j.LastRun.Before(minute) {
				continue
			}
			if Matches(sched, minute) {
				due = append(due, j)
			}
		case KindOneTime:
			at, err := ParseDateTime(j.Schedule, s.jobLocation(j, asOf.Location()))
			if err != nil {
				s.logger.Warn("cron: skipping job with invalid datetime", "id", j.ID, "error", err)
				continue
			}
			if !at.After(asOf) {
				due = append(due, j)
			}
		}
	}

	slices.SortFunc(due, func(a, b CronJob) int { return a.ID - b.ID })
	return due
}

// MarkFired records that job id fired at asOf. Recurring jobs remember the
// minute so they do not fire twice in it; one-time jobs are deleted.
func (s *JobStore) MarkFired(id int, asOf time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.jobs, func(j CronJob) bool { return j.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}

	jobs := slices.Clone(s.jobs)
	switch jobs[i].Kind {
	case KindOneTime:
		jobs = slices.Delete(jobs, i, i+1)
		s.logger.Info("cron: one-time job completed and removed", "id", id)
	default:
		minute := truncateMinute(asOf)
		if last := jobs[i].LastRun; last == nil || minute.After(*last) {
			jobs[i].LastRun = &minute
		}
	}
	s.jobs = jobs
	return s.persistLocked()
}

// jobLocation resolves the zone a one-time job was written in.
func (s *JobStore) jobLocation(j CronJob, fallback *time.Location) *time.Location {
	if j.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		s.logger.Warn("cron: unknown job timezone, using current", "id", j.ID, "timezone", j.Timezone)
		return fallback
	}
	return loc
}

func (s *JobStore) persistLocked() error {
	if s.path == "" {
		return nil
	}

	jobs := s.jobs
	if jobs == nil {
		jobs = []CronJob{}
	}
	if err := statefile.Save(s.path, jobs); err != nil {
		s.dirty = true
		s.logger.Error("cron: persist failed, keeping in-memory state", "path", s.path, "error", err)
		return fmt.Errorf("cron: %w", err)
	}
	s.dirty = false
	return nil
}
