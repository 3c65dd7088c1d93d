package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/relayclaw/internal/backlog"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/memory"
	"github.com/flemzord/relayclaw/internal/statefile"
	"github.com/flemzord/relayclaw/internal/timezone"
)

// Disabled-feature errors.
var (
	ErrMemoryDisabled     = errors.New("relay: memory disabled")
	ErrSchedulingDisabled = errors.New("relay: scheduling disabled")
	ErrBacklogDisabled    = errors.New("relay: backlog disabled")
)

// maxZoneCandidates bounds the list shown for an ambiguous timezone query.
const maxZoneCandidates = 10

// UserError carries a message meant for the person at the keyboard next to
// the underlying cause.
type UserError struct {
	Msg string
	Err error
}

func (e *UserError) Error() string { return e.Msg }

func (e *UserError) Unwrap() error { return e.Err }

func userError(cause error, format string, args ...any) error {
	return &UserError{Msg: fmt.Sprintf(format, args...), Err: cause}
}

// Describe renders err for a chat reply.
func Describe(err error) string {
	var ue *UserError
	switch {
	case errors.As(err, &ue):
		return ue.Msg
	case errors.Is(err, ErrMemoryDisabled):
		return "Memory is disabled."
	case errors.Is(err, ErrSchedulingDisabled):
		return "Cron scheduling is disabled."
	case errors.Is(err, ErrBacklogDisabled):
		return "Backlog is disabled."
	default:
		return "Error: " + err.Error()
	}
}

// OpsOptions wires the stores behind Ops. A nil store disables the feature.
type OpsOptions struct {
	Memory   *memory.Store
	Jobs     *cron.JobStore
	Backlog  *backlog.Store
	Timezone *timezone.Setting
	Resolver *timezone.Resolver
	Logger   *slog.Logger
}

// Ops are the user-facing store operations shared by chat commands, MCP
// tools and the directive applier. Every operation returns a short
// human-readable result.
type Ops struct {
	memory   *memory.Store
	jobs     *cron.JobStore
	backlog  *backlog.Store
	tz       *timezone.Setting
	resolver *timezone.Resolver
	logger   *slog.Logger
}

// NewOps creates Ops over the given stores.
func NewOps(opts OpsOptions) *Ops {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timezone == nil {
		opts.Timezone = timezone.OpenSetting("", "", opts.Logger)
	}
	if opts.Resolver == nil {
		opts.Resolver = timezone.NewResolver()
	}
	return &Ops{
		memory:   opts.Memory,
		jobs:     opts.Jobs,
		backlog:  opts.Backlog,
		tz:       opts.Timezone,
		resolver: opts.Resolver,
		logger:   opts.Logger,
	}
}

// MemoryEnabled reports whether a fact store is wired.
func (o *Ops) MemoryEnabled() bool { return o.memory != nil }

// SchedulingEnabled reports whether a job store is wired.
func (o *Ops) SchedulingEnabled() bool { return o.jobs != nil }

// BacklogEnabled reports whether a backlog is wired.
func (o *Ops) BacklogEnabled() bool { return o.backlog != nil }

// Memory returns the fact store, nil when disabled.
func (o *Ops) Memory() *memory.Store { return o.memory }

// Jobs returns the job store, nil when disabled.
func (o *Ops) Jobs() *cron.JobStore { return o.jobs }

// Backlog returns the backlog, nil when disabled.
func (o *Ops) Backlog() *backlog.Store { return o.backlog }

// Timezone returns the configured zone setting.
func (o *Ops) Timezone() *timezone.Setting { return o.tz }

// persisted drops write failures: the stores log them and keep serving the
// in-memory state.
func persisted(err error) error {
	if errors.Is(err, statefile.ErrPersist) {
		return nil
	}
	return err
}

// Remember stores fact.
func (o *Ops) Remember(fact string) (string, error) {
	if o.memory == nil {
		return "", ErrMemoryDisabled
	}
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return "", userError(nil, "Nothing to remember.")
	}

	res, err := o.memory.AddUnique(fact)
	if err = persisted(err); err != nil {
		return "", err
	}
	if res.Existing {
		return fmt.Sprintf("Already remembered: %q", res.Fact.Text), nil
	}

	msg := fmt.Sprintf("Remembered: %q", res.Fact.Text)
	if len(res.Evicted) > 0 {
		msg += "\n\n" + memoryFullWarning(o.memory.Max(), res.Evicted)
	}
	return msg, nil
}

func memoryFullWarning(max int, evicted []memory.Fact) string {
	return fmt.Sprintf("Warning: memory full (%d). Oldest fact forgotten: %q", max, evicted[0].Text)
}

// Forget removes facts by 1-based index or by keyword.
func (o *Ops) Forget(selector string) (string, error) {
	if o.memory == nil {
		return "", ErrMemoryDisabled
	}
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", userError(nil, "Give a keyword or an index to forget.")
	}

	if index, ok := memory.ParseIndex(selector); ok {
		fact, err := o.memory.RemoveAt(index)
		if errors.Is(err, memory.ErrIndexOutOfRange) {
			return "", userError(err, "Invalid index %d. Valid range: 1-%d.", index, o.memory.Len())
		}
		if err = persisted(err); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed memory %d: %q", index, fact.Text), nil
	}

	removed, err := o.memory.RemoveMatching(selector)
	if err = persisted(err); err != nil {
		return "", err
	}
	switch len(removed) {
	case 0:
		return fmt.Sprintf("No memories matching %q.", selector), nil
	case 1:
		return fmt.Sprintf("Removed 1 memory matching %q.", selector), nil
	default:
		return fmt.Sprintf("Removed %d memories matching %q.", len(removed), selector), nil
	}
}

// ListMemories renders the stored facts.
func (o *Ops) ListMemories() (string, error) {
	if o.memory == nil {
		return "", ErrMemoryDisabled
	}
	facts := o.memory.List()
	if len(facts) == 0 {
		return "No memories stored.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Stored memories (%d):\n\n", len(facts))
	for i, f := range facts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// AddCron adds a recurring job.
func (o *Ops) AddCron(expr, prompt string) (string, error) {
	if o.jobs == nil {
		return "", ErrSchedulingDisabled
	}
	expr, prompt = strings.TrimSpace(expr), strings.TrimSpace(prompt)
	if prompt == "" {
		return "", userError(nil, "Prompt must not be empty.")
	}
	job, err := o.jobs.AddRecurring(expr, prompt)
	if errors.Is(err, cron.ErrInvalidSchedule) {
		return "", userError(err, "Invalid cron expression: %s", expr)
	}
	if err = persisted(err); err != nil {
		return "", err
	}
	return fmt.Sprintf("Cron job added: %s — %s", job.Schedule, job.Prompt), nil
}

// ScheduleOnce adds a one-time job. datetime is read in the configured zone.
func (o *Ops) ScheduleOnce(datetime, prompt string) (string, error) {
	if o.jobs == nil {
		return "", ErrSchedulingDisabled
	}
	datetime, prompt = strings.TrimSpace(datetime), strings.TrimSpace(prompt)
	if prompt == "" {
		return "", userError(nil, "Prompt must not be empty.")
	}
	loc := o.tz.Location()
	if _, err := cron.ParseDateTime(datetime, loc); err != nil {
		return "", userError(err, "Invalid datetime: %s. Use YYYY-MM-DD HH:MM or YYYY-MM-DDTHH:MM:SS.", datetime)
	}

	job, err := o.jobs.AddOnce(datetime, prompt, loc)
	if errors.Is(err, cron.ErrInvalidSchedule) {
		return "", userError(err, "Datetime must be in the future.")
	}
	if err = persisted(err); err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled one-time task: %s — %s", job.Schedule, job.Prompt), nil
}

// RemoveCron deletes the job at the 1-based index.
func (o *Ops) RemoveCron(index int) (string, error) {
	if o.jobs == nil {
		return "", ErrSchedulingDisabled
	}
	job, err := o.jobs.Remove(index)
	if errors.Is(err, cron.ErrJobNotFound) {
		return "", userError(err, "Invalid index %d. Valid range: 1-%d.", index, o.jobs.Len())
	}
	if err = persisted(err); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed job %d: %s %s — %s", index, job.Label(), job.Schedule, job.Prompt), nil
}

// ListCron renders the job list.
func (o *Ops) ListCron() (string, error) {
	if o.jobs == nil {
		return "", ErrSchedulingDisabled
	}
	return FormatJobs(o.jobs.List(), o.tz.Name()), nil
}

// FormatJobs renders jobs with 1-based indexes. One-time jobs written in a
// zone other than current are suffixed with that zone.
func FormatJobs(jobs []cron.CronJob, current string) string {
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}
	var b strings.Builder
	for i, j := range jobs {
		fmt.Fprintf(&b, "%d. %s %s — %s", i+1, j.Label(), j.Schedule, j.Prompt)
		if j.Kind == cron.KindOneTime && j.Timezone != "" && j.Timezone != current {
			fmt.Fprintf(&b, " (%s)", j.Timezone)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// CurrentTimezone describes the configured zone.
func (o *Ops) CurrentTimezone() string {
	return fmt.Sprintf("Current timezone: %s", o.tz.Name())
}

// SetTimezone resolves query to a zone and makes it current.
func (o *Ops) SetTimezone(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return o.CurrentTimezone(), nil
	}

	name, err := o.resolver.Lookup(query)
	var ambiguous *timezone.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		candidates := ambiguous.Candidates
		var b strings.Builder
		fmt.Fprintf(&b, "Multiple timezones match %q:\n", query)
		for i, c := range candidates {
			if i == maxZoneCandidates {
				fmt.Fprintf(&b, "... and %d more\n", len(candidates)-maxZoneCandidates)
				break
			}
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("Please be more specific.")
		return "", userError(err, "%s", b.String())
	case errors.Is(err, timezone.ErrZoneNotFound):
		return "", userError(err, "Timezone not found: %q", query)
	case err != nil:
		return "", err
	}

	if err := persisted(o.tz.Set(name)); err != nil {
		return "", userError(err, "Timezone not found: %q", query)
	}
	return fmt.Sprintf("Timezone set to %s.", name), nil
}

// ListBacklog renders the pending backlog.
func (o *Ops) ListBacklog() (string, error) {
	if o.backlog == nil {
		return "", ErrBacklogDisabled
	}
	items := o.backlog.List()
	if len(items) == 0 {
		return "Backlog is empty.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pending backlog items (%d):\n\n", len(items))
	for i, it := range items {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, it.CreatedAt.In(o.tz.Location()).Format("2006-01-02 15:04"), it.Prompt)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ClearBacklog drops every pending item.
func (o *Ops) ClearBacklog() (string, error) {
	if o.backlog == nil {
		return "", ErrBacklogDisabled
	}
	if err := persisted(o.backlog.Clear()); err != nil {
		return "", err
	}
	return "Backlog cleared.", nil
}

// PopBacklog removes the item at the 1-based index, or every item when
// index is 0, and returns the prompts oldest first.
func (o *Ops) PopBacklog(index int) ([]string, error) {
	if o.backlog == nil {
		return nil, ErrBacklogDisabled
	}

	var items []backlog.Item
	if index == 0 {
		all, err := o.backlog.PopAll()
		if err = persisted(err); err != nil {
			return nil, err
		}
		items = all
	} else {
		item, err := o.backlog.Pop(index)
		if errors.Is(err, backlog.ErrIndexOutOfRange) {
			return nil, userError(err, "Invalid index %d. Valid range: 1-%d.", index, o.backlog.Len())
		}
		if err = persisted(err); err != nil {
			return nil, err
		}
		items = []backlog.Item{item}
	}

	prompts := make([]string, len(items))
	for i, it := range items {
		prompts[i] = it.Prompt
	}
	return prompts, nil
}

// saveToBacklog stores prompt and returns the pending count.
func (o *Ops) saveToBacklog(prompt string) (int, error) {
	if o.backlog == nil {
		return 0, ErrBacklogDisabled
	}
	n, err := o.backlog.Add(prompt)
	return n, persisted(err)
}
