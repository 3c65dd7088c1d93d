// Package relay runs conversation turns: it composes the prompt, invokes
// the backend, applies the directives found in the reply and hands back
// the text to send.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/relayclaw/internal/backend"
	"github.com/flemzord/relayclaw/internal/directive"
)

// ErrTurnFailed wraps every backend failure returned by Handle.
var ErrTurnFailed = errors.New("relay: turn failed")

// DefaultKey is the conversation key used when a turn names none.
const DefaultKey = "default"

const tracerName = "github.com/flemzord/relayclaw/internal/relay"

// Source identifies where a turn came from.
type Source string

// Turn sources.
const (
	SourceUser      Source = "user"
	SourceScheduled Source = "scheduled"
	SourceConsole   Source = "console"
	SourceReplay    Source = "replay"
)

// Turn is one request to the backend.
type Turn struct {
	// Key selects the lane. Turns sharing a key never overlap.
	Key  string
	Text string
	// Source defaults to SourceUser, or SourceScheduled when Scheduled is set.
	Source Source
	// Scheduled marks an automated run: the prompt allows silence.
	Scheduled bool
	// JobID is the firing job, zero for interactive turns.
	JobID int
	// AddDirs extends the backend's readable directories for this turn
	// only, e.g. the folder holding an uploaded file.
	AddDirs []string
	// Transient marks input that does not outlive the turn, such as an
	// upload removed afterwards. Such turns are never backlogged.
	Transient bool
}

// Outcome is the result of a turn.
type Outcome struct {
	// Text is the reply for the user. On failure it explains what went wrong.
	Text string
	// Suppress is set when the backend asked to stay silent.
	Suppress bool
	Applied  []Applied
	// Errors holds the malformed directives that were skipped.
	Errors     []error
	Duration   time.Duration
	Refreshed  bool
	Backlogged bool
}

// Options configures an Orchestrator.
type Options struct {
	Ops     *Ops
	Invoker backend.Invoker
	// Channel names the transport in the prompt preamble.
	Channel      string
	AllowedTools []string
	AddDirs      []string
	Tracer       trace.Tracer
	Observers    []Observer
	Logger       *slog.Logger
	Now          func() time.Time // injectable for testing
}

// Orchestrator runs turns one lane at a time.
type Orchestrator struct {
	ops          *Ops
	invoker      backend.Invoker
	channel      string
	allowedTools []string
	addDirs      []string
	tracer       trace.Tracer
	observers    []Observer
	logger       *slog.Logger
	now          func() time.Time
	lanes        *LaneLock

	mu       sync.Mutex
	inflight map[*turnState]struct{}
}

// turnState collects tool calls made while a turn's invoke is running.
type turnState struct {
	silent  bool
	applied []Applied
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	if opts.Ops == nil {
		opts.Ops = NewOps(OpsOptions{Logger: opts.Logger})
	}
	return &Orchestrator{
		ops:          opts.Ops,
		invoker:      opts.Invoker,
		channel:      opts.Channel,
		allowedTools: opts.AllowedTools,
		addDirs:      opts.AddDirs,
		tracer:       opts.Tracer,
		observers:    opts.Observers,
		logger:       opts.Logger,
		now:          opts.Now,
		lanes:        NewLaneLock(),
		inflight:     make(map[*turnState]struct{}),
	}
}

// Ops returns the shared store operations.
func (o *Orchestrator) Ops() *Ops { return o.ops }

// AddObserver registers obs for subsequent turns. It is not safe to call
// while turns are running.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.observers = append(o.observers, obs)
}

// SetAllowedTools replaces the tool allowlist passed to the backend. It is
// not safe to call while turns are running.
func (o *Orchestrator) SetAllowedTools(tools []string) {
	o.allowedTools = tools
}

// Busy reports whether a turn holds the lane for key.
func (o *Orchestrator) Busy(key string) bool {
	if key == "" {
		key = DefaultKey
	}
	return o.lanes.Busy(key)
}

// Handle runs one turn. It waits for the turn's lane, so concurrent calls
// on the same key are serialised. A backend failure returns an error
// wrapping ErrTurnFailed together with an Outcome whose Text explains the
// failure; the stores are left untouched in that case.
func (o *Orchestrator) Handle(ctx context.Context, turn Turn) (Outcome, error) {
	if turn.Key == "" {
		turn.Key = DefaultKey
	}
	if turn.Source == "" {
		turn.Source = SourceUser
		if turn.Scheduled {
			turn.Source = SourceScheduled
		}
	}

	if err := o.lanes.Acquire(ctx, turn.Key); err != nil {
		return Outcome{}, fmt.Errorf("relay: wait for lane %q: %w", turn.Key, err)
	}
	defer o.lanes.Release(turn.Key)

	ctx, span := o.tracer.Start(ctx, "relay.turn", trace.WithAttributes(
		attribute.String("relay.source", string(turn.Source)),
		attribute.Bool("relay.scheduled", turn.Scheduled),
		attribute.Int("relay.job_id", turn.JobID),
	))
	defer span.End()

	started := o.now()
	out, err := o.run(ctx, turn)
	out.Duration = o.now().Sub(started)

	span.SetAttributes(
		attribute.Int("relay.directives", len(out.Applied)),
		attribute.Int("relay.directive_errors", len(out.Errors)),
		attribute.Bool("relay.suppressed", out.Suppress),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
	}

	o.logger.Info("relay: turn finished",
		"source", turn.Source,
		"job", turn.JobID,
		"directives", len(out.Applied),
		"suppressed", out.Suppress,
		"duration", out.Duration,
		"failed", err != nil,
	)

	rec := newTurnRecord(turn, out, err, started)
	for _, obs := range o.observers {
		obs.ObserveTurn(ctx, rec)
	}
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, turn Turn) (Outcome, error) {
	state := o.track()
	resp, err := o.invoke(ctx, o.compose(turn), turn.AddDirs)
	toolSilent, toolApplied := o.untrack(state)
	if err != nil {
		out, ferr := o.failed(turn, err)
		out.Applied = toolApplied
		return out, ferr
	}

	parsed := directive.Parse(resp.Text)
	out := Outcome{
		Suppress:  toolSilent || parsed.Silent(),
		Applied:   toolApplied,
		Refreshed: resp.Refreshed,
	}

	var notices []string
	for _, perr := range parsed.Errors {
		out.Errors = append(out.Errors, perr)
		notices = append(notices, fmt.Sprintf("⚠ Ignored %s (%v)", perr.Raw, perr.Err))
		o.logger.Warn("relay: malformed directive skipped", "tag", perr.Raw, "error", perr.Err)
	}
	for _, d := range parsed.Directives {
		a := o.ops.Apply(d)
		out.Applied = append(out.Applied, a)
		if a.Notice != "" {
			notices = append(notices, a.Notice)
		}
	}

	out.Text = joinNonEmpty(parsed.CleanText, strings.Join(notices, "\n\n"))
	return out, nil
}

func (o *Orchestrator) compose(turn Turn) string {
	tz := o.ops.Timezone()
	pc := PromptContext{
		Channel:           o.channel,
		Now:               tz.In(o.now()),
		Zone:              tz.Name(),
		MemoryEnabled:     o.ops.MemoryEnabled(),
		SchedulingEnabled: o.ops.SchedulingEnabled(),
		Scheduled:         turn.Scheduled,
		Text:              turn.Text,
	}
	if pc.MemoryEnabled {
		pc.Memory = o.ops.Memory().RenderForPrompt()
	}
	if pc.SchedulingEnabled {
		pc.JobCount = o.ops.Jobs().Len()
	}
	return BuildPrompt(pc)
}

func (o *Orchestrator) invoke(ctx context.Context, prompt string, extraDirs []string) (backend.Response, error) {
	ctx, span := o.tracer.Start(ctx, "backend.invoke")
	defer span.End()

	resp, err := o.invoker.Invoke(ctx, backend.Request{
		Prompt:       prompt,
		AllowedTools: o.allowedTools,
		AddDirs:      append(slices.Clip(o.addDirs), extraDirs...),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invoke failed")
		return resp, err
	}
	span.SetAttributes(
		attribute.Int("backend.reply_bytes", len(resp.Text)),
		attribute.Bool("backend.refreshed", resp.Refreshed),
	)
	return resp, nil
}

func (o *Orchestrator) failed(turn Turn, err error) (Outcome, error) {
	wrapped := fmt.Errorf("%w: %w", ErrTurnFailed, err)

	if backend.IsAuthError(err) && o.ops.BacklogEnabled() && turn.Source != SourceScheduled && !turn.Transient {
		n, berr := o.ops.saveToBacklog(turn.Text)
		if berr == nil {
			o.logger.Warn("relay: backend auth failed, message saved to backlog", "pending", n)
			return Outcome{
				Text: fmt.Sprintf("Authentication error. Message saved to backlog (%d pending).\n"+
					"Re-authenticate with 'claude auth login', then /replaybacklog.", n),
				Backlogged: true,
			}, wrapped
		}
		o.logger.Error("relay: could not save message to backlog", "error", berr)
	}

	o.logger.Error("relay: turn failed", "source", turn.Source, "job", turn.JobID, "error", err)
	return Outcome{Text: FailureReply(err)}, wrapped
}

// FailureReply renders a backend failure for the user.
func FailureReply(err error) string {
	var (
		timeout *backend.TimeoutError
		process *backend.ProcessError
	)
	switch {
	case errors.As(err, &timeout):
		return fmt.Sprintf("Sorry, no answer within %s. Please try again.", timeout.After)
	case backend.IsAuthError(err):
		return "Authentication error. Re-authenticate with 'claude auth login'."
	case errors.As(err, &process) && process.ExitCode < 0:
		return "Sorry, the backend could not be started."
	case errors.As(err, &process):
		return fmt.Sprintf("Sorry, the backend failed (exit code %d).", process.ExitCode)
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	default:
		return "Sorry, something went wrong."
	}
}

// ApplyToolCall executes a tool invocation made by the backend. It runs
// inside the invoke of the current turn, so it goes through the store
// locks only. Effects are attributed to every turn in flight.
func (o *Orchestrator) ApplyToolCall(name string, args map[string]any) (string, error) {
	d, err := directive.FromToolCall(name, args)
	if err != nil {
		var de *directive.Error
		kind := directive.Kind(name)
		if errors.As(err, &de) && de.Kind != "" {
			kind = de.Kind
		}
		o.record(Applied{Directive: directive.Directive{Kind: kind}, Err: err})
		return "", err
	}

	if d.Kind == directive.KindSilent {
		o.mu.Lock()
		for st := range o.inflight {
			st.silent = true
		}
		o.mu.Unlock()
		o.record(Applied{Directive: d, Result: "Staying silent."})
		return "OK, no message will be sent.", nil
	}

	a := o.ops.Apply(d)
	o.record(a)
	if a.Err != nil {
		return "", a.Err
	}
	return a.Result, nil
}

func (o *Orchestrator) track() *turnState {
	st := &turnState{}
	o.mu.Lock()
	o.inflight[st] = struct{}{}
	o.mu.Unlock()
	return st
}

func (o *Orchestrator) untrack(st *turnState) (bool, []Applied) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, st)
	return st.silent, st.applied
}

func (o *Orchestrator) record(a Applied) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for st := range o.inflight {
		st.applied = append(st.applied, a)
	}
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
