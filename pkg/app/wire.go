package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/relayclaw/internal/backend"
	"github.com/flemzord/relayclaw/internal/backlog"
	"github.com/flemzord/relayclaw/internal/channel"
	"github.com/flemzord/relayclaw/internal/config"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/gateway"
	"github.com/flemzord/relayclaw/internal/lockfile"
	"github.com/flemzord/relayclaw/internal/memory"
	"github.com/flemzord/relayclaw/internal/metrics"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/reload"
	"github.com/flemzord/relayclaw/internal/security"
	"github.com/flemzord/relayclaw/internal/timezone"
)

// State file names inside state_dir.
const (
	LockFile     = "bot.lock"
	AuditFile    = "audit.jsonl"
	MemoryFile   = "memory.json"
	JobsFile     = "jobs.json"
	BacklogFile  = "backlog.json"
	TimezoneFile = "timezone.json"
	SessionFile  = "session.json"
)

// OpenOptions tunes Open.
type OpenOptions struct {
	Version string
	// LogOutput receives the root logger. Defaults to stderr.
	LogOutput io.Writer
	// LogLevel overrides log.level when non-empty.
	LogLevel string
	// Channel names the transport in the prompt preamble. Defaults to
	// "telegram".
	Channel string
	// Invoker replaces the claude CLI. Tests use a fake.
	Invoker backend.Invoker
}

// Stack is the relay core: the state lock, the shared security services,
// the stores and the orchestrator over them. Transports and servers are
// added by Assemble.
type Stack struct {
	Config   *config.Config
	Logger   *slog.Logger
	Redactor *security.Redactor
	Audit    *security.AuditLogger

	// Disabled features leave their store nil.
	Memory   *memory.Store
	Jobs     *cron.JobStore
	Backlog  *backlog.Store
	Timezone *timezone.Setting
	Sessions *backend.SessionStore

	Ops   *relay.Ops
	Relay *relay.Orchestrator
	// Dispatcher fires due jobs. Nil when scheduling is disabled.
	Dispatcher *relay.Dispatcher
	// Notifier fans scheduled replies out to every bound transport.
	Notifier *channel.Dispatcher
	Metrics  *metrics.Metrics
	Events   *gateway.EventHub

	version string
	lock    *lockfile.Lock
	closers []io.Closer
}

// NewLogger builds the root logger: a text handler behind the redactor.
func NewLogger(w io.Writer, level string, redactor *security.Redactor) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("app: log level: %w", err)
	}
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// Open takes the state lock and loads every enabled store. The returned
// Stack must be closed.
func Open(cfg *config.Config, opts OpenOptions) (*Stack, error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if opts.Channel == "" {
		opts.Channel = "telegram"
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	redactor := security.NewRedactor()
	if token := cfg.Gateway.Auth.BearerToken; token != "" {
		redactor.AddLiteral(token)
	}
	logger, err := NewLogger(opts.LogOutput, level, redactor)
	if err != nil {
		return nil, err
	}

	s := &Stack{Config: cfg, Logger: logger, Redactor: redactor, version: opts.Version}

	lock, err := lockfile.Acquire(cfg.StatePath(LockFile), logger)
	if err != nil {
		return nil, err
	}
	s.lock = lock

	auditFile, err := os.OpenFile(cfg.StatePath(AuditFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("app: open audit log: %w", err)
	}
	s.closers = append(s.closers, auditFile)
	s.Audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: auditFile, Redactor: redactor})

	s.openStores()

	invoker := opts.Invoker
	if invoker == nil {
		cli := backend.NewCLI(backend.Options{
			Path:            cfg.Backend.Path,
			Timeout:         cfg.Backend.Timeout,
			WorkDir:         cfg.Backend.WorkDir,
			AutoRefreshAuth: cfg.Backend.AutoRefreshAuth,
			Secrets:         []string{cfg.Gateway.Auth.BearerToken},
			Audit:           s.Audit,
			Logger:          logger,
		})
		invoker = backend.NewConversation(cli, s.Sessions, logger)
	}

	s.Metrics = metrics.New(metrics.Sizes{Facts: s.factCount, Jobs: s.jobCount})
	s.Events = gateway.NewEventHub(logger)
	s.Audit.Subscribe(s.Metrics.ObserveAudit)
	s.Audit.Subscribe(s.Events.ObserveAudit)
	s.Relay = relay.New(relay.Options{
		Ops:          s.Ops,
		Invoker:      invoker,
		Channel:      opts.Channel,
		AllowedTools: cfg.Backend.AllowedTools,
		AddDirs:      cfg.Backend.AddDirs,
		Observers:    []relay.Observer{s.Metrics, s.Events},
		Logger:       logger,
	})

	s.Notifier = channel.NewDispatcher()
	if s.Jobs != nil {
		s.Dispatcher = relay.NewDispatcher(relay.DispatcherOptions{
			Jobs:     s.Jobs,
			Handler:  s.Relay,
			Notifier: s.Notifier,
			Location: s.Timezone.Location,
			Logger:   logger,
		})
	}

	logger.Info("app: state loaded",
		"state_dir", cfg.StateDir,
		"memory", s.Memory != nil,
		"scheduling", s.Jobs != nil,
		"backlog", s.Backlog != nil,
		"timezone", s.Timezone.Name(),
	)
	return s, nil
}

func (s *Stack) openStores() {
	cfg, logger := s.Config, s.Logger

	s.Timezone = timezone.OpenSetting(cfg.StatePath(TimezoneFile), cfg.Scheduling.Timezone, logger)
	s.Sessions = backend.OpenSessionStore(cfg.StatePath(SessionFile), logger)
	if cfg.Memory.IsEnabled() {
		s.Memory = memory.Open(memory.Options{
			Path:     cfg.StatePath(MemoryFile),
			MaxFacts: cfg.Memory.MaxFacts,
			Logger:   logger,
		})
	}
	if cfg.Scheduling.IsEnabled() {
		s.Jobs = cron.OpenStore(cron.StoreOptions{Path: cfg.StatePath(JobsFile), Logger: logger})
	}
	if cfg.Backlog.IsEnabled() {
		s.Backlog = backlog.Open(cfg.StatePath(BacklogFile), logger)
	}

	s.Ops = relay.NewOps(relay.OpsOptions{
		Memory:   s.Memory,
		Jobs:     s.Jobs,
		Backlog:  s.Backlog,
		Timezone: s.Timezone,
		Resolver: timezone.NewResolver(),
		Logger:   logger,
	})
}

// Reloadables lists the stores whose files may be edited by hand.
func (s *Stack) Reloadables() []reload.Reloadable {
	targets := []reload.Reloadable{s.Timezone}
	if s.Memory != nil {
		targets = append(targets, s.Memory)
	}
	if s.Jobs != nil {
		targets = append(targets, s.Jobs)
	}
	if s.Backlog != nil {
		targets = append(targets, s.Backlog)
	}
	return targets
}

func (s *Stack) factCount() int {
	if s.Memory == nil {
		return 0
	}
	return s.Memory.Len()
}

func (s *Stack) jobCount() int {
	if s.Jobs == nil {
		return 0
	}
	return s.Jobs.Len()
}

// Close releases the audit log and the state lock.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	s.closers = nil
	errs = append(errs, s.lock.Release())
	return errors.Join(errs...)
}
