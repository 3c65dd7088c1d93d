// Package app wires the relay: it loads the configuration, opens the
// state, assembles the components in start order and runs them until the
// context ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/flemzord/relayclaw/internal/channel"
	"github.com/flemzord/relayclaw/internal/config"
	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/gateway"
	"github.com/flemzord/relayclaw/internal/mcpserver"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/reload"
	"github.com/flemzord/relayclaw/internal/security"
	"github.com/flemzord/relayclaw/internal/telemetry"
)

// ErrNoTransport is returned when neither a Telegram section nor a
// replacement transport is available.
var ErrNoTransport = errors.New("app: no transport configured (add a telegram section)")

// RunParams configures Run.
type RunParams struct {
	// ConfigPath is an explicit configuration file. When empty the
	// standard locations are searched.
	ConfigPath string
	Version    string
	// Transport replaces the Telegram channel, e.g. the local console.
	Transport channel.Channel
	// Open is passed to Open. Version is filled from the field above.
	Open OpenOptions
}

// LoadConfig resolves, loads and validates the configuration.
func LoadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.ResolvePath(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Run loads the configuration, opens the state and serves until ctx is
// cancelled. Components stop in reverse start order.
func Run(ctx context.Context, params RunParams) error {
	cfg, path, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	opts := params.Open
	opts.Version = params.Version
	stack, err := Open(cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := stack.Close(); cerr != nil {
			stack.Logger.Warn("app: close state", "error", cerr)
		}
	}()
	stack.Logger.Info("app: configuration loaded", "path", path, "version", params.Version)

	application, err := stack.Assemble(ctx, params.Transport)
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

// Assemble builds the lifecycle in start order: telemetry, history, MCP
// server, gateway, scheduler, reload watcher and finally the transport.
// transport may be nil, in which case the Telegram module is loaded from
// the configuration.
func (s *Stack) Assemble(ctx context.Context, transport channel.Channel) (*core.App, error) {
	cfg, logger := s.Config, s.Logger

	appCtx := core.NewAppContext(logger, cfg.StateDir).WithModuleConfigs(cfg.ModuleConfigs())
	appCtx.RegisterService(security.RedactorService, s.Redactor)
	appCtx.RegisterService(security.AuditService, s.Audit)
	application := core.NewApp(appCtx)

	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     s.version,
		SampleRate:  cfg.Telemetry.SampleRate,
	}, logger)
	if err != nil {
		return nil, err
	}
	application.AppendModule(TelemetryID, &telemetryComponent{provider: provider})

	ids := config.Resolve(cfg)
	if slices.Contains(ids, config.HistoryModule) {
		mod, err := application.LoadModule(config.HistoryModule)
		if err != nil {
			return nil, err
		}
		if obs, ok := mod.(relay.Observer); ok {
			s.Relay.AddObserver(obs)
		}
	}

	var mcp *mcpserver.Server
	if cfg.MCP.IsEnabled() {
		mcp = mcpserver.New(mcpserver.Options{
			Name:    cfg.MCP.Name,
			Version: s.version,
			Caller:  s.Relay,
			Ops:     s.Ops,
			Audit:   s.Audit,
			Logger:  logger,
		})
		comp := &mcpComponent{
			server:    mcp,
			registrar: &mcpserver.Registrar{ClaudePath: cfg.Backend.Path, Logger: logger},
			relay:     s.Relay,
			register:  cfg.MCP.ShouldRegister(),
			allowed:   cfg.Backend.AllowedTools,
			logger:    logger,
		}
		if cfg.Gateway.Enabled {
			url, err := MCPURL(cfg.Gateway.Bind)
			if err != nil {
				return nil, err
			}
			comp.mounted, comp.url = true, url
		}
		application.AppendModule(MCPID, comp)
	}

	if cfg.Gateway.Enabled {
		opts := gateway.Options{
			Config: gateway.Config{
				Bind: cfg.Gateway.Bind,
				Auth: gateway.AuthConfig{BearerToken: cfg.Gateway.Auth.BearerToken},
			},
			Ops:     s.Ops,
			Metrics: s.Metrics.Handler(),
			Events:  s.Events,
			Audit:   s.Audit,
			Logger:  logger,
		}
		if s.Dispatcher != nil {
			opts.Tester = s.Dispatcher
		}
		if mcp != nil {
			opts.MCP = mcp.Handler()
		}
		application.AppendModule(GatewayID, gatewayComponent{gateway.New(opts)})
	}

	if s.Dispatcher != nil {
		sched := cron.NewScheduler(logger)
		if err := sched.RegisterJob(s.Dispatcher); err != nil {
			return nil, err
		}
		application.AppendModule(SchedulerID, &schedulerComponent{scheduler: sched})
	}

	watcher := reload.NewWatcher(reload.WatcherConfig{
		OnReload: func(path string) { logger.Info("app: state file reloaded", "path", path) },
		Logger:   logger,
	}, s.Reloadables()...)
	application.AppendModule(ReloadID, reloadComponent{watcher})

	if err := s.addTransport(application, ids, transport); err != nil {
		return nil, err
	}
	return application, nil
}

func (s *Stack) addTransport(application *core.App, ids []string, transport channel.Channel) error {
	binding := channel.Binding{Relay: s.Relay}
	if s.Dispatcher != nil {
		binding.Jobs = s.Dispatcher
	}

	if transport == nil {
		if !slices.Contains(ids, config.TelegramModule) {
			return ErrNoTransport
		}
		mod, err := application.LoadModule(config.TelegramModule)
		if err != nil {
			return err
		}
		ch, ok := mod.(channel.Channel)
		if !ok {
			return fmt.Errorf("app: module %s is not a channel", config.TelegramModule)
		}
		transport = ch
	} else {
		application.AppendModule(string(transport.ModuleInfo().ID), transport)
	}

	transport.Bind(binding)
	id := string(transport.ModuleInfo().ID)
	if err := s.Notifier.Register(id, transport); err != nil {
		return fmt.Errorf("app: register %s: %w", id, err)
	}
	s.Logger.Info("app: transport bound", "channel", id)
	return nil
}
