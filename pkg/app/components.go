package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"

	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/gateway"
	"github.com/flemzord/relayclaw/internal/mcpserver"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/reload"
	"github.com/flemzord/relayclaw/internal/telemetry"
)

// Lifecycle ids of the components Assemble adds next to the modules.
const (
	TelemetryID = "telemetry"
	MCPID       = "mcp"
	GatewayID   = "gateway"
	SchedulerID = "scheduler"
	ReloadID    = "reload"
)

// telemetryComponent flushes the tracer provider on shutdown.
type telemetryComponent struct {
	provider *telemetry.Provider
}

func (c *telemetryComponent) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: TelemetryID} }

func (c *telemetryComponent) Stop(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

// mcpComponent serves the tool server, registers it with the CLI and
// extends the orchestrator's allowed tools with its wildcard.
type mcpComponent struct {
	server    *mcpserver.Server
	registrar *mcpserver.Registrar
	relay     *relay.Orchestrator
	// mounted is set when the gateway serves the handler.
	mounted    bool
	url        string
	register   bool
	allowed    []string
	registered bool
	logger     *slog.Logger
}

func (c *mcpComponent) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: MCPID} }

func (c *mcpComponent) Start() error {
	if c.mounted {
		c.server.SetURL(c.url)
	} else if err := c.server.Listen("127.0.0.1:0"); err != nil {
		return err
	}

	if c.register {
		if err := c.registrar.Register(context.Background(), c.server.Name(), c.server.URL()); err != nil {
			// The bracketed tags still work without the tools.
			c.logger.Warn("app: mcp registration failed, continuing without tools", "error", err)
		} else {
			c.registered = true
		}
	}

	tools := slices.Clone(c.allowed)
	if pattern := c.server.AllowedToolPattern(); !slices.Contains(tools, pattern) {
		tools = append(tools, pattern)
	}
	c.relay.SetAllowedTools(tools)
	return nil
}

func (c *mcpComponent) Stop(ctx context.Context) error {
	if c.registered {
		if err := c.registrar.Unregister(ctx, c.server.Name()); err != nil {
			c.logger.Warn("app: mcp unregister failed", "error", err)
		}
		c.registered = false
	}
	return c.server.Shutdown(ctx)
}

// gatewayComponent gives the gateway a lifecycle id.
type gatewayComponent struct {
	*gateway.Gateway
}

func (c gatewayComponent) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: GatewayID} }

// schedulerComponent runs the minute tick that fires due jobs.
type schedulerComponent struct {
	scheduler *cron.Scheduler
}

func (c *schedulerComponent) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: SchedulerID} }

func (c *schedulerComponent) Start() error {
	return c.scheduler.Start(context.Background())
}

func (c *schedulerComponent) Stop(ctx context.Context) error {
	return c.scheduler.Stop(ctx)
}

// reloadComponent gives the state file watcher a lifecycle id.
type reloadComponent struct {
	*reload.Watcher
}

func (c reloadComponent) ModuleInfo() core.ModuleInfo { return core.ModuleInfo{ID: ReloadID} }

// MCPURL is the address the CLI reaches the gateway-mounted server at.
// Wildcard binds are reached over loopback.
func MCPURL(bind string) (string, error) {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("app: gateway bind %q: %w", bind, err)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + mcpserver.Path, nil
}
