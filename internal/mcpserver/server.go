// Package mcpserver exposes the relay's store operations to the backend as
// MCP tools over streamable HTTP.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/relayclaw/internal/directive"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/security"
)

// Path is where the endpoint is served, standalone or mounted.
const Path = "/mcp"

// DefaultName is the server name registered with the CLI.
const DefaultName = "relayclaw"

// ToolCaller applies a tool call through the orchestrator.
type ToolCaller interface {
	ApplyToolCall(name string, args map[string]any) (string, error)
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	// Caller receives the directive tools. Usually the orchestrator.
	Caller ToolCaller
	// Ops serves the read-only tools and decides which tools exist.
	Ops *relay.Ops
	// Audit records every state-changing tool call. Optional.
	Audit  *security.AuditLogger
	Logger *slog.Logger
}

// Server is the MCP endpoint.
type Server struct {
	name   string
	mcp    *server.MCPServer
	http   *server.StreamableHTTPServer
	caller ToolCaller
	ops    *relay.Ops
	audit  *security.AuditLogger
	logger *slog.Logger

	mu     sync.Mutex
	srv    *http.Server
	url    string
	served chan struct{}
}

// New builds the server and registers the tools the enabled features allow.
func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		name:   opts.Name,
		caller: opts.Caller,
		ops:    opts.Ops,
		audit:  opts.Audit,
		logger: opts.Logger,
	}
	s.mcp = server.NewMCPServer(opts.Name, opts.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.registerTools()
	s.http = server.NewStreamableHTTPServer(s.mcp,
		server.WithEndpointPath(Path),
		server.WithStateLess(true),
	)
	return s
}

const instructions = `Tools to manage the user's long-term memory and scheduled tasks.
Prefer these tools over bracketed tags. Call stay_silent when a scheduled task has nothing worth reporting.`

// Name returns the registered server name.
func (s *Server) Name() string { return s.name }

// Handler returns the HTTP handler for mounting on another router at Path.
func (s *Server) Handler() http.Handler { return s.http }

// AllowedToolPattern is the --allowedTools entry that permits every tool
// of this server.
func (s *Server) AllowedToolPattern() string {
	return "mcp__" + s.name + "__*"
}

// SetURL records the public URL when the handler is mounted elsewhere.
func (s *Server) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

// URL returns the endpoint URL, empty before Listen or SetURL.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Listen serves the endpoint on its own listener. Use "127.0.0.1:0" for a
// free loopback port.
func (s *Server) Listen(addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("mcpserver: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, s.http)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	served := make(chan struct{})

	s.mu.Lock()
	s.srv = srv
	s.served = served
	s.url = "http://" + ln.Addr().String() + Path
	s.mu.Unlock()

	go func() {
		defer close(served)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mcpserver: serve failed", "error", err)
		}
	}()
	s.logger.Info("mcpserver: listening", "url", s.URL())
	return nil
}

// Shutdown stops a listener started by Listen.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, served := s.srv, s.served
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-served
	return err
}

func (s *Server) registerTools() {
	if s.ops.MemoryEnabled() {
		s.mcp.AddTool(mcp.NewTool(directive.ToolRememberFact,
			mcp.WithDescription("Store a fact about the user in long-term memory."),
			mcp.WithString("fact", mcp.Required(), mcp.Description("The fact to remember.")),
		), s.directiveTool(directive.ToolRememberFact))
		s.mcp.AddTool(mcp.NewTool(directive.ToolForgetMemory,
			mcp.WithDescription("Forget memories by keyword, or one memory by its 1-based number."),
			mcp.WithString("keyword", mcp.Required(), mcp.Description("Keyword or memory number.")),
		), s.directiveTool(directive.ToolForgetMemory))
		s.mcp.AddTool(mcp.NewTool("list_memories",
			mcp.WithDescription("List all stored memories."),
		), s.textTool(s.ops.ListMemories))
	}

	if s.ops.SchedulingEnabled() {
		s.mcp.AddTool(mcp.NewTool(directive.ToolAddCronJob,
			mcp.WithDescription("Add a recurring task using a 5-field cron expression in the user's timezone."),
			mcp.WithString("expression", mcp.Required(), mcp.Description("Cron expression, e.g. '0 9 * * 1-5'.")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What to do when the task runs.")),
		), s.directiveTool(directive.ToolAddCronJob))
		s.mcp.AddTool(mcp.NewTool(directive.ToolScheduleOnce,
			mcp.WithDescription("Schedule a one-time task in the user's timezone."),
			mcp.WithString("datetime_str", mcp.Required(), mcp.Description("YYYY-MM-DD HH:MM or YYYY-MM-DDTHH:MM:SS.")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("What to do when the task runs.")),
		), s.directiveTool(directive.ToolScheduleOnce))
		s.mcp.AddTool(mcp.NewTool(directive.ToolRemoveCronJob,
			mcp.WithDescription("Remove a scheduled task by its 1-based number from list_cron_jobs."),
			mcp.WithNumber("index", mcp.Required(), mcp.Description("Task number.")),
		), s.directiveTool(directive.ToolRemoveCronJob))
		s.mcp.AddTool(mcp.NewTool(directive.ToolListCronJobs,
			mcp.WithDescription("List scheduled tasks."),
		), s.textTool(s.ops.ListCron))
	}

	if s.ops.BacklogEnabled() {
		s.mcp.AddTool(mcp.NewTool("list_backlog",
			mcp.WithDescription("List messages saved while authentication was failing."),
		), s.textTool(s.ops.ListBacklog))
		s.mcp.AddTool(mcp.NewTool("clear_backlog",
			mcp.WithDescription("Discard every saved backlog message."),
		), s.textTool(s.ops.ClearBacklog))
	}

	s.mcp.AddTool(mcp.NewTool(directive.ToolStaySilent,
		mcp.WithDescription("Send no message for the current scheduled task."),
	), s.directiveTool(directive.ToolStaySilent))
}

// directiveTool routes a call through the orchestrator so its effect is
// attributed to the turn in flight.
func (s *Server) directiveTool(name string) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		out, err := s.caller.ApplyToolCall(name, args)
		event := security.AuditEvent{
			Type:     security.EventToolCall,
			Source:   "mcp",
			Tool:     name,
			Detail:   out,
			Metadata: stringArgs(args),
		}
		if err != nil {
			event.Detail = err.Error()
		}
		s.audit.Log(event)
		if err != nil {
			s.logger.Warn("mcpserver: tool failed", "tool", name, "error", err)
			return mcp.NewToolResultError(relay.Describe(err)), nil
		}
		s.logger.Debug("mcpserver: tool applied", "tool", name)
		return mcp.NewToolResultText(out), nil
	}
}

// stringArgs flattens tool arguments for the audit log.
func stringArgs(args map[string]any) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func (s *Server) textTool(fn func() (string, error)) server.ToolHandlerFunc {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := fn()
		if err != nil {
			return mcp.NewToolResultError(relay.Describe(err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
