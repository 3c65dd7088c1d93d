// Package gateway serves the relay's HTTP surface: health, metrics, the
// MCP endpoint, a live event stream and a small read API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/security"
)

// JobTester runs a stored job immediately.
type JobTester interface {
	TestFire(ctx context.Context, index int) (relay.Outcome, error)
}

// Options wires the gateway. Nil handlers leave their route unmounted.
type Options struct {
	Config  Config
	Ops     *relay.Ops
	Tester  JobTester
	Metrics http.Handler
	MCP     http.Handler
	Events  *EventHub
	// Audit records rejected API requests. Optional.
	Audit  *security.AuditLogger
	Logger *slog.Logger
	Now    func() time.Time
}

// Gateway is the HTTP server.
type Gateway struct {
	config  Config
	ops     *relay.Ops
	tester  JobTester
	metrics http.Handler
	mcp     http.Handler
	events  *EventHub
	audit   *security.AuditLogger
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	server    *http.Server
	addr      string
	served    chan struct{}
	startedAt time.Time
}

// New creates a gateway. Call Start to listen.
func New(opts Options) *Gateway {
	opts.Config.defaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		config:    opts.Config,
		ops:       opts.Ops,
		tester:    opts.Tester,
		metrics:   opts.Metrics,
		mcp:       opts.MCP,
		events:    opts.Events,
		audit:     opts.Audit,
		logger:    opts.Logger,
		now:       opts.Now,
		startedAt: opts.Now(),
	}
}

// Handler returns the routed handler without listening.
func (g *Gateway) Handler() http.Handler { return g.buildRouter() }

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start() error {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", g.config.Bind, err)
	}

	server := &http.Server{
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadHeaderTimeout,
	}
	served := make(chan struct{})

	g.mu.Lock()
	g.server = server
	g.addr = ln.Addr().String()
	g.served = served
	g.startedAt = g.now()
	g.mu.Unlock()

	go func() {
		defer close(served)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway: serve failed", "error", err)
		}
	}()
	g.logger.Info("gateway: listening", "addr", g.Addr())
	return nil
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addr
}

// Stop shuts the server down within the configured timeout. Open event
// streams are closed first so Shutdown does not wait on them.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	server, served := g.server, g.served
	g.server = nil
	g.mu.Unlock()
	if server == nil {
		return nil
	}

	if g.events != nil {
		g.events.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway: shutting down")
	err := server.Shutdown(shutdownCtx)
	<-served
	return err
}
