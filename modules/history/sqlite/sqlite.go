// Package sqlite records every conversation turn in a SQLite audit log. It
// uses modernc.org/sqlite (pure Go, no CGO) in WAL mode.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/relay"
)

// ModuleID is the registry id, also the config resolver's history key.
const ModuleID = "history.sqlite"

// ServiceName is the service the module registers its Store under.
const ServiceName = "history.store"

const recordTimeout = 5 * time.Second

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Validator    = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
	_ relay.Observer    = (*Module)(nil)
)

// Module owns the history database for the app's lifetime.
type Module struct {
	config Config
	path   string
	store  *Store
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("sqlite: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger

	m.path = m.config.Path
	if m.path == "" {
		m.path = filepath.Join(ctx.StateDir, defaultDBFile)
	}

	store, err := Open(context.Background(), m.path, m.config)
	if err != nil {
		return err
	}
	m.store = store
	ctx.RegisterService(ServiceName, store)

	m.logger.Info("sqlite: history provisioned",
		"path", m.path,
		"wal", m.config.walEnabled(),
		"keep_turns", m.config.KeepTurns,
	)
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	return m.store.Ping(context.Background())
}

// Stop implements core.Stopper.
func (m *Module) Stop(_ context.Context) error {
	if m.store == nil {
		return nil
	}
	m.logger.Info("sqlite: history closing")
	return m.store.Close()
}

// Store returns the underlying store.
func (m *Module) Store() *Store { return m.store }

// ObserveTurn implements relay.Observer. Recording failures are logged
// and never affect the turn.
func (m *Module) ObserveTurn(ctx context.Context, rec relay.TurnRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if _, err := m.store.Record(ctx, rec); err != nil {
		m.logger.Warn("sqlite: record turn failed", "source", rec.Source, "error", err)
	}
}
