package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// stopGrace bounds the whole reverse-order stop sequence.
const stopGrace = 30 * time.Second

// App owns an ordered list of modules: they start in order, stop in
// reverse, and the Runners among them run concurrently in between.
type App struct {
	ctx    *AppContext
	logger *slog.Logger

	ids     []ModuleID
	modules []Module
	// started counts the leading modules whose Start succeeded.
	started int
}

func NewApp(ctx *AppContext) *App {
	return &App{ctx: ctx, logger: ctx.Logger.With("component", "core")}
}

func (a *App) Context() *AppContext { return a.ctx }

// LoadModule loads a compiled-in module and appends it. A failure stops
// every module loaded before it, since provisioning may have opened files.
func (a *App) LoadModule(id string) (Module, error) {
	mod, err := a.ctx.LoadModule(id)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("core: load %s: %w", id, err)
	}
	a.AppendModule(id, mod)
	a.logger.Debug("core: module loaded", "module", id)
	return mod, nil
}

// AppendModule adds a component built outside the registry.
func (a *App) AppendModule(id string, mod Module) {
	a.ids = append(a.ids, ModuleID(id))
	a.modules = append(a.modules, mod)
}

// Module finds a module by id.
func (a *App) Module(id string) (Module, bool) {
	for i, mid := range a.ids {
		if string(mid) == id {
			return a.modules[i], true
		}
	}
	return nil, false
}

// Start starts the modules in order. When one fails, those already
// started are stopped again.
func (a *App) Start() error {
	for i, mod := range a.modules {
		if s, ok := mod.(Starter); ok {
			if err := s.Start(); err != nil {
				a.logger.Error("core: start failed", "module", string(a.ids[i]), "error", err)
				a.Stop()
				return fmt.Errorf("core: start %s: %w", a.ids[i], err)
			}
		}
		a.started = i + 1
	}
	a.logger.Info("core: started", "modules", len(a.modules))
	return nil
}

// Stop stops the started modules in reverse order. Stop errors are
// logged; shutdown carries on.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()

	for ; a.started > 0; a.started-- {
		i := a.started - 1
		s, ok := a.modules[i].(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("core: stop failed", "module", string(a.ids[i]), "error", err)
		}
	}
}

func (a *App) release() {
	a.started = len(a.modules)
	a.Stop()
	a.ids, a.modules = nil, nil
}

// Run starts the App and serves until ctx is done or a Runner fails, then
// stops everything. Only a Runner failure is returned.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	defer func() {
		a.Stop()
		a.logger.Info("core: shutdown complete")
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	for i, mod := range a.modules {
		r, ok := mod.(Runner)
		if !ok {
			continue
		}
		id := a.ids[i]
		g.Go(func() error {
			err := r.Run(gctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			a.logger.Error("core: runner failed", "module", string(id), "error", err)
			return fmt.Errorf("core: run %s: %w", id, err)
		})
	}
	return g.Wait()
}
