// Package core provides the module lifecycle shared by every relayclaw
// component: registration, configuration, ordered start and reverse stop.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrUnknownModule is returned when an id is not compiled in.
var ErrUnknownModule = errors.New("core: unknown module")

// AppContext is what a module sees while it is loaded: a logger scoped to
// it, the state directory, its own YAML section and the shared services
// (the redactor, the audit log).
type AppContext struct {
	Logger   *slog.Logger
	StateDir string

	root     *slog.Logger
	sections map[string]yaml.Node
	shared   *serviceTable
}

type serviceTable struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewAppContext creates the root context.
func NewAppContext(logger *slog.Logger, stateDir string) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:   logger,
		StateDir: stateDir,
		root:     logger,
		shared:   &serviceTable{m: make(map[string]any)},
	}
}

// WithModuleConfigs returns a copy carrying the YAML section of each
// module, keyed by module id.
func (ctx *AppContext) WithModuleConfigs(sections map[string]yaml.Node) *AppContext {
	cp := *ctx
	cp.sections = sections
	return &cp
}

// ForModule returns the context handed to module id. Its logger carries
// a module attribute; services stay shared with the parent.
func (ctx *AppContext) ForModule(id ModuleID) *AppContext {
	cp := *ctx
	cp.Logger = ctx.root.With("module", string(id))
	return &cp
}

// RegisterService publishes svc under name, replacing any previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.shared.mu.Lock()
	ctx.shared.m[name] = svc
	ctx.shared.mu.Unlock()
}

// GetService looks up a published service.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.shared.mu.RLock()
	defer ctx.shared.mu.RUnlock()
	svc, ok := ctx.shared.m[name]
	return svc, ok
}

// GetTyped is GetService with a type assertion.
func GetTyped[T any](ctx *AppContext, name string) (T, bool) {
	svc, _ := ctx.GetService(name)
	typed, ok := svc.(T)
	return typed, ok
}

// LoadModule builds a fresh instance of a compiled-in module and takes it
// through Configure (only when a section exists), Provision and Validate,
// each step skipped when the module does not implement it.
func (ctx *AppContext) LoadModule(id string) (Module, error) {
	info, ok := GetModule(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, id)
	}
	mod := info.New()

	if section, ok := ctx.sections[id]; ok {
		if c, isCfg := mod.(Configurable); isCfg {
			if err := c.Configure(&section); err != nil {
				return nil, fmt.Errorf("core: configure %s: %w", id, err)
			}
		}
	}
	if p, ok := mod.(Provisioner); ok {
		if err := p.Provision(ctx.ForModule(info.ID)); err != nil {
			return nil, fmt.Errorf("core: provision %s: %w", id, err)
		}
	}
	if v, ok := mod.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("core: validate %s: %w", id, err)
		}
	}
	return mod, nil
}
