package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// ModuleID identifies a module, namespaced by kind: "channel.telegram",
// "history.sqlite".
type ModuleID string

// Module is implemented by every component managed by an App.
type Module interface {
	ModuleInfo() ModuleInfo
}

// ModuleInfo describes a module and how to instantiate it.
type ModuleInfo struct {
	ID ModuleID
	// New returns a fresh, unconfigured instance. Nil for modules appended
	// directly with App.AppendModule.
	New func() Module
}

// Optional lifecycle hooks. LoadModule calls Configure, Provision and
// Validate in that order; App calls the rest.

// Configurable receives the module's YAML section, when there is one.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner applies defaults and looks up shared services.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks the provisioned configuration without side effects.
type Validator interface {
	Validate() error
}

// Starter opens connections or checks credentials before any Runner runs.
type Starter interface {
	Start() error
}

// Runner blocks while serving (a poll loop, a listener). Returning
// anything but a cancellation error ends the App.
type Runner interface {
	Run(ctx context.Context) error
}

// Stopper releases resources, in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}
