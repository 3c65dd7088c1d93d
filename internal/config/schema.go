// Package config handles YAML configuration loading, environment variable
// expansion, defaults and structural validation for relayclaw.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// StateDir holds memory.json, jobs.json, timezone.json, session.json,
	// backlog.json, history.db and bot.lock.
	StateDir string `yaml:"state_dir"`

	Log        LogConfig        `yaml:"log"`
	Backend    BackendConfig    `yaml:"backend"`
	Memory     MemoryConfig     `yaml:"memory"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Backlog    BacklogConfig    `yaml:"backlog"`
	MCP        MCPConfig        `yaml:"mcp"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	// Telegram and History are decoded by their modules.
	Telegram yaml.Node `yaml:"telegram"`
	History  yaml.Node `yaml:"history"`
}

// LogConfig sets the root logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// BackendConfig configures the claude CLI invocation.
type BackendConfig struct {
	Path            string        `yaml:"path"`
	Timeout         time.Duration `yaml:"timeout"`
	AllowedTools    []string      `yaml:"allowed_tools"`
	AddDirs         []string      `yaml:"add_dirs"`
	WorkDir         string        `yaml:"work_dir"`
	AutoRefreshAuth bool          `yaml:"auto_refresh_auth"`
}

// MemoryConfig configures the fact store.
type MemoryConfig struct {
	Enabled  *bool `yaml:"enabled"`
	MaxFacts int   `yaml:"max_facts"`
}

// SchedulingConfig configures the job store and scheduler.
type SchedulingConfig struct {
	Enabled *bool `yaml:"enabled"`
	// Timezone is the initial zone, used until the user picks one.
	Timezone string `yaml:"timezone"`
}

// BacklogConfig configures the auth-failure backlog.
type BacklogConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// MCPConfig configures the tool server offered to the backend.
type MCPConfig struct {
	Enabled *bool `yaml:"enabled"`
	// Register adds the server to the CLI's user scope on start and removes
	// it on stop.
	Register *bool  `yaml:"register"`
	Name     string `yaml:"name"`
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Enabled bool       `yaml:"enabled"`
	Bind    string     `yaml:"bind"`
	Auth    AuthConfig `yaml:"auth"`
}

// AuthConfig protects the gateway API.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// IsEnabled reports whether memory is on. Defaults to true.
func (c MemoryConfig) IsEnabled() bool { return enabled(c.Enabled) }

// IsEnabled reports whether scheduling is on. Defaults to true.
func (c SchedulingConfig) IsEnabled() bool { return enabled(c.Enabled) }

// IsEnabled reports whether the backlog is on. Defaults to true.
func (c BacklogConfig) IsEnabled() bool { return enabled(c.Enabled) }

// IsEnabled reports whether the MCP server runs. Defaults to true.
func (c MCPConfig) IsEnabled() bool { return enabled(c.Enabled) }

// ShouldRegister reports whether the MCP server is registered with the
// CLI. Defaults to true.
func (c MCPConfig) ShouldRegister() bool { return enabled(c.Register) }

func enabled(b *bool) bool { return b == nil || *b }
