package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Defaults applied by Load.
const (
	DefaultBackendPath    = "claude"
	DefaultBackendTimeout = 5 * time.Minute
	DefaultMaxFacts       = 100
	DefaultTimezone       = "UTC"
	DefaultMCPName        = "relayclaw"
	DefaultGatewayBind    = "127.0.0.1:8787"
	DefaultOTLPEndpoint   = "localhost:4318"
	DefaultServiceName    = "relayclaw"
	DefaultLogLevel       = "info"
)

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir()
	}
	cfg.StateDir = expandHome(cfg.StateDir)
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Backend.Path == "" {
		cfg.Backend.Path = DefaultBackendPath
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	cfg.Backend.WorkDir = expandHome(cfg.Backend.WorkDir)
	for i, d := range cfg.Backend.AddDirs {
		cfg.Backend.AddDirs[i] = expandHome(d)
	}
	if cfg.Memory.MaxFacts == 0 {
		cfg.Memory.MaxFacts = DefaultMaxFacts
	}
	if cfg.Scheduling.Timezone == "" {
		cfg.Scheduling.Timezone = DefaultTimezone
	}
	if cfg.MCP.Name == "" {
		cfg.MCP.Name = DefaultMCPName
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = DefaultGatewayBind
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = DefaultOTLPEndpoint
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1
	}
}

// DefaultStateDir returns $XDG_DATA_HOME/relayclaw, or
// ~/.local/share/relayclaw when the variable is unset.
func DefaultStateDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "relayclaw")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "relayclaw")
}

// StatePath returns the path of name inside the state directory.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.StateDir, name)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}
