package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/security"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the structural validity of a Config after defaults have
// been applied. Every problem is reported, joined into one error.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if cfg.StateDir == "" {
		errs = append(errs, errors.New("config: state_dir is required"))
	}

	if !slices.Contains(logLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q must be one of %v", cfg.Log.Level, logLevels))
	}

	errs = append(errs, validateBackend(cfg.Backend)...)

	if cfg.Memory.MaxFacts < 0 {
		errs = append(errs, fmt.Errorf("config: memory.max_facts must be positive, got %d", cfg.Memory.MaxFacts))
	}

	if _, err := time.LoadLocation(cfg.Scheduling.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: scheduling.timezone %q: %w", cfg.Scheduling.Timezone, err))
	}

	if cfg.Gateway.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Gateway.Bind); err != nil {
			errs = append(errs, fmt.Errorf("config: gateway.bind %q: %w", cfg.Gateway.Bind, err))
		}
	}

	if cfg.Telemetry.Enabled && (cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1) {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_rate must be within [0, 1], got %g", cfg.Telemetry.SampleRate))
	}

	for id := range cfg.ModuleConfigs() {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: module %q is not compiled in", id))
		}
	}

	return errors.Join(errs...)
}

func validateBackend(b BackendConfig) []error {
	var errs []error
	if b.Path == "" {
		errs = append(errs, errors.New("config: backend.path is required"))
	}
	if b.Timeout < 0 {
		errs = append(errs, fmt.Errorf("config: backend.timeout must be positive, got %s", b.Timeout))
	}
	for i, dir := range b.AddDirs {
		if err := security.ValidatePath(dir); err != nil {
			errs = append(errs, fmt.Errorf("config: backend.add_dirs[%d]: %w", i, err))
		}
	}
	if b.WorkDir != "" {
		if err := security.ValidatePath(b.WorkDir); err != nil {
			errs = append(errs, fmt.Errorf("config: backend.work_dir: %w", err))
		}
	}
	return errs
}
