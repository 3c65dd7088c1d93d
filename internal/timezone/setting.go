// Package timezone keeps the user's configured zone and resolves free-text
// city names to IANA zone identifiers.
package timezone

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/relayclaw/internal/statefile"
)

// DefaultZone is used when nothing else is configured.
const DefaultZone = "UTC"

// zoneFile is the persisted form: a bare JSON string. The object form
// {"timezone": "..."} is accepted on load.
type zoneFile string

func (z *zoneFile) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*z = zoneFile(s)
		return nil
	}
	var obj struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*z = zoneFile(obj.Timezone)
	return nil
}

// Setting is the process-wide timezone. It is read by the scheduler and
// the prompt builder and only changed by an explicit user request.
type Setting struct {
	mu       sync.RWMutex
	path     string
	fallback string
	name     string
	loc      *time.Location
	logger   *slog.Logger
}

// OpenSetting loads the zone persisted at path. When the file is missing or
// names an unknown zone, fallback is used, then UTC.
func OpenSetting(path, fallback string, logger *slog.Logger) *Setting {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == "" {
		fallback = DefaultZone
	}
	s := &Setting{path: path, fallback: fallback, logger: logger}
	s.mu.Lock()
	s.loadLocked()
	s.mu.Unlock()
	return s
}

// Path returns the backing file.
func (s *Setting) Path() string { return s.path }

// Reload re-reads the backing file.
func (s *Setting) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
}

func (s *Setting) loadLocked() {
	var stored zoneFile
	found, err := statefile.Load(s.path, &stored)
	if err != nil {
		s.logger.Warn("timezone: ignoring unreadable timezone file", "path", s.path, "error", err)
	}

	candidates := []string{s.fallback, DefaultZone}
	if found && stored != "" {
		candidates = append([]string{string(stored)}, candidates...)
	}

	for _, name := range candidates {
		loc, err := time.LoadLocation(name)
		if err != nil {
			s.logger.Warn("timezone: unknown zone, falling back", "zone", name, "error", err)
			continue
		}
		s.name, s.loc = name, loc
		return
	}
	s.name, s.loc = DefaultZone, time.UTC
}

// Name returns the canonical zone identifier.
func (s *Setting) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Location returns the zone as a *time.Location.
func (s *Setting) Location() *time.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

// In returns t converted to the configured zone.
func (s *Setting) In(t time.Time) time.Time {
	return t.In(s.Location())
}

// Set switches to the named zone and persists it. The in-memory value is
// updated even when the write fails.
func (s *Setting) Set(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("timezone: %w: %q", ErrZoneNotFound, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.name, s.loc = name, loc
	if s.path == "" {
		return nil
	}
	if err := statefile.Save(s.path, name); err != nil {
		s.logger.Error("timezone: persist failed", "path", s.path, "error", err)
		return fmt.Errorf("timezone: %w", err)
	}
	s.logger.Info("timezone: updated", "zone", name)
	return nil
}
