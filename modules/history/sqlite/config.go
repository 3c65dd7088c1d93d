package sqlite

import "fmt"

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "history.db"
	defaultKeepTurns   = 10000
)

// Config holds the history module configuration.
type Config struct {
	// Enabled is read by the config resolver; the module ignores it.
	Enabled *bool `yaml:"enabled"`

	// Path is the database file path. Defaults to {StateDir}/history.db.
	Path string `yaml:"path"`

	// WAL enables WAL journal mode. Defaults to true.
	WAL *bool `yaml:"wal"`

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int `yaml:"busy_timeout"`

	// KeepTurns caps the number of stored turns; older rows are pruned.
	// Zero selects the default, a negative value keeps everything.
	KeepTurns int `yaml:"keep_turns"`
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
	if c.KeepTurns == 0 {
		c.KeepTurns = defaultKeepTurns
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	return nil
}
