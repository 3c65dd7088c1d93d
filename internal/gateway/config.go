package gateway

import "time"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind              string
	Auth              AuthConfig
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// defaults fills zero values. There is no write timeout: a job test runs
// a full backend turn and event streams stay open.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8787"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// AuthConfig protects the API and event endpoints.
type AuthConfig struct {
	BearerToken string
}

// IsConfigured reports whether a token is set. Without one the protected
// routes are not mounted.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != ""
}
