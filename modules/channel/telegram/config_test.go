package telegram

import (
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	var c Config
	c.defaults()

	if c.APIURL != defaultAPIURL {
		t.Errorf("APIURL = %q, want %q", c.APIURL, defaultAPIURL)
	}
	if c.PollingTimeout != defaultPollingTimeout {
		t.Errorf("PollingTimeout = %d, want %d", c.PollingTimeout, defaultPollingTimeout)
	}
	if c.MaxMessageLength != 4000 {
		t.Errorf("MaxMessageLength = %d, want 4000", c.MaxMessageLength)
	}
	if c.TypingInterval != 4*time.Second {
		t.Errorf("TypingInterval = %s, want 4s", c.TypingInterval)
	}
	if c.MaxFileSize != 20<<20 {
		t.Errorf("MaxFileSize = %d, want 20 MiB", c.MaxFileSize)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		c := Config{Token: testToken, UserID: testUserID}
		c.defaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Token = "" }, wantErr: "token is required"},
		{name: "malformed token", mutate: func(c *Config) { c.Token = "not a token" }, wantErr: "token format invalid"},
		{name: "missing user", mutate: func(c *Config) { c.UserID = 0 }, wantErr: "user_id is required"},
		{name: "bad api url", mutate: func(c *Config) { c.APIURL = "ftp://example.com" }, wantErr: "api_url"},
		{name: "polling timeout too long", mutate: func(c *Config) { c.PollingTimeout = 51 }, wantErr: "polling_timeout"},
		{name: "chunk over api limit", mutate: func(c *Config) { c.MaxMessageLength = 5000 }, wantErr: "max_message_length"},
		{name: "file limit over api limit", mutate: func(c *Config) { c.MaxFileSize = 50 << 20 }, wantErr: "max_file_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := valid()
			tt.mutate(&c)
			err := c.validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	t.Parallel()

	c := Config{APIURL: "://", MaxMessageLength: 0}
	err := c.validate()
	if err == nil {
		t.Fatal("validate() = nil, want error")
	}
	for _, want := range []string{"token is required", "user_id is required", "api_url", "max_message_length"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
