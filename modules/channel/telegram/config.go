package telegram

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/flemzord/relayclaw/internal/security"
)

// tokenPattern matches the Telegram bot token format: <digits>:<alphanum+dash>.
var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)

const (
	defaultAPIURL         = "https://api.telegram.org"
	defaultPollingTimeout = 30
	maxAPIMessageLength   = 4096
	// Bot API getFile refuses anything larger.
	maxDownloadSize = 20 << 20
)

// Config holds the Telegram channel configuration.
type Config struct {
	Token string `yaml:"token"`
	// UserID is the only Telegram user allowed to talk to the bot. Private
	// chats share the user's id, so it is also the chat notifications go to.
	UserID         int64  `yaml:"user_id"`
	APIURL         string `yaml:"api_url"`
	PollingTimeout int    `yaml:"polling_timeout"`
	// MaxMessageLength bounds each outgoing chunk, in characters.
	MaxMessageLength int           `yaml:"max_message_length"`
	TypingInterval   time.Duration `yaml:"typing_interval"`

	// UploadsDir receives photos and documents for the turn that reads
	// them. Defaults to {state_dir}/uploads.
	UploadsDir  string `yaml:"uploads_dir"`
	MaxFileSize int64  `yaml:"max_file_size"`

	RateLimit security.RateLimitConfig `yaml:"rate_limit"`
}

// defaults applies default values to unset fields.
func (c *Config) defaults() {
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	if c.PollingTimeout == 0 {
		c.PollingTimeout = defaultPollingTimeout
	}
	if c.MaxMessageLength == 0 {
		c.MaxMessageLength = 4000
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = 4 * time.Second
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = maxDownloadSize
	}
}

// validate checks field constraints once defaults have been applied.
func (c *Config) validate() error {
	var errs []error

	switch {
	case c.Token == "":
		errs = append(errs, errors.New("telegram: token is required"))
	case !tokenPattern.MatchString(c.Token):
		errs = append(errs, errors.New("telegram: token format invalid (expected <bot_id>:<hash>)"))
	}

	if c.UserID <= 0 {
		errs = append(errs, errors.New("telegram: user_id is required"))
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("telegram: api_url must be a valid http/https URL, got %q", c.APIURL))
	}

	if c.PollingTimeout < 0 || c.PollingTimeout > 50 {
		errs = append(errs, fmt.Errorf("telegram: polling_timeout must be 0-50, got %d", c.PollingTimeout))
	}

	if c.MaxMessageLength < 1 || c.MaxMessageLength > maxAPIMessageLength {
		errs = append(errs, fmt.Errorf("telegram: max_message_length must be 1-%d, got %d", maxAPIMessageLength, c.MaxMessageLength))
	}

	if c.MaxFileSize < 1 || c.MaxFileSize > maxDownloadSize {
		errs = append(errs, fmt.Errorf("telegram: max_file_size must be 1-%d, got %d", maxDownloadSize, c.MaxFileSize))
	}

	return errors.Join(errs...)
}
