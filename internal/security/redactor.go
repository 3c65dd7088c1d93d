package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret the Redactor finds.
const RedactPlaceholder = "***REDACTED***"

// RedactorService is the AppContext service name of the process-wide
// redactor. Modules add the secrets they load to it.
const RedactorService = "security.redactor"

// minLiteralLen keeps short config values such as "1" or "true" from
// being registered as secrets and blanking unrelated output.
const minLiteralLen = 6

// secretKey matches configuration keys whose string values are secrets.
var secretKey = regexp.MustCompile(`(?i)(token|secret|password|passwd|credential|api_?key|auth_?key)`)

// SecretPattern is a known secret format.
type SecretPattern struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultPatterns lists the secret formats that can reach logs, audit
// events or CLI output in this process.
func DefaultPatterns() []SecretPattern {
	return []SecretPattern{
		// Claude OAuth and API keys: sk-ant-oat01-..., sk-ant-api03-...
		{"anthropic", regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`)},
		// Other sk- style API keys the CLI environment may carry.
		{"api_key", regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`)},
		// Telegram bot token, bare or inside a Bot API URL path.
		{"telegram", regexp.MustCompile(`[0-9]{8,10}:[A-Za-z0-9_-]{35}`)},
		// Authorization header values.
		{"bearer", regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{16,}`)},
		{"github", regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[A-Za-z0-9_]{20,}`)},
		{"aws", regexp.MustCompile(`AKIA[A-Z0-9]{16}`)},
	}
}

// Redactor blanks secrets in strings and decoded config trees. It knows
// the DefaultPatterns plus the literal values registered at runtime (the
// bot token, the gateway token). Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []SecretPattern
	// literals is kept longest first so a secret containing another is
	// replaced whole.
	literals []string
}

// NewRedactor creates a Redactor with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers another secret format.
func (r *Redactor) AddPattern(name string, re *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, SecretPattern{Name: name, Re: re})
}

// AddLiteral registers a secret value. Values shorter than six characters
// and duplicates are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < minLiteralLen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.literals, secret) {
		return
	}
	r.literals = append(r.literals, secret)
	slices.SortStableFunc(r.literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
}

// Redact returns s with every literal and pattern match replaced by
// RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	literals, patterns := r.literals, r.patterns
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.Re.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap blanks, in place, a config tree decoded from YAML or JSON.
// String values under secret-looking keys are replaced whole; every other
// string is passed through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKey.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	}
	return v
}
