package security

import (
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"
)

// AuditService is the AppContext service name of the audit log.
const AuditService = "security.audit"

// EventType names what happened.
type EventType string

const (
	EventUnauthorized      EventType = "unauthorized"       // Telegram message from someone else
	EventAuthFailure       EventType = "auth_failure"       // gateway request without a valid token
	EventToolCall          EventType = "tool_call"          // store operation requested over MCP
	EventRateLimit         EventType = "rate_limit"         // message dropped by a limiter
	EventCredentialRefresh EventType = "credential_refresh" // backend login refreshed
)

// AuditEvent is one line of the audit log.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	// Source is the surface that saw the event: telegram, gateway, mcp.
	Source string `json:"source,omitempty"`
	// Subject is who triggered it, e.g. a Telegram user id.
	Subject  string            `json:"subject,omitempty"`
	Tool     string            `json:"tool,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AuditLoggerConfig configures NewAuditLogger. Every field is optional.
type AuditLoggerConfig struct {
	// Writer receives the events as JSON lines.
	Writer io.Writer
	// Redactor scrubs Detail and Metadata values.
	Redactor *Redactor
	// OnEvent is subscribed before the first event.
	OnEvent func(AuditEvent)
	Now     func() time.Time
}

// AuditLogger records security events to a JSONL sink and to any
// subscribers. The nil *AuditLogger drops everything, so components may
// hold one unconditionally.
type AuditLogger struct {
	redactor *Redactor
	now      func() time.Time

	mu        sync.Mutex
	enc       *json.Encoder
	listeners []func(AuditEvent)
	failed    int64
}

func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	l := &AuditLogger{redactor: cfg.Redactor, now: cfg.Now}
	if l.now == nil {
		l.now = time.Now
	}
	if cfg.Writer != nil {
		l.enc = json.NewEncoder(cfg.Writer)
	}
	if cfg.OnEvent != nil {
		l.listeners = append(l.listeners, cfg.OnEvent)
	}
	return l
}

// Subscribe adds fn to the functions called, in order and under the
// logger's lock, with every redacted event.
func (l *AuditLogger) Subscribe(fn func(AuditEvent)) {
	if l == nil || fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Log stamps, redacts and records ev. The caller's Metadata is copied
// before redaction.
func (l *AuditLogger) Log(ev AuditEvent) {
	if l == nil {
		return
	}
	ev.Timestamp = l.now().UTC()
	if ev.Metadata != nil {
		ev.Metadata = maps.Clone(ev.Metadata)
	}
	if l.redactor != nil {
		ev.Detail = l.redactor.Redact(ev.Detail)
		for k, v := range ev.Metadata {
			ev.Metadata[k] = l.redactor.Redact(v)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, fn := range l.listeners {
		fn(ev)
	}
	if l.enc != nil && l.enc.Encode(ev) != nil {
		l.failed++
	}
}

// WriteErrors counts events the sink refused.
func (l *AuditLogger) WriteErrors() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}
