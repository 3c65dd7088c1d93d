package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func captureLogs(r *Redactor, emit func(*slog.Logger)) string {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	emit(slog.New(NewRedactingHandler(inner, r)))
	return buf.String()
}

// tokenURL mimics the Stringer of a request target.
type tokenURL string

func (u tokenURL) String() string { return "https://api.telegram.org/bot" + string(u) + "/getMe" }

func TestRedactingHandler_Scrubs(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	r.AddLiteral("gateway-bearer-1234")

	transportErr := fmt.Errorf("telegram: getUpdates: %w",
		errors.New(`Post "https://api.telegram.org/bot`+botToken+`/getUpdates": dial tcp: timeout`))

	cases := map[string]func(*slog.Logger){
		"message":    func(l *slog.Logger) { l.Info("token is " + botToken) },
		"string":     func(l *slog.Logger) { l.Debug("auth", "token", "gateway-bearer-1234") },
		"with attrs": func(l *slog.Logger) { l.With("bearer", "gateway-bearer-1234").Warn("request") },
		"with group": func(l *slog.Logger) { l.WithGroup("http").Info("auth", "header", "Bearer gateway-bearer-1234") },
		"nested group": func(l *slog.Logger) {
			l.Info("call", slog.Group("req", slog.Group("auth", slog.String("token", "gateway-bearer-1234"))))
		},
		"error":    func(l *slog.Logger) { l.Error("poll failed", "error", transportErr) },
		"stringer": func(l *slog.Logger) { l.Info("calling", "url", tokenURL(botToken)) },
	}
	for name, emit := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			out := captureLogs(r, emit)
			if strings.Contains(out, "gateway-bearer-1234") || strings.Contains(out, botToken) {
				t.Errorf("secret leaked: %s", out)
			}
			if !strings.Contains(out, RedactPlaceholder) {
				t.Errorf("no placeholder in %s", out)
			}
		})
	}
}

func TestRedactingHandler_LiteralAddedLater(t *testing.T) {
	t.Parallel()

	r := NewRedactor()
	out := captureLogs(r, func(l *slog.Logger) {
		scoped := l.With("component", "telegram")
		r.AddLiteral("late-secret-value")
		scoped.Info("configured", "value", "late-secret-value")
	})
	if strings.Contains(out, "late-secret-value") {
		t.Errorf("literal registered after construction leaked: %s", out)
	}
}

func TestRedactingHandler_LeavesOtherValues(t *testing.T) {
	t.Parallel()

	out := captureLogs(NewRedactor(), func(l *slog.Logger) {
		l.Info("turn done", "source", "user", "facts", 3, "ok", true, "err", errors.New("backend timed out"))
	})
	if strings.Contains(out, RedactPlaceholder) {
		t.Errorf("unexpected redaction: %s", out)
	}
	for _, want := range []string{"turn done", "facts=3", "ok=true", `err="backend timed out"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestRedactingHandler_Enabled(t *testing.T) {
	t.Parallel()

	inner := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewRedactingHandler(inner, NewRedactor())
	if h.Enabled(context.Background(), slog.LevelInfo) || !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("Enabled does not follow the wrapped handler's level")
	}
}
