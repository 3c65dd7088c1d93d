package security

import (
	"context"
	"fmt"
	"log/slog"
)

// RedactingHandler is a slog.Handler that scrubs secrets from the message
// and from every string, error or Stringer attribute before passing the
// record on. The root logger sits on one, so the bot token and backend
// credentials never reach stderr.
type RedactingHandler struct {
	next slog.Handler
	r    *Redactor
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps next. Literals added to r later apply too.
func NewRedactingHandler(next slog.Handler, r *Redactor) *RedactingHandler {
	return &RedactingHandler{next: next, r: r}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, h.r.Redact(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(slog.Attr{Key: a.Key, Value: h.scrub(a.Value)})
		return true
	})
	return h.next.Handle(ctx, clean)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, slog.Attr{Key: a.Key, Value: h.scrub(a.Value)})
	}
	return NewRedactingHandler(h.next.WithAttrs(clean), h.r)
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return NewRedactingHandler(h.next.WithGroup(name), h.r)
}

// scrub returns v with secrets removed. Values that are neither text nor
// groups pass through untouched.
func (h *RedactingHandler) scrub(v slog.Value) slog.Value {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.StringValue(h.r.Redact(v.String()))
	case slog.KindGroup:
		attrs := v.Group()
		clean := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			clean[i] = slog.Attr{Key: a.Key, Value: h.scrub(a.Value)}
		}
		return slog.GroupValue(clean...)
	case slog.KindAny:
		// Telegram transport errors quote the request URL, token included.
		var text string
		switch x := v.Any().(type) {
		case error:
			text = x.Error()
		case fmt.Stringer:
			text = x.String()
		default:
			return v
		}
		if clean := h.r.Redact(text); clean != text {
			return slog.StringValue(clean)
		}
	}
	return v
}
