package relay

import (
	"context"
	"time"

	"github.com/flemzord/relayclaw/internal/directive"
)

// TurnRecord summarises one finished turn for observers.
type TurnRecord struct {
	Source Source
	JobID  int
	// Prompt is the turn's input text, not the composed backend prompt.
	Prompt     string
	Reply      string
	Suppressed bool
	// Err is the failure message, empty on success.
	Err              string
	Directives       []directive.Kind
	FailedDirectives []directive.Kind
	Duration         time.Duration
	StartedAt        time.Time
}

// Observer is notified after every turn. Implementations must not block
// for long: they run on the turn's goroutine.
type Observer interface {
	ObserveTurn(ctx context.Context, rec TurnRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rec TurnRecord)

// ObserveTurn implements Observer.
func (f ObserverFunc) ObserveTurn(ctx context.Context, rec TurnRecord) { f(ctx, rec) }

func newTurnRecord(turn Turn, out Outcome, err error, started time.Time) TurnRecord {
	rec := TurnRecord{
		Source:     turn.Source,
		JobID:      turn.JobID,
		Prompt:     turn.Text,
		Reply:      out.Text,
		Suppressed: out.Suppress,
		Duration:   out.Duration,
		StartedAt:  started,
	}
	if err != nil {
		rec.Err = err.Error()
	}
	for _, a := range out.Applied {
		if a.Err != nil {
			rec.FailedDirectives = append(rec.FailedDirectives, a.Directive.Kind)
			continue
		}
		rec.Directives = append(rec.Directives, a.Directive.Kind)
	}
	for _, e := range out.Errors {
		if de, ok := e.(*directive.Error); ok {
			rec.FailedDirectives = append(rec.FailedDirectives, de.Kind)
		}
	}
	return rec
}
