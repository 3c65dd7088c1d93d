package relay

import (
	"strings"

	"github.com/flemzord/relayclaw/internal/directive"
)

// Applied records the effect of one directive.
type Applied struct {
	Directive directive.Directive
	// Result is the operation's human-readable outcome.
	Result string
	// Notice is appended to the reply shown to the user, if set.
	Notice string
	Err    error
}

// Apply executes d against the stores. Silent directives have no store
// effect and are reported as applied.
func (o *Ops) Apply(d directive.Directive) Applied {
	a := Applied{Directive: d}
	switch d.Kind {
	case directive.KindRemember:
		a.Result, a.Err = o.Remember(d.Text)
		// The overflow warning is the only part of a remember result the
		// user needs to see inline.
		if _, warning, ok := strings.Cut(a.Result, "\n\n"); ok {
			a.Notice = warning
		}
	case directive.KindForget:
		a.Result, a.Err = o.Forget(d.Selector)
	case directive.KindAddCron:
		a.Result, a.Err = o.AddCron(d.Schedule, d.Prompt)
	case directive.KindScheduleOnce:
		a.Result, a.Err = o.ScheduleOnce(d.Schedule, d.Prompt)
	case directive.KindRemoveCron:
		a.Result, a.Err = o.RemoveCron(d.Index)
	case directive.KindListCron:
		a.Result, a.Err = o.ListCron()
		a.Notice = a.Result
	case directive.KindSilent:
		a.Result = "Staying silent."
	default:
		a.Err = &directive.Error{Kind: d.Kind, Raw: d.String(), Err: directive.ErrMalformed}
	}

	if a.Err != nil {
		a.Notice = "⚠ " + Describe(a.Err)
		o.logger.Warn("relay: directive failed", "directive", d.Kind, "error", a.Err)
	} else {
		o.logger.Debug("relay: directive applied", "directive", d.Kind)
	}
	return a
}
