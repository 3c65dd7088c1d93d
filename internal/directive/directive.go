// Package directive extracts store mutations and control signals from a
// backend response.
//
// The backend can express a directive in two ways: as a bracketed tag
// embedded in its reply text, or as an MCP tool call. Parse handles the
// first, FromToolCall the second, and both yield the same Directive value
// so the caller applies them through one code path.
package directive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what a Directive asks for.
type Kind string

// Directive kinds.
const (
	KindRemember     Kind = "remember"
	KindForget       Kind = "forget"
	KindAddCron      Kind = "add_cron"
	KindScheduleOnce Kind = "schedule_once"
	KindRemoveCron   Kind = "remove_cron"
	KindListCron     Kind = "list_cron"
	KindSilent       Kind = "silent"
)

// ErrMalformed is wrapped by every Error produced for a bad directive body.
var ErrMalformed = errors.New("directive: malformed")

// Directive is one parsed request. Only the fields relevant to Kind are set:
//
//	remember       Text
//	forget         Selector (keyword or 1-based index, as written)
//	add_cron       Schedule, Prompt
//	schedule_once  Schedule (datetime), Prompt
//	remove_cron    Index
type Directive struct {
	Kind     Kind
	Text     string
	Selector string
	Schedule string
	Prompt   string
	Index    int
}

// String renders the directive in its tag form.
func (d Directive) String() string {
	switch d.Kind {
	case KindRemember:
		return "[REMEMBER: " + d.Text + "]"
	case KindForget:
		return "[FORGET: " + d.Selector + "]"
	case KindAddCron:
		return "[CRON_ADD: " + d.Schedule + " | " + d.Prompt + "]"
	case KindScheduleOnce:
		return "[SCHEDULE: " + d.Schedule + " | " + d.Prompt + "]"
	case KindRemoveCron:
		return "[CRON_REMOVE: " + strconv.Itoa(d.Index) + "]"
	case KindListCron:
		return "[CRON_LIST]"
	case KindSilent:
		return "[SILENT]"
	default:
		return "[" + string(d.Kind) + "]"
	}
}

// Error reports a directive that was recognised but could not be used.
type Error struct {
	Kind Kind
	// Raw is the offending tag or tool name as it appeared.
	Raw string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("directive %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// splitPipe splits "left | right" on the first pipe, requiring both halves.
func splitPipe(body, what string) (left, right string, err error) {
	left, right, ok := strings.Cut(body, "|")
	if !ok {
		return "", "", malformed("expected %q", what+" | prompt")
	}
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if left == "" || right == "" {
		return "", "", malformed("empty %s or prompt", what)
	}
	return left, right, nil
}

func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, malformed("index %q is not a positive integer", s)
	}
	return n, nil
}
