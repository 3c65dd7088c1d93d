package cron

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned for a malformed cron expression or an
// unusable datetime. It is never fatal.
var ErrInvalidSchedule = errors.New("cron: invalid schedule")

// expressionParser accepts exactly the five standard fields: minute, hour,
// day of month, month, day of week. Each field takes *, a literal, a list
// (1,15), a range (1-5) or a step (*/30, 0-30/10); month and weekday also
// accept three-letter names. Descriptors such as @daily and TZ= prefixes are
// rejected.
var expressionParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// dateTimeLayouts are tried in order by ParseDateTime.
var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseExpression validates a five-field cron expression.
func ParseExpression(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if n := len(strings.Fields(expr)); n != 5 {
		return nil, fmt.Errorf("%w: %q has %d fields, want 5", ErrInvalidSchedule, expr, n)
	}
	sched, err := expressionParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// ValidateExpression reports whether expr is a usable five-field expression.
func ValidateExpression(expr string) error {
	_, err := ParseExpression(expr)
	return err
}

// Matches reports whether sched fires at the minute containing t, evaluated
// in t's location.
func Matches(sched cron.Schedule, t time.Time) bool {
	minute := truncateMinute(t)
	return sched.Next(minute.Add(-time.Second)).Equal(minute)
}

// ParseDateTime parses a local datetime such as "2026-03-01 09:00" in loc.
// Supported layouts: YYYY-MM-DD HH:MM, YYYY-MM-DDTHH:MM:SS, YYYY-MM-DDTHH:MM
// and YYYY-MM-DD HH:MM:SS.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: datetime %q (supported formats: YYYY-MM-DD HH:MM, YYYY-MM-DDTHH:MM:SS)", ErrInvalidSchedule, s)
}

// truncateMinute drops seconds and below while keeping t's location.
func truncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}
