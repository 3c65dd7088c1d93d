package directive

import (
	"errors"
	"testing"

	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EndToEndExample(t *testing.T) {
	t.Parallel()

	res := Parse("Got it. [REMEMBER: likes coffee] [CRON_ADD: 0 9 * * * | good morning]")

	assert.Equal(t, "Got it.", res.CleanText)
	assert.Empty(t, res.Errors)
	require.Len(t, res.Directives, 2)
	assert.Equal(t, Directive{Kind: KindRemember, Text: "likes coffee"}, res.Directives[0])
	assert.Equal(t, Directive{Kind: KindAddCron, Schedule: "0 9 * * *", Prompt: "good morning"}, res.Directives[1])
	assert.False(t, res.Silent())
}

func TestParse_AllTags(t *testing.T) {
	t.Parallel()

	text := "a [remember: x] b [Forget: coffee] c [FORGET: 2] " +
		"[SCHEDULE: 2026-03-01 09:00 | dentist] [CRON_REMOVE: 3] [cron_list] [Silent]"
	res := Parse(text)

	require.Empty(t, res.Errors)
	assert.Equal(t, []Directive{
		{Kind: KindRemember, Text: "x"},
		{Kind: KindForget, Selector: "coffee"},
		{Kind: KindForget, Selector: "2"},
		{Kind: KindScheduleOnce, Schedule: "2026-03-01 09:00", Prompt: "dentist"},
		{Kind: KindRemoveCron, Index: 3},
		{Kind: KindListCron},
		{Kind: KindSilent},
	}, res.Directives)
	assert.Equal(t, "a b c", res.CleanText)
	assert.True(t, res.Silent())
}

func TestParse_MalformedBodiesAreIsolated(t *testing.T) {
	t.Parallel()

	res := Parse("ok [REMEMBER: tea] [CRON_ADD: 61 * * * * | nope] [REMEMBER: cake]")

	assert.Equal(t, "ok", res.CleanText)
	assert.Equal(t, []Directive{
		{Kind: KindRemember, Text: "tea"},
		{Kind: KindRemember, Text: "cake"},
	}, res.Directives)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, KindAddCron, res.Errors[0].Kind)
	assert.Equal(t, "[CRON_ADD: 61 * * * * | nope]", res.Errors[0].Raw)
	assert.True(t, errors.Is(res.Errors[0], cron.ErrInvalidSchedule))
}

func TestParse_MalformedVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		kind     Kind
		sentinel error
	}{
		{"cron missing pipe", "[CRON_ADD: 0 9 * * * good morning]", KindAddCron, ErrMalformed},
		{"cron empty prompt", "[CRON_ADD: 0 9 * * * | ]", KindAddCron, ErrMalformed},
		{"cron empty expression", "[CRON_ADD: | hello]", KindAddCron, ErrMalformed},
		{"schedule bad datetime", "[SCHEDULE: next tuesday | hi]", KindScheduleOnce, cron.ErrInvalidSchedule},
		{"schedule missing pipe", "[SCHEDULE: 2026-03-01 09:00]", KindScheduleOnce, ErrMalformed},
		{"remove not a number", "[CRON_REMOVE: first]", KindRemoveCron, ErrMalformed},
		{"remove zero", "[CRON_REMOVE: 0]", KindRemoveCron, ErrMalformed},
		{"remember empty", "[REMEMBER: ]", KindRemember, ErrMalformed},
		{"forget without body", "[FORGET]", KindForget, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := Parse("before " + tt.input + " after")
			assert.Empty(t, res.Directives)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.kind, res.Errors[0].Kind)
			assert.ErrorIs(t, res.Errors[0], tt.sentinel)
			assert.Equal(t, "before after", res.CleanText)
		})
	}
}

func TestParse_UnknownBracketsUntouched(t *testing.T) {
	t.Parallel()

	in := "See [1] and [link](https://example.com) or [NOTE: keep me]."
	res := Parse(in)

	assert.Equal(t, in, res.CleanText)
	assert.Empty(t, res.Directives)
	assert.Empty(t, res.Errors)
}

func TestParse_WhitespaceCollapse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"  hello\t\tworld  ", "hello\t\tworld"},
		{"line one [SILENT]\n\n\n\nline two", "line one\n\nline two"},
		{"[REMEMBER: a]\nkept\n[REMEMBER: b]", "kept"},
		{"[SILENT]", ""},
		{"para one\n\npara two", "para one\n\npara two"},
		{"first\n[SILENT]\nsecond", "first\nsecond"},
		{"noted  [REMEMBER: tea]  thanks", "noted thanks"},
		{"fix:[REMEMBER: x]\n    return 1", "fix:\n    return 1"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.in).CleanText, "input %q", tt.in)
	}
}

func TestParse_UntaggedLayoutPreserved(t *testing.T) {
	t.Parallel()

	in := "Here you go:\n\n```python\ndef f():\n    return 1\n```\n\n| a  | b |\n|----|---|\n| 1  | 2 |"
	assert.Equal(t, in, Parse(in).CleanText)

	tagged := in + "\n\n[REMEMBER: prefers python]"
	assert.Equal(t, in, Parse(tagged).CleanText)
}

func TestDirective_String(t *testing.T) {
	t.Parallel()

	for _, d := range []Directive{
		{Kind: KindRemember, Text: "likes tea"},
		{Kind: KindForget, Selector: "tea"},
		{Kind: KindAddCron, Schedule: "0 9 * * *", Prompt: "hi"},
		{Kind: KindScheduleOnce, Schedule: "2026-03-01 09:00", Prompt: "hi"},
		{Kind: KindRemoveCron, Index: 2},
		{Kind: KindListCron},
		{Kind: KindSilent},
	} {
		res := Parse(d.String())
		require.Len(t, res.Directives, 1, d.String())
		assert.Equal(t, d, res.Directives[0])
	}
}
