package directive

import (
	"regexp"
	"strings"
	"time"

	"github.com/flemzord/relayclaw/internal/cron"
)

// tagPattern matches every recognised tag. The body stops at the first
// closing bracket, so tags do not nest.
var tagPattern = regexp.MustCompile(`(?i)\[(REMEMBER|FORGET|CRON_ADD|SCHEDULE|CRON_REMOVE|CRON_LIST|SILENT)(?:\s*:([^\]]*))?\]`)

var tagKinds = map[string]Kind{
	"REMEMBER":    KindRemember,
	"FORGET":      KindForget,
	"CRON_ADD":    KindAddCron,
	"SCHEDULE":    KindScheduleOnce,
	"CRON_REMOVE": KindRemoveCron,
	"CRON_LIST":   KindListCron,
	"SILENT":      KindSilent,
}

// Result is the outcome of Parse.
type Result struct {
	// CleanText is the input with every recognised tag removed.
	CleanText  string
	Directives []Directive
	Errors     []*Error
}

// Silent reports whether a silent directive was found.
func (r Result) Silent() bool {
	for _, d := range r.Directives {
		if d.Kind == KindSilent {
			return true
		}
	}
	return false
}

// Parse scans text for directive tags. Tags are matched case-insensitively
// and returned in the order they appear. A tag with a bad body is removed
// from the text and reported in Errors; parsing carries on with the rest.
// Bracketed text that is not a known tag is left alone.
func Parse(text string) Result {
	var res Result

	matches := tagPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		res.CleanText = strings.TrimSpace(text)
		return res
	}

	clean := text[:matches[0][0]]
	for i, m := range matches {
		next := len(text)
		if i+1 < len(matches) {
			next = matches[i+1][0]
		}
		clean = splice(clean, text[m[1]:next])

		raw := text[m[0]:m[1]]
		kind := tagKinds[strings.ToUpper(text[m[2]:m[3]])]
		hasBody := m[4] >= 0
		body := ""
		if hasBody {
			body = strings.TrimSpace(text[m[4]:m[5]])
		}

		d, err := build(kind, body, hasBody)
		if err != nil {
			res.Errors = append(res.Errors, &Error{Kind: kind, Raw: raw, Err: err})
			continue
		}
		res.Directives = append(res.Directives, d)
	}

	res.CleanText = strings.TrimSpace(clean)
	return res
}

func build(kind Kind, body string, hasBody bool) (Directive, error) {
	switch kind {
	case KindListCron, KindSilent:
		return Directive{Kind: kind}, nil
	}

	if !hasBody || body == "" {
		return Directive{}, malformed("missing body")
	}

	switch kind {
	case KindRemember:
		return Directive{Kind: kind, Text: body}, nil
	case KindForget:
		return Directive{Kind: kind, Selector: body}, nil
	case KindAddCron:
		expr, prompt, err := splitPipe(body, "expression")
		if err != nil {
			return Directive{}, err
		}
		if err := cron.ValidateExpression(expr); err != nil {
			return Directive{}, err
		}
		return Directive{Kind: kind, Schedule: expr, Prompt: prompt}, nil
	case KindScheduleOnce:
		at, prompt, err := splitPipe(body, "datetime")
		if err != nil {
			return Directive{}, err
		}
		// Only the syntax is checked here. Whether the time lies in the
		// future depends on the configured zone and is decided on apply.
		if _, err := cron.ParseDateTime(at, time.UTC); err != nil {
			return Directive{}, err
		}
		return Directive{Kind: kind, Schedule: at, Prompt: prompt}, nil
	case KindRemoveCron:
		n, err := parseIndex(body)
		if err != nil {
			return Directive{}, err
		}
		return Directive{Kind: kind, Index: n}, nil
	}
	return Directive{}, malformed("unknown tag")
}

// splice joins the text on either side of a removed tag. Only the seam is
// touched: blanks there go away, a single space keeps words apart, and
// line breaks survive up to one blank line. The indentation of the line
// following the seam is kept.
func splice(left, right string) string {
	if strings.TrimSpace(right) == "" || strings.TrimSpace(left) == "" {
		return left + right
	}

	lcore := strings.TrimRight(left, " \t\n")
	lnl := strings.Count(left[len(lcore):], "\n")

	seam := len(right) - len(strings.TrimLeft(right, " \t\n"))
	rnl := strings.Count(right[:seam], "\n")
	if rnl > 0 {
		right = right[strings.LastIndexByte(right[:seam], '\n')+1:]
	} else {
		right = right[seam:]
	}

	if n := min(max(lnl, rnl), 2); n > 0 {
		return lcore + strings.Repeat("\n", n) + right
	}
	return lcore + " " + right
}
