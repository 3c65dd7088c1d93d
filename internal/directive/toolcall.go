package directive

import (
	"math"
	"strings"
)

// MCP tool names that map onto directives.
const (
	ToolRememberFact  = "remember_fact"
	ToolForgetMemory  = "forget_memory"
	ToolAddCronJob    = "add_cron_job"
	ToolScheduleOnce  = "schedule_once"
	ToolRemoveCronJob = "remove_cron_job"
	ToolListCronJobs  = "list_cron_jobs"
	ToolStaySilent    = "stay_silent"
)

var toolKinds = map[string]Kind{
	ToolRememberFact:  KindRemember,
	ToolForgetMemory:  KindForget,
	ToolAddCronJob:    KindAddCron,
	ToolScheduleOnce:  KindScheduleOnce,
	ToolRemoveCronJob: KindRemoveCron,
	ToolListCronJobs:  KindListCron,
	ToolStaySilent:    KindSilent,
}

// IsTool reports whether name is a tool FromToolCall understands.
func IsTool(name string) bool {
	_, ok := toolKinds[name]
	return ok
}

// FromToolCall converts a structured tool invocation into a Directive.
// Argument names follow the tool schemas served by the MCP server:
// fact, keyword, expression, datetime_str, prompt and index.
//
// Unlike Parse, schedule bodies are not validated here; the store rejects
// them with the same error when the directive is applied.
func FromToolCall(name string, args map[string]any) (Directive, error) {
	kind, ok := toolKinds[name]
	if !ok {
		return Directive{}, &Error{Raw: name, Err: malformed("unknown tool %q", name)}
	}

	wrap := func(err error) (Directive, error) {
		return Directive{}, &Error{Kind: kind, Raw: name, Err: err}
	}

	switch kind {
	case KindRemember:
		text, err := stringArg(args, "fact")
		if err != nil {
			return wrap(err)
		}
		return Directive{Kind: kind, Text: text}, nil
	case KindForget:
		sel, err := stringArg(args, "keyword")
		if err != nil {
			return wrap(err)
		}
		return Directive{Kind: kind, Selector: sel}, nil
	case KindAddCron:
		expr, err := stringArg(args, "expression")
		if err != nil {
			return wrap(err)
		}
		prompt, err := stringArg(args, "prompt")
		if err != nil {
			return wrap(err)
		}
		return Directive{Kind: kind, Schedule: expr, Prompt: prompt}, nil
	case KindScheduleOnce:
		at, err := stringArg(args, "datetime_str")
		if err != nil {
			return wrap(err)
		}
		prompt, err := stringArg(args, "prompt")
		if err != nil {
			return wrap(err)
		}
		return Directive{Kind: kind, Schedule: at, Prompt: prompt}, nil
	case KindRemoveCron:
		n, err := intArg(args, "index")
		if err != nil {
			return wrap(err)
		}
		return Directive{Kind: kind, Index: n}, nil
	default:
		return Directive{Kind: kind}, nil
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", malformed("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("argument %q must be a string, got %T", key, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", malformed("argument %q is empty", key)
	}
	return s, nil
}

// intArg accepts the shapes a JSON decoder or a hand-written caller may
// produce for an integer.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, malformed("missing argument %q", key)
	}
	switch n := v.(type) {
	case int:
		if n < 1 {
			break
		}
		return n, nil
	case int64:
		if n < 1 || n > math.MaxInt32 {
			break
		}
		return int(n), nil
	case float64:
		if n < 1 || n != math.Trunc(n) || n > math.MaxInt32 {
			break
		}
		return int(n), nil
	case string:
		return parseIndex(n)
	}
	return 0, malformed("argument %q must be a positive integer, got %v", key, v)
}
