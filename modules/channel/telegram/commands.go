package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/flemzord/relayclaw/internal/relay"
)

const (
	usageAddCron  = "Usage: /addcron <min> <hour> <day> <month> <weekday> <prompt>\nExample: /addcron */5 * * * * check the weather"
	usageSchedule = "Usage: /schedule <datetime> | <prompt>\nExample: /schedule 2026-02-10 14:30 | remind me about meeting"
)

// command is one slash command. run returns the replies to send, in order.
type command struct {
	name        string
	args        string
	description string
	run         func(ctx context.Context, args string) []string
}

// parseCommand splits "/name@bot args" into name and args. A command
// addressed to another bot is not ours.
func parseCommand(text, botUsername string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i+1:]
	}
	if cmd, target, found := strings.Cut(head, "@"); found {
		if botUsername != "" && !strings.EqualFold(target, botUsername) {
			return "", "", false
		}
		head = cmd
	}
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

func (t *Telegram) buildCommands() []command {
	ops := func() *relay.Ops { return t.binding.Relay.Ops() }

	// result renders an operation's outcome.
	result := func(s string, err error) []string {
		if err != nil {
			return []string{relay.Describe(err)}
		}
		return []string{s}
	}

	return []command{
		{name: "help", description: "show available commands", run: func(context.Context, string) []string {
			return []string{t.helpText()}
		}},
		{name: "remember", args: "<fact>", description: "store a memory fact", run: func(_ context.Context, args string) []string {
			if args == "" && ops().MemoryEnabled() {
				return []string{"Usage: /remember <fact>"}
			}
			return result(ops().Remember(args))
		}},
		{name: "listmemory", description: "list all stored memories", run: func(context.Context, string) []string {
			return result(ops().ListMemories())
		}},
		{name: "forget", args: "<keyword or number>", description: "remove memories matching keyword or by index", run: func(_ context.Context, args string) []string {
			if args == "" && ops().MemoryEnabled() {
				return []string{"Usage: /forget <keyword or number>"}
			}
			return result(ops().Forget(args))
		}},
		{name: "addcron", args: "<min> <hour> <day> <month> <weekday> <prompt>", description: "add a recurring cron job", run: func(_ context.Context, args string) []string {
			if !ops().SchedulingEnabled() {
				return result("", relay.ErrSchedulingDisabled)
			}
			expr, prompt, ok := splitCronArgs(args)
			if !ok {
				return []string{usageAddCron}
			}
			return result(ops().AddCron(expr, prompt))
		}},
		{name: "schedule", args: "<datetime> | <prompt>", description: "schedule a one-time task", run: func(_ context.Context, args string) []string {
			if !ops().SchedulingEnabled() {
				return result("", relay.ErrSchedulingDisabled)
			}
			when, prompt, ok := strings.Cut(args, "|")
			when, prompt = strings.TrimSpace(when), strings.TrimSpace(prompt)
			if !ok || when == "" || prompt == "" {
				return []string{usageSchedule}
			}
			return result(ops().ScheduleOnce(when, prompt))
		}},
		{name: "listcron", description: "list all scheduled jobs", run: func(context.Context, string) []string {
			return result(ops().ListCron())
		}},
		{name: "removecron", args: "<number>", description: "remove a scheduled job by number", run: func(_ context.Context, args string) []string {
			if !ops().SchedulingEnabled() {
				return result("", relay.ErrSchedulingDisabled)
			}
			n, err := strconv.Atoi(args)
			if err != nil {
				return []string{"Usage: /removecron <number>"}
			}
			return result(ops().RemoveCron(n))
		}},
		{name: "testcron", args: "<number>", description: "run a scheduled job now", run: t.testCron},
		{name: "timezone", args: "[city]", description: "show or set your timezone", run: func(_ context.Context, args string) []string {
			return result(ops().SetTimezone(args))
		}},
		{name: "listbacklog", description: "list messages saved during an authentication failure", run: func(context.Context, string) []string {
			return result(ops().ListBacklog())
		}},
		{name: "clearbacklog", description: "drop all saved messages", run: func(context.Context, string) []string {
			return result(ops().ClearBacklog())
		}},
		{name: "replaybacklog", description: "send all saved messages again", run: func(ctx context.Context, _ string) []string {
			return t.replay(ctx, 0)
		}},
		{name: "replayone", args: "<number>", description: "send one saved message again", run: func(ctx context.Context, args string) []string {
			n, err := strconv.Atoi(args)
			if err != nil || n < 1 {
				return []string{"Usage: /replayone <number>"}
			}
			return t.replay(ctx, n)
		}},
	}
}

// splitCronArgs accepts "<5 fields> <prompt>" or "<expr> | <prompt>".
func splitCronArgs(args string) (expr, prompt string, ok bool) {
	if e, p, found := strings.Cut(args, "|"); found {
		expr, prompt = strings.TrimSpace(e), strings.TrimSpace(p)
		return expr, prompt, expr != "" && prompt != ""
	}
	fields := strings.Fields(args)
	if len(fields) < 6 {
		return "", "", false
	}
	expr = strings.Join(fields[:5], " ")
	rest := args
	for range 5 {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		rest = rest[strings.IndexFunc(rest, unicode.IsSpace):]
	}
	return expr, strings.TrimSpace(rest), true
}

func (t *Telegram) helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	for _, c := range t.commands {
		b.WriteString("/" + c.name)
		if c.args != "" {
			b.WriteString(" " + c.args)
		}
		b.WriteString(" - " + c.description + "\n")
	}
	b.WriteString("\nAny other text message is forwarded to Claude.")
	return b.String()
}

func (t *Telegram) testCron(ctx context.Context, args string) []string {
	ops := t.binding.Relay.Ops()
	if !ops.SchedulingEnabled() || t.binding.Jobs == nil {
		return []string{relay.Describe(relay.ErrSchedulingDisabled)}
	}
	n, err := strconv.Atoi(args)
	if err != nil {
		return []string{"Usage: /testcron <number>"}
	}
	job, ok := ops.Jobs().Get(n)
	if !ok {
		return []string{fmt.Sprintf("Invalid index %d. Use /listcron to see valid numbers (1-%d).", n, ops.Jobs().Len())}
	}

	t.reply(ctx, fmt.Sprintf("Testing job %d: %s — %s", n, job.Schedule, job.Prompt))

	// The reply reaches the user through Notify, like a real firing.
	stop := t.startTyping(ctx)
	_, err = t.binding.Jobs.TestFire(ctx, n)
	stop()
	if err != nil {
		t.logger.Warn("telegram: test run failed", "job", job.ID, "error", err)
	}
	return nil
}

func (t *Telegram) replay(ctx context.Context, index int) []string {
	ops := t.binding.Relay.Ops()
	if !ops.BacklogEnabled() {
		return []string{relay.Describe(relay.ErrBacklogDisabled)}
	}
	pending := ops.Backlog().Len()
	if pending == 0 {
		return []string{"Backlog is empty."}
	}
	if index == 0 {
		t.reply(ctx, fmt.Sprintf("Replaying %d backlog item(s)...", pending))
	} else if index <= pending {
		t.reply(ctx, fmt.Sprintf("Replaying backlog item %d...", index))
	}

	stop := t.startTyping(ctx)
	outcomes, err := t.binding.Relay.Replay(ctx, index)
	stop()

	var replies []string
	for _, out := range outcomes {
		if out.Text != "" {
			replies = append(replies, out.Text)
		}
	}
	if err != nil {
		replies = append(replies, relay.Describe(err))
	}
	return replies
}
