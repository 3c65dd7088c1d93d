// Package console is a local terminal transport. Each line typed at the
// prompt runs as a relay turn and scheduled job output is printed between
// prompts. It replaces Telegram for the chat command and is never loaded
// from the configuration.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/flemzord/relayclaw/internal/channel"
	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/relay"
)

// ModuleID is the lifecycle id of the console transport.
const ModuleID = "channel.console"

// Compile-time interface guards.
var (
	_ channel.Channel = (*Console)(nil)
	_ core.Starter    = (*Console)(nil)
	_ core.Runner     = (*Console)(nil)
	_ core.Stopper    = (*Console)(nil)
)

// lineReader is the part of *readline.Instance the console uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// Options configures a Console.
type Options struct {
	Prompt      string
	HistoryFile string
	// Stdin and Stdout default to the process terminal.
	Stdin  io.ReadCloser
	Stdout io.Writer
	// OnExit is called when the user leaves with /exit or end of input.
	// It normally cancels the context the app runs under.
	OnExit func()
	Logger *slog.Logger
}

// Console reads prompts from a terminal line editor.
type Console struct {
	in     lineReader
	out    io.Writer
	onExit func()
	logger *slog.Logger

	writeMu sync.Mutex
	binding channel.Binding
	once    sync.Once
}

// New opens the line editor.
func New(opts Options) (*Console, error) {
	if opts.Prompt == "" {
		opts.Prompt = "you> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          opts.Prompt,
		HistoryFile:     opts.HistoryFile,
		HistoryLimit:    500,
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
		Stdin:           opts.Stdin,
		Stdout:          opts.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("console: open terminal: %w", err)
	}
	return newConsole(rl, rl.Stdout(), opts), nil
}

func newConsole(in lineReader, out io.Writer, opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OnExit == nil {
		opts.OnExit = func() {}
	}
	return &Console{in: in, out: out, onExit: opts.OnExit, logger: opts.Logger}
}

// ModuleInfo implements core.Module.
func (c *Console) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: ModuleID}
}

// Bind implements channel.Channel.
func (c *Console) Bind(b channel.Binding) {
	c.binding = b
}

// Start implements core.Starter.
func (c *Console) Start() error {
	if c.binding.Relay == nil {
		return fmt.Errorf("console: %w", channel.ErrNotBound)
	}
	c.println("Type a message, /help for commands, /exit to quit.")
	return nil
}

// Run implements core.Runner. It reads lines until the user exits or ctx
// is cancelled.
func (c *Console) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.close()
	}()

	for {
		line, err := c.in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				c.exit()
				return nil
			}
			continue
		case errors.Is(err, io.EOF):
			c.exit()
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("console: read: %w", err)
		}

		if ctx.Err() != nil {
			return nil
		}
		if !c.handleLine(ctx, strings.TrimSpace(line)) {
			c.exit()
			return nil
		}
	}
}

// Stop implements core.Stopper.
func (c *Console) Stop(context.Context) error {
	c.close()
	return nil
}

// Notify implements relay.Notifier.
func (c *Console) Notify(_ context.Context, text string) error {
	c.println("[scheduled] " + text)
	return nil
}

// handleLine runs one input line. It reports false when the user asked to
// leave.
func (c *Console) handleLine(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		c.runTurn(ctx, line)
		return true
	}

	name, args, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	args = strings.TrimSpace(args)
	ops := c.binding.Relay.Ops()

	switch strings.ToLower(name) {
	case "exit", "quit":
		return false
	case "help":
		c.println(helpText)
	case "memories":
		c.printResult(ops.ListMemories())
	case "listcron":
		c.printResult(ops.ListCron())
	case "timezone":
		if args == "" {
			c.println(ops.CurrentTimezone())
			return true
		}
		c.printResult(ops.SetTimezone(args))
	case "testcron":
		c.testCron(ctx, args)
	default:
		// Unknown commands go to the backend like any other text.
		c.runTurn(ctx, line)
	}
	return true
}

const helpText = `/memories          list stored facts
/listcron          list scheduled jobs
/testcron <n>      run job n now
/timezone [zone]   show or change the timezone
/exit              leave`

func (c *Console) testCron(ctx context.Context, args string) {
	if c.binding.Jobs == nil {
		c.println(relay.Describe(relay.ErrSchedulingDisabled))
		return
	}
	n, err := strconv.Atoi(args)
	if err != nil {
		c.println("Usage: /testcron <number>")
		return
	}
	// The reply arrives through Notify, like a real firing.
	out, err := c.binding.Jobs.TestFire(ctx, n)
	switch {
	case err != nil && out.Text == "":
		c.println(relay.Describe(err))
	case out.Suppress:
		c.println("(no reply)")
	}
}

func (c *Console) runTurn(ctx context.Context, text string) {
	out, err := c.binding.Relay.Handle(ctx, relay.Turn{Text: text, Source: relay.SourceConsole})
	if err != nil && out.Text == "" {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		out.Text = relay.FailureReply(err)
	}
	c.printOutcome(out)
}

func (c *Console) printOutcome(out relay.Outcome) {
	if out.Text == "" {
		if out.Suppress {
			c.println("(no reply)")
		}
		return
	}
	c.println(out.Text)
}

func (c *Console) printResult(text string, err error) {
	if err != nil {
		c.println(relay.Describe(err))
		return
	}
	c.println(text)
}

func (c *Console) println(text string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintln(c.out, text); err != nil {
		c.logger.Warn("console: write failed", "error", err)
	}
}

func (c *Console) exit() {
	c.println("Goodbye.")
	c.onExit()
}

func (c *Console) close() {
	c.once.Do(func() {
		if err := c.in.Close(); err != nil {
			c.logger.Debug("console: close terminal", "error", err)
		}
	})
}
