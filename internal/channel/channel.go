// Package channel defines the bridge between a messaging transport and
// the relay: the Channel interface, reply chunking, typing indicators,
// sender allow-listing and fan-out of proactive notifications.
package channel

import (
	"context"

	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/relay"
)

// JobTester runs a stored job immediately, for /testcron style commands.
type JobTester interface {
	TestFire(ctx context.Context, index int) (relay.Outcome, error)
}

// Binding carries the runtime collaborators a channel needs.
type Binding struct {
	Relay *relay.Orchestrator
	// Jobs is nil when scheduling is disabled.
	Jobs JobTester
}

// Channel is a transport between the user and the relay. Every concrete
// channel (Telegram, the local console) implements it.
//
// A channel receives messages from its platform, checks the sender, and
// runs them as turns through the bound orchestrator. Notify delivers
// messages the user did not ask for, such as scheduled job output.
type Channel interface {
	core.Module
	relay.Notifier

	// Bind hands the channel its runtime collaborators. It is called
	// during wiring, before Start.
	Bind(b Binding)
}

// TypingChannel is implemented by channels that can show a typing
// indicator while a turn runs.
type TypingChannel interface {
	SendTyping(ctx context.Context) error
}
