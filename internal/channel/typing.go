package channel

import (
	"context"
	"time"
)

// DefaultTypingInterval refreshes the indicator before Telegram's
// five-second expiry.
const DefaultTypingInterval = 4 * time.Second

// StartTypingLoop sends typing indicators at interval until ctx is done.
// The first indicator is sent before it returns. Call the returned func,
// or cancel ctx, to stop the loop.
func StartTypingLoop(ctx context.Context, ch TypingChannel, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	_ = ch.SendTyping(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = ch.SendTyping(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
