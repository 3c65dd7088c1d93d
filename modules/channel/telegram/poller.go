package telegram

import (
	"context"
	"log/slog"
	"time"
)

const (
	maxConsecutivePollingErrors = 5
	errorPauseDuration          = 30 * time.Second
)

// UpdateHandler processes one update. Updates are handled one at a time,
// in the order Telegram delivered them.
type UpdateHandler func(ctx context.Context, update *Update)

// Poller implements long-polling for receiving Telegram updates.
type Poller struct {
	client  *Client
	handle  UpdateHandler
	timeout int
	pause   time.Duration
	logger  *slog.Logger
}

// NewPoller creates a new Poller. timeout is the long-poll wait in seconds.
func NewPoller(client *Client, handle UpdateHandler, timeout int, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:  client,
		handle:  handle,
		timeout: timeout,
		pause:   errorPauseDuration,
		logger:  logger,
	}
}

// Run polls until ctx is cancelled. After maxConsecutivePollingErrors
// failed polls in a row it pauses before trying again. Updates are
// acknowledged by the next poll's offset, so an update being handled when
// ctx ends is not redelivered.
func (p *Poller) Run(ctx context.Context) error {
	var (
		offset            int
		consecutiveErrors int
	)

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, GetUpdatesRequest{
			Offset:         offset,
			Timeout:        p.timeout,
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			consecutiveErrors++
			p.logger.Error("telegram: getUpdates failed",
				"error", err,
				"consecutive_errors", consecutiveErrors,
			)

			wait := time.Second
			if consecutiveErrors >= maxConsecutivePollingErrors {
				p.logger.Warn("telegram: polling paused after consecutive errors", "pause", p.pause)
				wait = p.pause
				consecutiveErrors = 0
			}
			if sleep(ctx, wait) != nil {
				return nil
			}
			continue
		}

		consecutiveErrors = 0
		for i := range updates {
			offset = updates[i].UpdateID + 1
			p.handle(ctx, &updates[i])
		}
	}
}
