package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/relayclaw/internal/channel"
	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/security"
	"gopkg.in/yaml.v3"
)

// ModuleID is the id the module registers under.
const ModuleID = "channel.telegram"

// privateReply answers any sender other than the configured user.
const privateReply = "This bot is private."

const startupTimeout = 15 * time.Second

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ channel.Channel       = (*Telegram)(nil)
	_ channel.TypingChannel = (*Telegram)(nil)
	_ core.Configurable     = (*Telegram)(nil)
	_ core.Provisioner      = (*Telegram)(nil)
	_ core.Validator        = (*Telegram)(nil)
	_ core.Starter          = (*Telegram)(nil)
	_ core.Runner           = (*Telegram)(nil)
)

// Telegram is the single-user Telegram channel.
type Telegram struct {
	config    Config
	client    *Client
	logger    *slog.Logger
	allowList *channel.AllowList
	limiter   *security.RateLimiter
	audit     *security.AuditLogger
	binding   channel.Binding
	commands  []command
	botUser   *User
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	return nil
}

// Provision implements core.Provisioner. The bot token is handed to the
// shared log redactor, and the audit log is picked up, when registered.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)
	t.allowList = channel.NewAllowList(strconv.FormatInt(t.config.UserID, 10))
	t.limiter = security.NewRateLimiter(t.config.RateLimit)
	t.commands = t.buildCommands()
	if t.config.UploadsDir == "" {
		t.config.UploadsDir = filepath.Join(ctx.StateDir, "uploads")
	}

	if r, ok := core.GetTyped[*security.Redactor](ctx, security.RedactorService); ok {
		r.AddLiteral(t.config.Token)
	}
	t.audit, _ = core.GetTyped[*security.AuditLogger](ctx, security.AuditService)
	return nil
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	return t.config.validate()
}

// Bind implements channel.Channel.
func (t *Telegram) Bind(b channel.Binding) {
	t.binding = b
}

// Start implements core.Starter. It checks the token with getMe, clears
// any webhook so long polling is accepted, and publishes the command menu.
func (t *Telegram) Start() error {
	if t.binding.Relay == nil {
		return fmt.Errorf("telegram: %w", channel.ErrNotBound)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	user, err := t.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.botUser = user
	t.logger.Info("telegram: bot authenticated", "id", user.ID, "username", user.Username)

	if err := t.client.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}

	menu := make([]BotCommand, len(t.commands))
	for i, c := range t.commands {
		menu[i] = BotCommand{Command: c.name, Description: c.description}
	}
	if err := t.client.SetMyCommands(ctx, menu); err != nil {
		t.logger.Warn("telegram: could not publish command menu", "error", err)
	}
	return nil
}

// Run implements core.Runner. It long-polls until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) error {
	t.logger.Info("telegram: polling started", "timeout", t.config.PollingTimeout)
	return NewPoller(t.client, t.handleUpdate, t.config.PollingTimeout, t.logger).Run(ctx)
}

// Notify implements relay.Notifier. Messages go to the configured user.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	return t.send(ctx, t.config.UserID, text)
}

// SendTyping implements channel.TypingChannel.
func (t *Telegram) SendTyping(ctx context.Context) error {
	return t.client.SendChatAction(ctx, t.config.UserID, "typing")
}

func (t *Telegram) handleUpdate(ctx context.Context, update *Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	sender := strconv.FormatInt(msg.From.ID, 10)
	if !t.allowList.IsAllowed(sender) {
		t.logger.Warn("telegram: message from unauthorized user", "user", msg.From.ID, "username", msg.From.Username)
		t.audit.Log(security.AuditEvent{
			Type:    security.EventUnauthorized,
			Source:  "telegram",
			Subject: sender,
			Detail:  msg.From.Username,
		})
		// Strangers get an answer, but not an unbounded number of them.
		if t.limiter.Allow(security.KindRejection) != nil {
			return
		}
		if err := t.send(ctx, msg.Chat.ID, privateReply); err != nil {
			t.logger.Debug("telegram: could not answer unauthorized user", "error", err)
		}
		return
	}

	if err := t.limiter.Allow(security.KindMessage); err != nil {
		t.logger.Warn("telegram: message dropped", "error", err)
		t.audit.Log(security.AuditEvent{Type: security.EventRateLimit, Source: "telegram", Subject: sender})
		t.reply(ctx, "Too many messages. Please wait a minute.")
		return
	}

	if hasMedia(msg) {
		t.runUpload(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" {
		t.reply(ctx, "Only text, photos and documents are supported.")
		return
	}

	botName := ""
	if t.botUser != nil {
		botName = t.botUser.Username
	}
	if name, args, ok := parseCommand(text, botName); ok {
		t.runCommand(ctx, name, args)
		return
	}

	t.logger.Info("telegram: message received", "update", update.UpdateID, "length", len(text))
	t.runTurn(ctx, relay.Turn{Text: text, Source: relay.SourceUser})
}

// runUpload saves the photo or document, runs a turn on it and removes the
// file again.
func (t *Telegram) runUpload(ctx context.Context, msg *Message) {
	up, err := t.fetchUpload(ctx, msg)
	if err != nil {
		t.logger.Error("telegram: upload failed", "message", msg.MessageID, "error", err)
		t.reply(ctx, uploadFailure(err, t.config.MaxFileSize))
		return
	}
	defer up.remove(t.logger)

	t.runTurn(ctx, relay.Turn{
		Text:      up.prompt,
		Source:    relay.SourceUser,
		AddDirs:   []string{t.config.UploadsDir},
		Transient: true,
	})
}

func (t *Telegram) runCommand(ctx context.Context, name, args string) {
	for _, c := range t.commands {
		if c.name != name {
			continue
		}
		t.logger.Debug("telegram: command", "name", name)
		for _, r := range c.run(ctx, args) {
			t.reply(ctx, r)
		}
		return
	}
	t.reply(ctx, fmt.Sprintf("Unknown command /%s. Send /help for the list.", name))
}

func (t *Telegram) runTurn(ctx context.Context, turn relay.Turn) {
	stop := t.startTyping(ctx)
	out, err := t.binding.Relay.Handle(ctx, turn)
	stop()

	if err != nil && out.Text == "" {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		out.Text = relay.FailureReply(err)
	}
	t.reply(ctx, out.Text)
}

// startTyping keeps the typing indicator alive until the returned func is
// called.
func (t *Telegram) startTyping(ctx context.Context) func() {
	return channel.StartTypingLoop(ctx, t, t.config.TypingInterval)
}

// reply sends text to the user, logging delivery failures.
func (t *Telegram) reply(ctx context.Context, text string) {
	if err := t.send(ctx, t.config.UserID, text); err != nil {
		t.logger.Error("telegram: could not send reply", "error", err)
	}
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range channel.SplitMessage(text, t.config.MaxMessageLength) {
		if _, err := t.client.SendMessage(ctx, SendMessageRequest{
			ChatID:                chatID,
			Text:                  chunk,
			DisableWebPagePreview: true,
		}); err != nil {
			return err
		}
	}
	return nil
}
