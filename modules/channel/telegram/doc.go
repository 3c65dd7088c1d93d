// Package telegram connects a single Telegram user to the relay.
//
// The bot long-polls getUpdates, rejects every sender other than the
// configured user, answers slash commands from the shared store
// operations and forwards all other text as a turn:
//
//   - /help, /remember, /forget, /listmemory
//   - /addcron, /schedule, /listcron, /removecron, /testcron
//   - /timezone
//   - /listbacklog, /clearbacklog, /replaybacklog, /replayone
//
// Replies are split with channel.SplitMessage. A typing indicator is kept
// alive while a turn runs. Scheduled output reaches the user through
// Notify.
//
// The module registers itself as "channel.telegram" via init(). It talks to
// the Bot API over plain net/http and encoding/json.
package telegram
