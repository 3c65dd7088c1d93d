package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// floodAttempts bounds how many times a call is sent while Telegram
	// answers 429.
	floodAttempts = 3
	floodWait     = time.Second
	replyLimit    = 10 << 20
	// requestTimeout outlasts the longest long-poll the config allows.
	requestTimeout = 60 * time.Second
)

// Client talks to the Bot API over JSON POSTs.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the bot identified by token. baseURL is
// normally https://api.telegram.org.
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// GetMe identifies the bot. Start uses it to check the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return call[User](ctx, c, "getMe", nil)
}

// GetUpdates long-polls for updates after req.Offset.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	updates, err := call[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *updates, nil
}

// DeleteWebhook clears a webhook left by another deployment; getUpdates
// is refused while one is set.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, "deleteWebhook", nil)
	return err
}

// SendMessage posts one message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return call[Message](ctx, c, "sendMessage", req)
}

// SendChatAction shows an indicator such as "typing" in the chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := call[bool](ctx, c, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	})
	return err
}

// SetMyCommands replaces the command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	_, err := call[bool](ctx, c, "setMyCommands", map[string]any{"commands": commands})
	return err
}

// GetFile looks up a file the user sent, to be fetched with Download.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	return call[File](ctx, c, "getFile", map[string]string{"file_id": fileID})
}

// Download copies the file at filePath (from GetFile) to w. It fails with
// errFileTooLarge once more than limit bytes have been read.
func (c *Client) Download(ctx context.Context, filePath string, w io.Writer, limit int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/file/bot"+c.token+"/"+filePath, nil)
	if err != nil {
		return 0, fmt.Errorf("telegram: build download: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if uerr := (*url.Error)(nil); errors.As(err, &uerr) {
			err = uerr.Err
		}
		return 0, fmt.Errorf("telegram: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("telegram: download: HTTP %d", resp.StatusCode)
	}
	n, err := io.Copy(w, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return n, fmt.Errorf("telegram: download: %w", err)
	}
	if n > limit {
		return n, errFileTooLarge
	}
	return n, nil
}

// call invokes method and decodes its result into T. Flood-control
// answers are retried after the wait Telegram asks for, or after a
// doubling delay when it names none.
func call[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	var body []byte
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("telegram: encode %s: %w", method, err)
		}
		body = b
	}

	wait := floodWait
	for attempt := 1; ; attempt++ {
		reply, err := roundTrip[T](ctx, c, method, body)
		if err == nil {
			return &reply.Result, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusTooManyRequests || attempt == floodAttempts {
			return nil, err
		}
		if apiErr.RetryAfter > 0 {
			wait = time.Duration(apiErr.RetryAfter) * time.Second
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
		wait *= 2
	}
}

// roundTrip sends one request. A reply with ok=false comes back as an
// *APIError.
func roundTrip[T any](ctx context.Context, c *Client, method string, body []byte) (*apiReply[T], error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bot"+c.token+"/"+method, rd)
	if err != nil {
		return nil, fmt.Errorf("telegram: build %s: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// The *url.Error text includes the URL, and with it the token.
		if uerr := (*url.Error)(nil); errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, replyLimit))
	if err != nil {
		return nil, fmt.Errorf("telegram: %s: read reply: %w", method, err)
	}

	var reply apiReply[T]
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("telegram: %s: HTTP %d with undecodable body: %w", method, resp.StatusCode, err)
	}
	if !reply.OK {
		return nil, reply.err(resp.StatusCode)
	}
	return &reply, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
