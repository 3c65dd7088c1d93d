package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestGetMe(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTEST_TOKEN/getMe" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		writeJSON(t, w, apiReply[User]{OK: true, Result: User{ID: 123, IsBot: true, Username: "test_bot"}})
	}))
	defer srv.Close()

	user, err := NewClient("TEST_TOKEN", srv.URL).GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe() error: %v", err)
	}
	if user.ID != 123 || !user.IsBot || user.Username != "test_bot" {
		t.Errorf("GetMe() = %+v", user)
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ChatID != 42 || req.Text != "hello" || !req.DisableWebPagePreview {
			t.Errorf("request = %+v", req)
		}
		writeJSON(t, w, apiReply[Message]{OK: true, Result: Message{MessageID: 7, Text: req.Text}})
	}))
	defer srv.Close()

	msg, err := NewClient("TOKEN", srv.URL).SendMessage(context.Background(), SendMessageRequest{
		ChatID:                42,
		Text:                  "hello",
		DisableWebPagePreview: true,
	})
	if err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
	if msg.MessageID != 7 {
		t.Errorf("MessageID = %d, want 7", msg.MessageID)
	}
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(t, w, apiReply[bool]{OK: false, ErrorCode: 400, Description: "Bad Request: chat not found"})
	}))
	defer srv.Close()

	err := NewClient("TOKEN", srv.URL).SendChatAction(context.Background(), 1, "typing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Code != 400 || !strings.Contains(apiErr.Description, "chat not found") {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestClient_RetriesTooManyRequests(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			writeJSON(t, w, apiReply[bool]{
				OK:          false,
				ErrorCode:   429,
				Description: "Too Many Requests: retry after 1",
				Parameters:  &replyParameters{RetryAfter: 1},
			})
			return
		}
		writeJSON(t, w, apiReply[bool]{OK: true, Result: true})
	}))
	defer srv.Close()

	if err := NewClient("TOKEN", srv.URL).DeleteWebhook(context.Background()); err != nil {
		t.Fatalf("DeleteWebhook() error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestClient_RetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(t, w, apiReply[bool]{ErrorCode: 429, Parameters: &replyParameters{RetryAfter: 30}})
	}))
	defer srv.Close()

	err := NewClient("TOKEN", srv.URL).DeleteWebhook(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestClient_TransportErrorHidesToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(testToken, url).GetMe(context.Background())
	if err == nil {
		t.Fatal("GetMe() on closed server succeeded")
	}
	if strings.Contains(err.Error(), testToken) {
		t.Errorf("error leaks token: %v", err)
	}
}
