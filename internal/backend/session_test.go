package backend_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/relayclaw/internal/backend"
	"github.com/flemzord/relayclaw/internal/backend/backendtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConversation_StartsThenResumes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	fake := backendtest.Reply("ok")
	conv := backend.NewConversation(fake, backend.OpenSessionStore(path, discardLogger()), discardLogger())

	for range 2 {
		if _, err := conv.Invoke(context.Background(), backend.Request{Prompt: "hi"}); err != nil {
			t.Fatal(err)
		}
	}

	reqs := fake.Requests()
	if reqs[0].Resume || reqs[0].SessionID == "" {
		t.Errorf("first request = %+v, want a fresh session id", reqs[0])
	}
	if !reqs[1].Resume || reqs[1].SessionID != reqs[0].SessionID {
		t.Errorf("second request = %+v, want resume of %q", reqs[1], reqs[0].SessionID)
	}

	reopened := backend.OpenSessionStore(path, discardLogger())
	if got := reopened.Get().ID; got != reqs[0].SessionID {
		t.Errorf("persisted session = %q, want %q", got, reqs[0].SessionID)
	}
	if reopened.Get().LastActivity.IsZero() {
		t.Error("last activity not recorded")
	}
}

func TestConversation_UsesReportedSessionID(t *testing.T) {
	t.Parallel()

	store := backend.OpenSessionStore(filepath.Join(t.TempDir(), "session.json"), discardLogger())
	fake := &backendtest.Fake{Handler: func(context.Context, backend.Request) (backend.Response, error) {
		return backend.Response{Text: "ok", SessionID: "from-cli"}, nil
	}}
	conv := backend.NewConversation(fake, store, discardLogger())

	if _, err := conv.Invoke(context.Background(), backend.Request{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}
	if id, resume := store.Current(); id != "from-cli" || !resume {
		t.Errorf("Current() = %q, %v", id, resume)
	}
}

func TestConversation_RestartsExpiredSession(t *testing.T) {
	t.Parallel()

	store := backend.OpenSessionStore(filepath.Join(t.TempDir(), "session.json"), discardLogger())
	store.Touch("stale")

	notFound := &backend.ProcessError{ExitCode: 1, Err: backend.ErrSessionNotFound}
	fake := (&backendtest.Fake{}).PushError(notFound).Push("fresh start")
	conv := backend.NewConversation(fake, store, discardLogger())

	resp, err := conv.Invoke(context.Background(), backend.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if resp.Text != "fresh start" {
		t.Errorf("Text = %q", resp.Text)
	}

	reqs := fake.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if !reqs[0].Resume || reqs[0].SessionID != "stale" {
		t.Errorf("first request = %+v", reqs[0])
	}
	if reqs[1].Resume || reqs[1].SessionID == "stale" {
		t.Errorf("retry = %+v, want a new session", reqs[1])
	}
}

func TestConversation_OtherErrorsNotRetried(t *testing.T) {
	t.Parallel()

	store := backend.OpenSessionStore(filepath.Join(t.TempDir(), "session.json"), discardLogger())
	store.Touch("current")

	fake := (&backendtest.Fake{}).PushError(&backend.TimeoutError{})
	conv := backend.NewConversation(fake, store, discardLogger())

	_, err := conv.Invoke(context.Background(), backend.Request{Prompt: "hi"})
	var terr *backend.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want *TimeoutError", err)
	}
	if fake.Calls() != 1 {
		t.Errorf("calls = %d, want 1", fake.Calls())
	}
	if id, _ := store.Current(); id != "current" {
		t.Errorf("session changed to %q after failure", id)
	}
}

func TestOpenSessionStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatal(err)
	}
	store := backend.OpenSessionStore(path, discardLogger())
	if _, resume := store.Current(); resume {
		t.Error("corrupt file produced a resumable session")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
