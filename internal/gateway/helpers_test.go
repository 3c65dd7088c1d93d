package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/relayclaw/internal/backlog"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/memory"
	"github.com/flemzord/relayclaw/internal/relay"
)

const testToken = "secret-token"

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestOps(t *testing.T) *relay.Ops {
	t.Helper()
	dir := t.TempDir()
	logger := discardLogger()
	return relay.NewOps(relay.OpsOptions{
		Memory:  memory.Open(memory.Options{Path: filepath.Join(dir, "memory.json"), Logger: logger}),
		Jobs:    cron.OpenStore(cron.StoreOptions{Path: filepath.Join(dir, "jobs.json"), Logger: logger}),
		Backlog: backlog.Open(filepath.Join(dir, "backlog.json"), logger),
		Logger:  logger,
	})
}

// fakeTester returns a fixed outcome for index 1 and not-found otherwise.
type fakeTester struct {
	out relay.Outcome
	err error
}

func (f *fakeTester) TestFire(_ context.Context, index int) (relay.Outcome, error) {
	if index != 1 {
		return relay.Outcome{}, cron.ErrJobNotFound
	}
	return f.out, f.err
}

func newTestGateway(t *testing.T, opts Options) *Gateway {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Config.Auth.BearerToken == "" {
		opts.Config.Auth.BearerToken = testToken
	}
	if opts.Now == nil {
		start := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
		calls := 0
		opts.Now = func() time.Time {
			calls++
			return start.Add(time.Duration(calls-1) * 90 * time.Second)
		}
	}
	return New(opts)
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}
