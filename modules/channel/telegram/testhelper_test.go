package telegram

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/relayclaw/internal/backend/backendtest"
	"github.com/flemzord/relayclaw/internal/backlog"
	"github.com/flemzord/relayclaw/internal/channel"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/memory"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/security"
	"github.com/flemzord/relayclaw/internal/timezone"
)

const (
	testToken  = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw0"
	testUserID = 4242
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

// sentMessage is one sendMessage call seen by the fake API.
type sentMessage struct {
	ChatID int64
	Text   string
}

// fakeAPI is an in-memory Bot API. It answers getMe, sendMessage,
// sendChatAction, deleteWebhook, setMyCommands and getFile, and serves
// the file endpoint for whatever was added with AddFile.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	sent    []sentMessage
	actions int
	methods []string
	files   map[string]fakeFile
}

type fakeFile struct {
	path string
	data []byte
}

// AddFile makes fileID resolvable with getFile and downloadable.
func (f *fakeAPI) AddFile(fileID, path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.files == nil {
		f.files = make(map[string]fakeFile)
	}
	f.files[fileID] = fakeFile{path: path, data: data}
}

func (f *fakeAPI) serveFile(w http.ResponseWriter, r *http.Request) {
	want := strings.TrimPrefix(r.URL.Path, "/file/bot"+testToken+"/")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if file.path == want {
			_, _ = w.Write(file.data)
			return
		}
	}
	http.NotFound(w, r)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/file/") {
		f.serveFile(w, r)
		return
	}
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()

	switch method {
	case "getMe":
		writeJSON(f.t, w, apiReply[User]{OK: true, Result: User{ID: 1, IsBot: true, Username: "relay_bot"}})
	case "sendMessage":
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode sendMessage: %v", err)
		}
		f.mu.Lock()
		f.sent = append(f.sent, sentMessage{ChatID: req.ChatID, Text: req.Text})
		f.mu.Unlock()
		writeJSON(f.t, w, apiReply[Message]{OK: true, Result: Message{MessageID: 1}})
	case "getFile":
		var req struct {
			FileID string `json:"file_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode getFile: %v", err)
		}
		f.mu.Lock()
		file, ok := f.files[req.FileID]
		f.mu.Unlock()
		if !ok {
			writeJSON(f.t, w, apiReply[File]{ErrorCode: 400, Description: "Bad Request: invalid file_id"})
			return
		}
		writeJSON(f.t, w, apiReply[File]{OK: true, Result: File{
			FileID:   req.FileID,
			FileSize: int64(len(file.data)),
			FilePath: file.path,
		}})
	case "sendChatAction":
		f.mu.Lock()
		f.actions++
		f.mu.Unlock()
		writeJSON(f.t, w, apiReply[bool]{OK: true, Result: true})
	default:
		writeJSON(f.t, w, apiReply[bool]{OK: true, Result: true})
	}
}

func (f *fakeAPI) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeAPI) Texts() []string {
	var out []string
	for _, m := range f.Sent() {
		out = append(out, m.Text)
	}
	return out
}

func (f *fakeAPI) Methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

// testBot is a provisioned Telegram channel bound to a real orchestrator
// backed by temp-dir stores and a scripted backend.
type testBot struct {
	tg      *Telegram
	api     *fakeAPI
	backend *backendtest.Fake
	orch    *relay.Orchestrator
}

type botOption func(*Config)

func newTestBot(t *testing.T, fake *backendtest.Fake, opts ...botOption) *testBot {
	t.Helper()

	api := newFakeAPI(t)
	dir := t.TempDir()
	logger := discardLogger()

	cfg := Config{
		Token:      testToken,
		UserID:     testUserID,
		APIURL:     api.srv.URL,
		UploadsDir: filepath.Join(dir, "uploads"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.defaults()
	cfg.TypingInterval = time.Hour

	tz := timezone.OpenSetting(filepath.Join(dir, "timezone.json"), "UTC", logger)
	jobs := cron.OpenStore(cron.StoreOptions{Path: filepath.Join(dir, "jobs.json"), Logger: logger})
	ops := relay.NewOps(relay.OpsOptions{
		Memory:   memory.Open(memory.Options{Path: filepath.Join(dir, "memory.json"), Logger: logger}),
		Jobs:     jobs,
		Backlog:  backlog.Open(filepath.Join(dir, "backlog.json"), logger),
		Timezone: tz,
		Resolver: timezone.NewResolver(),
		Logger:   logger,
	})
	orch := relay.New(relay.Options{Ops: ops, Invoker: fake, Channel: "telegram", Logger: logger})

	tg := &Telegram{
		config:    cfg,
		client:    NewClient(cfg.Token, cfg.APIURL),
		logger:    logger,
		allowList: channel.NewAllowList("4242"),
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		botUser:   &User{ID: 1, IsBot: true, Username: "relay_bot"},
	}
	tg.commands = tg.buildCommands()
	tg.Bind(channel.Binding{
		Relay: orch,
		Jobs: relay.NewDispatcher(relay.DispatcherOptions{
			Jobs:     jobs,
			Handler:  orch,
			Notifier: tg,
			Location: tz.Location,
			Logger:   logger,
		}),
	})

	return &testBot{tg: tg, api: api, backend: fake, orch: orch}
}

// userMessage builds an update from the configured user.
func userMessage(id int, text string) *Update {
	return &Update{
		UpdateID: id,
		Message: &Message{
			MessageID: id,
			From:      &User{ID: testUserID, FirstName: "Owner"},
			Chat:      Chat{ID: testUserID, Type: "private"},
			Text:      text,
		},
	}
}
