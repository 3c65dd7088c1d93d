package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/relayclaw/internal/statefile"
	"github.com/google/uuid"
)

// Session is the persisted conversation handle.
type Session struct {
	ID           string    `json:"session_id"`
	LastActivity time.Time `json:"last_activity"`
}

// SessionStore keeps the current session id in session.json.
type SessionStore struct {
	mu     sync.Mutex
	path   string
	cur    Session
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// OpenSessionStore loads the session at path. A missing or unreadable
// file starts with no session.
func OpenSessionStore(path string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionStore{
		path:   path,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if _, err := statefile.Load(path, &s.cur); err != nil {
		logger.Warn("backend: ignoring unreadable session file", "path", path, "error", err)
		s.cur = Session{}
	}
	return s
}

// Current returns the active session id and whether it should be resumed.
// When no session exists a fresh id is allocated; it is only persisted
// once a turn succeeds with it.
func (s *SessionStore) Current() (id string, resume bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur.ID == "" {
		return s.newID(), false
	}
	return s.cur.ID, true
}

// Get returns the persisted session.
func (s *SessionStore) Get() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Touch records a successful turn on id.
func (s *SessionStore) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Session{ID: id, LastActivity: s.now().UTC()}
	s.persistLocked()
}

// Reset forgets the current session.
func (s *SessionStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Session{}
	s.persistLocked()
}

func (s *SessionStore) persistLocked() {
	if s.path == "" {
		return
	}
	if err := statefile.Save(s.path, s.cur); err != nil {
		s.logger.Error("backend: persist session failed", "path", s.path, "error", err)
	}
}

// Conversation wraps an Invoker so consecutive turns share one backend
// session.
type Conversation struct {
	inv      Invoker
	sessions *SessionStore
	logger   *slog.Logger
}

// Compile-time interface check.
var _ Invoker = (*Conversation)(nil)

// NewConversation binds inv to sessions.
func NewConversation(inv Invoker, sessions *SessionStore, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{inv: inv, sessions: sessions, logger: logger}
}

// Invoke fills in the session fields of req and runs it. When the backend
// no longer knows the resumed session, one fresh session is started.
func (c *Conversation) Invoke(ctx context.Context, req Request) (Response, error) {
	req.SessionID, req.Resume = c.sessions.Current()

	resp, err := c.inv.Invoke(ctx, req)
	if err != nil && req.Resume && errors.Is(err, ErrSessionNotFound) {
		c.logger.Warn("backend: session expired, starting a new one", "session", req.SessionID)
		c.sessions.Reset()
		req.SessionID, req.Resume = c.sessions.Current()
		resp, err = c.inv.Invoke(ctx, req)
	}
	if err != nil {
		return resp, err
	}

	id := resp.SessionID
	if id == "" {
		id = req.SessionID
	}
	c.sessions.Touch(id)
	return resp, nil
}
