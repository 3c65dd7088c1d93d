// Package backlog keeps user messages that could not be answered because
// the backend was not authenticated, so they can be replayed later.
package backlog

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/relayclaw/internal/statefile"
)

// ErrIndexOutOfRange is returned by Pop for an index outside 1..Len().
var ErrIndexOutOfRange = errors.New("backlog: index out of range")

// Item is one saved message.
type Item struct {
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the persisted backlog in backlog.json.
type Store struct {
	mu     sync.Mutex
	path   string
	items  []Item
	dirty  bool
	logger *slog.Logger
	now    func() time.Time
}

// Open loads the backlog at path. A missing or corrupt file yields an
// empty backlog.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger, now: time.Now}
	s.loadLocked()
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Reload re-reads the backing file unless an unsaved change is pending.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.logger.Warn("backlog: skipping reload, unsaved changes pending")
		return
	}
	s.loadLocked()
}

func (s *Store) loadLocked() {
	var items []Item
	if _, err := statefile.Load(s.path, &items); err != nil {
		s.logger.Warn("backlog: ignoring unreadable backlog file", "path", s.path, "error", err)
		items = nil
	}
	kept := items[:0]
	for _, it := range items {
		if strings.TrimSpace(it.Prompt) != "" {
			kept = append(kept, it)
		}
	}
	s.items = kept
}

// Add appends prompt and returns the number of pending items. Blank
// prompts are ignored.
func (s *Store) Add(prompt string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(prompt) == "" {
		return len(s.items), nil
	}
	s.items = append(s.items, Item{Prompt: prompt, CreatedAt: s.now().UTC()})
	return len(s.items), s.persistLocked()
}

// List returns the pending items, oldest first.
func (s *Store) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of pending items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Clear drops every pending item.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return s.persistLocked()
}

// Pop removes and returns the item at the 1-based index.
func (s *Store) Pop(index int) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 1 || index > len(s.items) {
		return Item{}, fmt.Errorf("%w: %d (valid range 1-%d)", ErrIndexOutOfRange, index, len(s.items))
	}
	item := s.items[index-1]
	s.items = append(s.items[:index-1], s.items[index:]...)
	return item, s.persistLocked()
}

// PopAll removes and returns every pending item.
func (s *Store) PopAll() ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	s.items = nil
	return items, s.persistLocked()
}

func (s *Store) persistLocked() error {
	items := s.items
	if items == nil {
		items = []Item{}
	}
	if err := statefile.Save(s.path, items); err != nil {
		s.dirty = true
		s.logger.Error("backlog: persist failed, keeping in-memory state", "path", s.path, "error", err)
		return fmt.Errorf("backlog: %w", err)
	}
	s.dirty = false
	return nil
}
