// Package memory holds the bounded fact store the backend can write to.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flemzord/relayclaw/internal/statefile"
)

// DefaultMaxFacts is used when Options.MaxFacts is not positive.
const DefaultMaxFacts = 100

// ErrIndexOutOfRange is returned by RemoveAt for an index outside 1..Len().
var ErrIndexOutOfRange = errors.New("memory: index out of range")

// Fact is a remembered piece of information about the user.
type Fact struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalJSON accepts both the object form and a bare string, so a
// hand-written list of strings still loads.
func (f *Fact) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*f = Fact{Text: text}
		return nil
	}

	type plain Fact
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = Fact(p)
	return nil
}

// Options configures a Store.
type Options struct {
	Path     string
	MaxFacts int
	Logger   *slog.Logger
	Now      func() time.Time // injectable for testing
}

// AddResult describes the outcome of AddUnique.
type AddResult struct {
	Fact     Fact
	Evicted  []Fact
	Existing bool // an equal fact was already stored, nothing was added
}

// Store is a FIFO-bounded, persisted list of facts. It is safe for
// concurrent use. A failed write keeps the in-memory state and marks the
// store dirty until the next successful write.
type Store struct {
	mu     sync.RWMutex
	path   string
	max    int
	facts  []Fact
	nextID int
	dirty  bool
	logger *slog.Logger
	now    func() time.Time
}

// Open loads the store from opts.Path. A missing or corrupt file yields an
// empty store.
func Open(opts Options) *Store {
	if opts.MaxFacts <= 0 {
		opts.MaxFacts = DefaultMaxFacts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		path:   opts.Path,
		max:    opts.MaxFacts,
		nextID: 1,
		logger: opts.Logger,
		now:    opts.Now,
	}
	s.load()
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Reload re-reads the backing file, unless a change is still waiting to be
// persisted. Ids keep increasing across reloads.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		s.logger.Warn("memory: reload skipped, unsaved changes pending", "path", s.path)
		return
	}
	s.loadLocked()
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
}

func (s *Store) loadLocked() {
	var facts []Fact
	found, err := statefile.Load(s.path, &facts)
	if err != nil {
		s.logger.Warn("memory: ignoring unreadable facts file", "path", s.path, "error", err)
	}
	if !found {
		facts = nil
	}

	maxID := 0
	for _, f := range facts {
		maxID = max(maxID, f.ID)
	}
	// Hand-edited entries may lack ids.
	for i := range facts {
		if facts[i].ID <= 0 {
			maxID++
			facts[i].ID = maxID
		}
	}
	if len(facts) > s.max {
		facts = facts[len(facts)-s.max:]
	}

	s.facts = facts
	s.nextID = max(s.nextID, maxID+1)
}

// Add appends text as a new fact, evicting the oldest facts when the store
// is over its limit. The returned error is non-nil only when persisting
// failed; the fact is stored in memory regardless.
func (s *Store) Add(text string) (Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fact, _ := s.appendLocked(text)
	return fact, s.persistLocked()
}

// AddUnique is Add with case-insensitive deduplication.
func (s *Store) AddUnique(text string) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lower := strings.ToLower(text)
	for _, f := range s.facts {
		if strings.ToLower(f.Text) == lower {
			return AddResult{Fact: f, Existing: true}, nil
		}
	}

	fact, evicted := s.appendLocked(text)
	return AddResult{Fact: fact, Evicted: evicted}, s.persistLocked()
}

func (s *Store) appendLocked(text string) (Fact, []Fact) {
	fact := Fact{
		ID:        s.nextID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	s.nextID++
	s.facts = append(s.facts, fact)

	var evicted []Fact
	if over := len(s.facts) - s.max; over > 0 {
		evicted = append(evicted, s.facts[:over]...)
		s.facts = append([]Fact(nil), s.facts[over:]...)
		for _, f := range evicted {
			s.logger.Info("memory: evicted oldest fact", "id", f.ID)
		}
	}
	return fact, evicted
}

// Remove deletes facts matching selector. An all-digit selector is a
// 1-based display index and removes at most one fact; anything else is a
// case-insensitive substring and removes every match. It returns the number
// of facts removed.
func (s *Store) Remove(selector string) (int, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return 0, nil
	}

	if index, ok := ParseIndex(selector); ok {
		if _, err := s.RemoveAt(index); err != nil {
			if errors.Is(err, ErrIndexOutOfRange) {
				return 0, nil
			}
			return 1, err
		}
		return 1, nil
	}

	removed, err := s.RemoveMatching(selector)
	return len(removed), err
}

// RemoveAt deletes the fact at the 1-based display index.
func (s *Store) RemoveAt(index int) (Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 1 || index > len(s.facts) {
		return Fact{}, fmt.Errorf("%w: %d (valid range 1-%d)", ErrIndexOutOfRange, index, len(s.facts))
	}

	removed := s.facts[index-1]
	s.facts = append(s.facts[:index-1:index-1], s.facts[index:]...)
	return removed, s.persistLocked()
}

// RemoveMatching deletes every fact containing keyword, case-insensitively,
// and returns them.
func (s *Store) RemoveMatching(keyword string) ([]Fact, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.facts[:0:0]
	var removed []Fact
	for _, f := range s.facts {
		if strings.Contains(strings.ToLower(f.Text), keyword) {
			removed = append(removed, f)
			continue
		}
		kept = append(kept, f)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	s.facts = kept
	return removed, s.persistLocked()
}

// List returns a copy of the facts, oldest first.
func (s *Store) List() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Fact(nil), s.facts...)
}

// Len returns the number of stored facts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// Max returns the configured capacity.
func (s *Store) Max() int { return s.max }

// RenderForPrompt formats the facts as a markdown section for the prompt.
// An empty store renders as the empty string.
func (s *Store) RenderForPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.facts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Memory\n")
	for _, f := range s.facts {
		b.WriteString("- ")
		b.WriteString(f.Text)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	facts := s.facts
	if facts == nil {
		facts = []Fact{}
	}
	if err := statefile.Save(s.path, facts); err != nil {
		s.dirty = true
		s.logger.Error("memory: persist failed, keeping in-memory state", "path", s.path, "error", err)
		return fmt.Errorf("memory: %w", err)
	}
	s.dirty = false
	return nil
}

// ParseIndex reads s as a 1-based display index. Only plain digits count:
// "-1" or "+2" are keywords, not indexes.
func ParseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
