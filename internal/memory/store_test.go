package memory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, maxFacts int) *Store {
	t.Helper()
	return Open(Options{
		Path:     filepath.Join(t.TempDir(), "memory.json"),
		MaxFacts: maxFacts,
		Logger:   discardLogger(),
		Now:      func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
	})
}

func texts(facts []Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Text
	}
	return out
}

func TestStore_AddEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	tests := []struct {
		max  int
		adds int
	}{
		{max: 3, adds: 3},
		{max: 3, adds: 4},
		{max: 3, adds: 10},
		{max: 1, adds: 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max%d_adds%d", tt.max, tt.adds), func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t, tt.max)
			for i := range tt.adds {
				if _, err := s.Add(fmt.Sprintf("fact %d", i)); err != nil {
					t.Fatalf("Add() error: %v", err)
				}
			}

			facts := s.List()
			if len(facts) != tt.max {
				t.Fatalf("len = %d, want %d", len(facts), tt.max)
			}
			evicted := tt.adds - tt.max
			for i, f := range facts {
				want := fmt.Sprintf("fact %d", evicted+i)
				if f.Text != want {
					t.Errorf("facts[%d] = %q, want %q", i, f.Text, want)
				}
				if f.ID != evicted+i+1 {
					t.Errorf("facts[%d].ID = %d, want %d", i, f.ID, evicted+i+1)
				}
			}
		})
	}
}

func TestStore_AddUnique(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 2)
	if _, err := s.AddUnique("Likes coffee"); err != nil {
		t.Fatal(err)
	}

	res, err := s.AddUnique("likes COFFEE")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Existing {
		t.Error("Existing = false for duplicate fact")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}

	if _, err := s.AddUnique("lives in Paris"); err != nil {
		t.Fatal(err)
	}
	res, err = s.AddUnique("has a cat")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Evicted) != 1 || res.Evicted[0].Text != "Likes coffee" {
		t.Errorf("Evicted = %+v, want the coffee fact", res.Evicted)
	}
}

func TestStore_RemoveKeywordIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 10)
	for _, f := range []string{"likes coffee", "Coffee at 9", "lives in Paris"} {
		if _, err := s.Add(f); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Remove("COFFEE")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("first Remove() = %d, want 2", n)
	}

	n, err = s.Remove("coffee")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second Remove() = %d, want 0", n)
	}

	if diff := cmp.Diff([]string{"lives in Paris"}, texts(s.List())); diff != "" {
		t.Errorf("remaining facts (-want +got):\n%s", diff)
	}
}

func TestStore_RemoveByIndex(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 10)
	for _, f := range []string{"one", "two", "three"} {
		if _, err := s.Add(f); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		selector string
		want     int
	}{
		{"0", 0},
		{"4", 0},
		{"2", 1},
		{"", 0},
		{"-1", 0},
		{"+1", 0},
	}
	for _, tt := range tests {
		n, err := s.Remove(tt.selector)
		if err != nil {
			t.Fatalf("Remove(%q) error: %v", tt.selector, err)
		}
		if n != tt.want {
			t.Errorf("Remove(%q) = %d, want %d", tt.selector, n, tt.want)
		}
	}

	if diff := cmp.Diff([]string{"one", "three"}, texts(s.List())); diff != "" {
		t.Errorf("remaining facts (-want +got):\n%s", diff)
	}

	if _, err := s.RemoveAt(9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("RemoveAt(9) error = %v, want ErrIndexOutOfRange", err)
	}
}

func TestStore_RenderForPrompt(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, 10)
	if got := s.RenderForPrompt(); got != "" {
		t.Errorf("empty store rendered %q", got)
	}

	_, _ = s.Add("likes coffee")
	_, _ = s.Add("lives in Paris")

	want := "## Memory\n- likes coffee\n- lives in Paris\n\n"
	if got := s.RenderForPrompt(); got != want {
		t.Errorf("RenderForPrompt() = %q, want %q", got, want)
	}
}

func TestStore_PersistRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "memory.json")
	s := Open(Options{Path: path, Logger: discardLogger()})
	for _, f := range []string{"a", "b", "c"} {
		if _, err := s.Add(f); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Remove("b"); err != nil {
		t.Fatal(err)
	}

	reloaded := Open(Options{Path: path, Logger: discardLogger()})
	if diff := cmp.Diff(s.List(), reloaded.List()); diff != "" {
		t.Errorf("reloaded facts differ (-want +got):\n%s", diff)
	}

	f, err := reloaded.Add("d")
	if err != nil {
		t.Fatal(err)
	}
	if f.ID != 4 {
		t.Errorf("next id after reload = %d, want 4", f.ID)
	}
}

func TestStore_LoadTolerant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "corrupt", content: "[{", want: []string{}},
		{name: "legacy strings", content: `["likes tea", "has a dog"]`, want: []string{"likes tea", "has a dog"}},
		{name: "objects", content: `[{"id": 7, "text": "x"}]`, want: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "memory.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			s := Open(Options{Path: path, Logger: discardLogger()})
			if diff := cmp.Diff(tt.want, texts(s.List())); diff != "" {
				t.Errorf("loaded facts (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_PersistFailureKeepsMemoryState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	s := Open(Options{Path: filepath.Join(blocker, "memory.json"), Logger: discardLogger()})
	if _, err := s.Add("survives"); err == nil {
		t.Fatal("expected persist error")
	}

	s.Reload()
	if diff := cmp.Diff([]string{"survives"}, texts(s.List())); diff != "" {
		t.Errorf("facts after failed persist (-want +got):\n%s", diff)
	}
}
