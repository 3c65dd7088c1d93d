package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/directive"
	"github.com/flemzord/relayclaw/internal/relay"
)

var testStart = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func turnAt(i int, source relay.Source) relay.TurnRecord {
	return relay.TurnRecord{
		Source:    source,
		Prompt:    "prompt",
		Reply:     "reply",
		Duration:  time.Duration(i) * time.Second,
		StartedAt: testStart.Add(time.Duration(i) * time.Minute),
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Config{})
	ctx := context.Background()

	rec := relay.TurnRecord{
		Source:           relay.SourceScheduled,
		JobID:            4,
		Prompt:           "check the weather",
		Reply:            "",
		Suppressed:       true,
		Directives:       []directive.Kind{directive.KindSilent, directive.KindRemember},
		FailedDirectives: []directive.Kind{directive.KindAddCron},
		Duration:         1500 * time.Millisecond,
		StartedAt:        testStart,
	}
	if _, err := s.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, turnAt(1, relay.SourceUser)); err != nil {
		t.Fatal(err)
	}

	turns, err := s.Recent(ctx, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d, want 2", len(turns))
	}
	if turns[0].Source != relay.SourceUser {
		t.Errorf("newest first: got %s", turns[0].Source)
	}

	got := turns[1]
	if got.JobID != 4 || !got.Suppressed || got.Prompt != "check the weather" {
		t.Errorf("turn = %+v", got)
	}
	if got.Duration != 1500*time.Millisecond || !got.StartedAt.Equal(testStart) {
		t.Errorf("duration %v started %v", got.Duration, got.StartedAt)
	}
	if len(got.Directives) != 2 || got.Directives[1] != directive.KindRemember {
		t.Errorf("directives = %v", got.Directives)
	}
	if len(got.FailedDirectives) != 1 || got.FailedDirectives[0] != directive.KindAddCron {
		t.Errorf("failed = %v", got.FailedDirectives)
	}

	scheduled, err := s.Recent(ctx, 10, relay.SourceScheduled)
	if err != nil {
		t.Fatal(err)
	}
	if len(scheduled) != 1 {
		t.Errorf("filtered len = %d, want 1", len(scheduled))
	}

	if none, _ := s.Recent(ctx, 0, ""); none != nil {
		t.Errorf("Recent(0) = %v", none)
	}
}

func TestStore_Prunes(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, Config{KeepTurns: 3})
	ctx := context.Background()
	for i := range 5 {
		if _, err := s.Record(ctx, turnAt(i, relay.SourceUser)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	turns, _ := s.Recent(ctx, 10, "")
	if turns[len(turns)-1].Duration != 2*time.Second {
		t.Errorf("oldest kept = %v, want turn 2", turns[len(turns)-1].Duration)
	}
}

func TestMigrate_IsIdempotentAndVersioned(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	for range 2 {
		s, err := Open(context.Background(), path, Config{})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		_ = s.Close()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	var version, rows int
	if err := db.QueryRow("SELECT MAX(version), count(*) FROM schema_version").Scan(&version, &rows); err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion || rows != schemaVersion {
		t.Errorf("version = %d rows = %d, want %d", version, rows, schemaVersion)
	}

	if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion+1); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), path, Config{}); err == nil {
		t.Error("Open should refuse a newer schema")
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "dir", "history.db"), Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Close()
}

func TestModule_Lifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := core.NewAppContext(logger, dir)

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("keep_turns: 50\nwal: false\n"), &node); err != nil {
		t.Fatal(err)
	}

	m := &Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatal(err)
	}
	if err := m.Provision(ctx.ForModule(ModuleID)); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if m.path != filepath.Join(dir, defaultDBFile) || m.config.KeepTurns != 50 || m.config.walEnabled() {
		t.Errorf("config = %+v path %q", m.config, m.path)
	}

	store, ok := core.GetTyped[*Store](ctx, ServiceName)
	if !ok || store != m.Store() {
		t.Fatal("store service not registered")
	}

	m.ObserveTurn(context.Background(), turnAt(0, relay.SourceConsole))
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if err := m.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestModule_EmptyConfig(t *testing.T) {
	t.Parallel()

	m := &Module{}
	if err := m.Configure(&yaml.Node{}); err != nil {
		t.Fatalf("Configure(empty) = %v", err)
	}
}
