package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/relayclaw/internal/directive"
	"github.com/flemzord/relayclaw/internal/relay"
)

// Turn is one stored row.
type Turn struct {
	ID               int64
	Source           relay.Source
	JobID            int
	Prompt           string
	Reply            string
	Suppressed       bool
	Error            string
	Directives       []directive.Kind
	FailedDirectives []directive.Kind
	Duration         time.Duration
	StartedAt        time.Time
}

// Store records turns in SQLite.
type Store struct {
	db   *sql.DB
	keep int
}

// Record inserts rec and prunes rows beyond the retention cap.
func (s *Store) Record(ctx context.Context, rec relay.TurnRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (source, job_id, prompt, reply, suppressed, error,
		                   directives, failed_directives, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Source), rec.JobID, rec.Prompt, rec.Reply, boolToInt(rec.Suppressed), rec.Err,
		joinKinds(rec.Directives), joinKinds(rec.FailedDirectives),
		rec.Duration.Milliseconds(), rec.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: record turn: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: record turn id: %w", err)
	}

	if s.keep > 0 && id > int64(s.keep) {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE id <= ?", id-int64(s.keep)); err != nil {
			return id, fmt.Errorf("sqlite: prune turns: %w", err)
		}
	}
	return id, nil
}

// Recent returns up to n turns, newest first. A non-empty source filters
// on it.
func (s *Store) Recent(ctx context.Context, n int, source relay.Source) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, source, job_id, prompt, reply, suppressed, error,
		       directives, failed_directives, duration_ms, started_at
		FROM turns`
	args := []any{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, string(source))
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: recent turns rows: %w", err)
	}
	return turns, nil
}

// Count returns the number of stored turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM turns").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count turns: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanTurn(rows *sql.Rows) (Turn, error) {
	var (
		t                  Turn
		source, started    string
		directives, failed string
		suppressed, durMS  int64
	)
	if err := rows.Scan(&t.ID, &source, &t.JobID, &t.Prompt, &t.Reply, &suppressed, &t.Error,
		&directives, &failed, &durMS, &started); err != nil {
		return Turn{}, fmt.Errorf("sqlite: scan turn: %w", err)
	}

	t.Source = relay.Source(source)
	t.Suppressed = suppressed != 0
	t.Duration = time.Duration(durMS) * time.Millisecond
	t.Directives = splitKinds(directives)
	t.FailedDirectives = splitKinds(failed)

	at, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Turn{}, fmt.Errorf("sqlite: parse started_at %q: %w", started, err)
	}
	t.StartedAt = at
	return t, nil
}

func joinKinds(kinds []directive.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitKinds(s string) []directive.Kind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]directive.Kind, len(parts))
	for i, p := range parts {
		kinds[i] = directive.Kind(p)
	}
	return kinds
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
