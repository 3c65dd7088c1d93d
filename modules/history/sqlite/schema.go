package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations[i] upgrades the schema from version i to i+1. Entries are
// never edited once released; add a new one instead.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS turns (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			source            TEXT    NOT NULL,
			job_id            INTEGER NOT NULL DEFAULT 0,
			prompt            TEXT    NOT NULL DEFAULT '',
			reply             TEXT    NOT NULL DEFAULT '',
			suppressed        INTEGER NOT NULL DEFAULT 0,
			error             TEXT    NOT NULL DEFAULT '',
			duration_ms       INTEGER NOT NULL DEFAULT 0,
			started_at        TEXT    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_source ON turns(source, id)`,
	},
	{
		`ALTER TABLE turns ADD COLUMN directives TEXT NOT NULL DEFAULT ''`,
		`ALTER TABLE turns ADD COLUMN failed_directives TEXT NOT NULL DEFAULT ''`,
	},
}

// schemaVersion is the version a fully migrated database reports.
var schemaVersion = len(migrations)

// migrate applies the pending migrations, each in its own transaction.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("sqlite: database schema version %d is newer than supported %d", current, schemaVersion)
	}

	for v := current; v < schemaVersion; v++ {
		if err := applyMigration(ctx, db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, version int, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration %d: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate to %d: %w\nstatement: %s", version, err, stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("sqlite: record schema version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit migration %d: %w", version, err)
	}
	return nil
}
