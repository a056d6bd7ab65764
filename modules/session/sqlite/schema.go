package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		environment TEXT    NOT NULL,
		interface   TEXT    NOT NULL,
		static      INTEGER NOT NULL DEFAULT 0,
		tools       TEXT    NOT NULL DEFAULT '[]',
		diagnostics TEXT    NOT NULL DEFAULT '[]',
		created_at  TEXT    NOT NULL,
		updated_at  TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,

	`CREATE TABLE IF NOT EXISTS actions (
		session_id TEXT    NOT NULL,
		seq        INTEGER NOT NULL,
		tool       TEXT    NOT NULL,
		arguments  TEXT    NOT NULL DEFAULT '{}',
		created_at TEXT    NOT NULL,
		PRIMARY KEY (session_id, seq)
	)`,
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(ctx context.Context, db *sql.DB) error {
	// Ensure schema_version table exists first.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w\nstatement: %s", err, stmt)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}
