package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the postgres connection pool
type DB struct {
	*sql.DB
}

// New opens a postgres pool and verifies connectivity
func New(ctx context.Context, databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// HealthCheck pings the database
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                TEXT PRIMARY KEY,
	thread_id         TEXT NOT NULL,
	source_message_id TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL,
	priority          TEXT NOT NULL,
	status            TEXT NOT NULL,
	deadline          TIMESTAMPTZ,
	dependencies      TEXT[] NOT NULL DEFAULT '{}',
	parent_task_id    TEXT,
	is_subtask        BOOLEAN NOT NULL DEFAULT FALSE,
	child_task_ids    TEXT[] NOT NULL DEFAULT '{}',
	is_parent         BOOLEAN NOT NULL DEFAULT FALSE,
	comments          JSONB NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_thread_status ON tasks (thread_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_source_message ON tasks (source_message_id);
`

// Migrate creates the schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
