package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Postgres driver
	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection pool
type DB struct {
	*sql.DB
}

// New opens a Postgres connection pool and verifies it with a ping
func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// NewFromSQL wraps an existing pool (used with sqlmock in tests)
func NewFromSQL(sqlDB *sql.DB) *DB {
	return &DB{DB: sqlDB}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS goals (
		id          TEXT        NOT NULL,
		owner_id    TEXT        NOT NULL,
		title       TEXT        NOT NULL,
		description TEXT        NOT NULL DEFAULT '',
		tasks       JSONB       NOT NULL DEFAULT '[]'::jsonb,
		completed   BOOLEAN     NOT NULL DEFAULT FALSE,
		reflection  JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_goals_owner_created ON goals (owner_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS calendar_tokens (
		owner_id      TEXT        PRIMARY KEY,
		access_token  TEXT        NOT NULL,
		refresh_token TEXT        NOT NULL DEFAULT '',
		token_type    TEXT        NOT NULL DEFAULT 'Bearer',
		expires_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables used by the service. It is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
