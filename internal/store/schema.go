// internal/store/schema.go
package store

import (
	"context"
	"fmt"

	"bookrec/internal/logging"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id  BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role     TEXT NOT NULL CHECK (role IN ('student', 'admin')),
		name     TEXT NOT NULL,
		email    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		book_id          BIGSERIAL PRIMARY KEY,
		title            TEXT NOT NULL,
		author           TEXT NOT NULL,
		genre            TEXT NOT NULL,
		publication      INTEGER NOT NULL,
		total_copies     INTEGER NOT NULL CHECK (total_copies > 0),
		available_copies INTEGER NOT NULL,
		CHECK (available_copies >= 0 AND available_copies <= total_copies)
	)`,
	`CREATE TABLE IF NOT EXISTS book_issues (
		issue_id    BIGSERIAL PRIMARY KEY,
		book_id     BIGINT NOT NULL REFERENCES books (book_id),
		user_id     BIGINT NOT NULL REFERENCES users (user_id),
		issue_date  TIMESTAMPTZ NOT NULL,
		due_date    TIMESTAMPTZ NOT NULL,
		return_date TIMESTAMPTZ,
		status      TEXT NOT NULL CHECK (status IN ('issued', 'overdue', 'returned')),
		fine        NUMERIC(10, 2) NOT NULL DEFAULT 0 CHECK (fine >= 0)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS book_issues_open_loan
		ON book_issues (user_id, book_id) WHERE status <> 'returned'`,
	`CREATE INDEX IF NOT EXISTS book_issues_user_status ON book_issues (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS user_book_history (
		user_id          BIGINT NOT NULL REFERENCES users (user_id),
		book_id          BIGINT NOT NULL REFERENCES books (book_id),
		interaction_type TEXT NOT NULL,
		occurred_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS user_book_history_user ON user_book_history (user_id)`,
}

var sqliteSchema = []string{
	`PRAGMA journal_mode = WAL`,
	`CREATE TABLE IF NOT EXISTS users (
		user_id  INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role     TEXT NOT NULL CHECK (role IN ('student', 'admin')),
		name     TEXT NOT NULL,
		email    TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		book_id          INTEGER PRIMARY KEY AUTOINCREMENT,
		title            TEXT NOT NULL,
		author           TEXT NOT NULL,
		genre            TEXT NOT NULL,
		publication      INTEGER NOT NULL,
		total_copies     INTEGER NOT NULL CHECK (total_copies > 0),
		available_copies INTEGER NOT NULL,
		CHECK (available_copies >= 0 AND available_copies <= total_copies)
	)`,
	`CREATE TABLE IF NOT EXISTS book_issues (
		issue_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id     INTEGER NOT NULL REFERENCES books (book_id),
		user_id     INTEGER NOT NULL REFERENCES users (user_id),
		issue_date  TIMESTAMP NOT NULL,
		due_date    TIMESTAMP NOT NULL,
		return_date TIMESTAMP,
		status      TEXT NOT NULL CHECK (status IN ('issued', 'overdue', 'returned')),
		fine        NUMERIC NOT NULL DEFAULT 0 CHECK (fine >= 0)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS book_issues_open_loan
		ON book_issues (user_id, book_id) WHERE status <> 'returned'`,
	`CREATE INDEX IF NOT EXISTS book_issues_user_status ON book_issues (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS user_book_history (
		user_id          INTEGER NOT NULL REFERENCES users (user_id),
		book_id          INTEGER NOT NULL REFERENCES books (book_id),
		interaction_type TEXT NOT NULL,
		occurred_at      TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS user_book_history_user ON user_book_history (user_id)`,
}

// Migrate creates the users, books, book_issues and user_book_history tables
// if they do not exist yet. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == DriverPostgres {
		stmts = postgresSchema
	}

	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}

	logging.Ctx(ctx).Debug().Str("driver", s.driver).Int("statements", len(stmts)).Msg("schema applied")
	return nil
}
