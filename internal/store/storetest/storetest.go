// Package storetest opens throwaway SQLite stores for package tests.
package storetest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bookrec/internal/store"
)

// Open returns a migrated store backed by a file in t.TempDir().
func Open(t testing.TB) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bookrec.db")
	s, err := store.Open(context.Background(), store.Config{Driver: store.DriverSQLite, DSN: path})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	t.Cleanup(func() { s.Close() })
	return s
}

// AddUser inserts a user row with a placeholder credential and returns its id.
func AddUser(t testing.TB, s *store.Store, username, role string) int64 {
	t.Helper()

	ds := s.Insert("users").Rows(goqu.Record{
		"username": username,
		"password": "x",
		"role":     role,
		"name":     username,
		"email":    fmt.Sprintf("%s@example.com", username),
	})
	id, err := s.InsertID(context.Background(), s.DB(), ds, "user_id")
	require.NoError(t, err)
	return id
}

// AddBook inserts a book with every copy available and returns its id.
func AddBook(t testing.TB, s *store.Store, title, author, genre string, copies int) int64 {
	t.Helper()

	ds := s.Insert("books").Rows(goqu.Record{
		"title":            title,
		"author":           author,
		"genre":            genre,
		"publication":      2001,
		"total_copies":     copies,
		"available_copies": copies,
	})
	id, err := s.InsertID(context.Background(), s.DB(), ds, "book_id")
	require.NoError(t, err)
	return id
}

// AddIssue inserts a raw issue row, bypassing the circulation rules.
func AddIssue(t testing.TB, s *store.Store, userID, bookID int64, issued, due time.Time, status string) int64 {
	t.Helper()

	ds := s.Insert("book_issues").Rows(goqu.Record{
		"book_id":    bookID,
		"user_id":    userID,
		"issue_date": issued,
		"due_date":   due,
		"status":     status,
		"fine":       decimal.Zero,
	})
	id, err := s.InsertID(context.Background(), s.DB(), ds, "issue_id")
	require.NoError(t, err)
	return id
}

// AddHistory appends a raw history row.
func AddHistory(t testing.TB, s *store.Store, userID, bookID int64, kind string) {
	t.Helper()

	ds := s.Insert("user_book_history").Rows(goqu.Record{
		"user_id":          userID,
		"book_id":          bookID,
		"interaction_type": kind,
		"occurred_at":      time.Now().UTC(),
	})
	_, err := store.Exec(context.Background(), s.DB(), ds)
	require.NoError(t, err)
}

// MustExec runs raw SQL, for fault injection triggers and assertions.
func MustExec(t testing.TB, s *store.Store, query string, args ...interface{}) {
	t.Helper()
	_, err := s.DB().ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

// Count returns SELECT COUNT(*) for the given table and optional WHERE clause.
func Count(t testing.TB, s *store.Store, table, where string, args ...interface{}) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	require.NoError(t, s.DB().GetContext(context.Background(), &n, query, args...))
	return n
}

// Available returns a book's available_copies.
func Available(t testing.TB, s *store.Store, bookID int64) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().GetContext(context.Background(), &n,
		"SELECT available_copies FROM books WHERE book_id = ?", bookID))
	return n
}
