// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config describes how to reach the database.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Statement is anything goqu can render to SQL.
type Statement interface {
	ToSQL() (string, []interface{}, error)
}

// Store is the handle every component receives instead of a global connection.
type Store struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	tracer  trace.Tracer
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn := cfg.DSN
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}

	return New(db, driver), nil
}

// New wraps an already opened connection pool.
func New(db *sqlx.DB, driver string) *Store {
	return &Store{
		db:      db,
		driver:  driver,
		dialect: goqu.Dialect(driver),
		tracer:  otel.Tracer("bookrec/store"),
	}
}

func sqliteDSN(path string) string {
	if path == "" {
		path = "bookrec.db"
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", path)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for reads outside a transaction.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) From(table ...interface{}) *goqu.SelectDataset {
	return s.dialect.From(table...).Prepared(true)
}

func (s *Store) Insert(table interface{}) *goqu.InsertDataset {
	return s.dialect.Insert(table).Prepared(true)
}

func (s *Store) Update(table interface{}) *goqu.UpdateDataset {
	return s.dialect.Update(table).Prepared(true)
}

// WithTx runs fn inside a transaction. fn's error, or a failed commit, rolls
// everything back; the connection goes back to the pool on every path.
func (s *Store) WithTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.tx", trace.WithAttributes(attribute.String("tx.op", op)))
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.Bool("tx.committed", true))
	return nil
}

// Get renders stmt and scans a single row into dest.
func Get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, stmt Statement) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// Select renders stmt and scans all rows into dest.
func Select(ctx context.Context, q sqlx.QueryerContext, dest interface{}, stmt Statement) error {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// Exec renders stmt and executes it.
func Exec(ctx context.Context, q sqlx.ExecerContext, stmt Statement) (sql.Result, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return q.ExecContext(ctx, query, args...)
}

// ExecAffected executes stmt and returns the number of rows it touched.
func ExecAffected(ctx context.Context, q sqlx.ExecerContext, stmt Statement) (int64, error) {
	res, err := Exec(ctx, q, stmt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// InsertID executes an insert and returns the generated key. lib/pq has no
// LastInsertId, so Postgres goes through RETURNING.
func (s *Store) InsertID(ctx context.Context, q sqlx.ExtContext, ds *goqu.InsertDataset, idColumn string) (int64, error) {
	var id int64
	if s.driver == DriverPostgres {
		if err := Get(ctx, q, &id, ds.Returning(goqu.C(idColumn))); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := Exec(ctx, q, ds)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// IsNoRows reports whether err is the empty result sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports a unique index or primary key collision on either driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsCheckViolation reports a CHECK constraint failure on either driver.
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}
