// Package db provides relational persistence for the platform: tenancy,
// workflows and their graph state, deployment versions, executions, copilot
// chats, templates and webhooks.
//
// SQLite (embedded) is the default; PostgreSQL is supported through the same
// driver abstraction. Queries are written with ? placeholders and rebound per
// dialect.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/randalmurphal/flowd/internal/db/driver"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB wraps a database connection with dialect abstraction.
type DB struct {
	driver driver.Driver
	dsn    string
}

// Open opens a SQLite database at the given path, creating the parent
// directory if needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens an in-memory SQLite database. Each call creates a new
// isolated database; ideal for tests.
func OpenInMemory() (*DB, error) {
	return OpenWithDialect(":memory:", driver.DialectSQLite)
}

// OpenWithDialect opens a database with a specific dialect.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*DB, error) {
	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	return &DB{driver: drv, dsn: dsn}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.driver.Close()
}

// Migrate applies pending schema migrations.
func (d *DB) Migrate() error {
	return d.driver.Migrate(context.Background(), schemaFS)
}

// Dialect returns the database dialect.
func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// DB returns the underlying sql.DB for advanced operations.
func (d *DB) DB() *sql.DB {
	return d.driver.DB()
}

// Exec executes a query, rebinding placeholders for the dialect.
func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(context.Background(), d.driver.Rebind(query), args...)
}

// ExecContext executes a query with context.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, d.driver.Rebind(query), args...)
}

// Query executes a query that returns rows.
func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(context.Background(), d.driver.Rebind(query), args...)
}

// QueryRow executes a query that returns at most one row.
func (d *DB) QueryRow(query string, args ...any) *sql.Row {
	return d.driver.QueryRow(context.Background(), d.driver.Rebind(query), args...)
}

// BeginTx starts a transaction. Callers are responsible for rebinding when
// running raw queries on the returned tx; use Rebind.
func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.driver.BeginTx(ctx, nil)
}

// Rebind translates ? placeholders for the active dialect.
func (d *DB) Rebind(query string) string {
	return d.driver.Rebind(query)
}

// beginTx starts a transaction with a background context. Entity files use
// it for multi-statement writes.
func beginTx(d *DB) (context.Context, *sql.Tx, error) {
	ctx := context.Background()
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	return ctx, tx, nil
}

// --- time helpers ---

// fmtTime formats a timestamp for storage. All timestamps are stored as
// RFC3339 UTC strings for portability across dialects.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// fmtTimePtr formats an optional timestamp.
func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

// parseTime parses a stored timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTimePtr parses an optional stored timestamp.
func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	return &t
}

// isUniqueViolation matches unique-constraint errors across both dialects.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}
