package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sethvargo/go-retry"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (tables only)
// 1 - Append-only triggers on auth_attempts
const currentSchemaVersion = 1

// timeLayout is used for every TEXT timestamp column.
const timeLayout = time.RFC3339Nano

// Store provides durable storage for templates, embeddings and audit records.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db      *sql.DB
	clock   clockwork.Clock
	retries uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for enrollment timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithBusyRetries sets how many times a write is retried when another
// process holds the database lock. Default: 5.
func WithBusyRetries(n uint64) Option {
	return func(s *Store) {
		s.retries = n
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
// Use ":memory:" for a throwaway database.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, storageErr("open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("connect to database", err)
	}

	// SQLite supports one writer at a time; a single connection turns the
	// pool into a single-writer queue.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, storageErr("apply pragmas", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, storageErr("apply schema", err)
	}

	s := &Store{
		db:      db,
		clock:   clockwork.NewRealClock(),
		retries: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// now returns the current store time in UTC.
func (s *Store) now() time.Time {
	return s.clock.Now().UTC()
}

// withTx runs fn in a transaction, retrying the whole transaction with
// exponential backoff while SQLite reports the database as busy.
// fn wraps its own SQL failures with storageErr; domain errors pass through.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return retryable(storageErr(op+": begin tx", err))
		}
		defer tx.Rollback() // No-op if committed

		if err := fn(tx); err != nil {
			return retryable(err)
		}
		if err := tx.Commit(); err != nil {
			return retryable(storageErr(op+": commit", err))
		}
		return nil
	})
}

// retryable marks busy errors for another attempt.
func retryable(err error) error {
	if isBusy(err) {
		return retry.RetryableError(err)
	}
	return err
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 makes auth_attempts append-only at the database level.
// The triggers also protect against writers that bypass this package.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TRIGGER IF NOT EXISTS auth_attempts_no_update
		BEFORE UPDATE ON auth_attempts
		BEGIN
			SELECT RAISE(ABORT, 'auth_attempts is append-only');
		END;

		CREATE TRIGGER IF NOT EXISTS auth_attempts_no_delete
		BEFORE DELETE ON auth_attempts
		BEGIN
			SELECT RAISE(ABORT, 'auth_attempts is append-only');
		END;
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
