package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/logging"
)

// TimeLayout is the text format of every timestamp the store writes.
const TimeLayout = "2006-01-02 15:04:05"

// Store provides durable storage for personnel records.
type Store struct {
	db          *sql.DB
	logger      *zap.Logger
	now         func() time.Time
	busyTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

// WithClock sets the time source for written timestamps (default: time.Now).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBusyTimeout sets SQLite's busy_timeout pragma (default: 1s).
func WithBusyTimeout(d time.Duration) Option {
	return func(s *Store) { s.busyTimeout = d }
}

// Open creates or opens the SQLite database at path and applies pragmas.
//
// Open does not create tables; call Initialize and Migrate before using
// the store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := New(db, opts...)

	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s.logger.Debug("database opened", zap.String("path", path))
	return s, nil
}

// New wraps an already opened handle. No pragmas are applied.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		logger:      zap.NewNop(),
		now:         time.Now,
		busyTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Logger returns the store's logger.
func (s *Store) Logger() *zap.Logger {
	return s.logger
}

// Now returns the current time from the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Timestamp returns the current time formatted with TimeLayout.
func (s *Store) Timestamp() string {
	return s.now().Format(TimeLayout)
}

// Query executes a read-only query against the handle.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// applyPragmas sets required SQLite configuration.
func (s *Store) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
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
