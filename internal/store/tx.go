package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/renshi/internal/fault"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside one transaction and commits when fn returns nil.
// Every error, including commit failures, is passed through Classify.
func (s *Store) WithTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Classify(op, err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(tx); err != nil {
		return Classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		return Classify(op, err)
	}
	return nil
}

// Classify converts a raw error into a *fault.Error.
//
// Errors that already carry a kind are returned unchanged. SQLite busy and
// locked conditions become KindContention, other SQLite errors KindIO, and
// everything else KindInternal.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	if isLocked(err) {
		return fault.Wrap(fault.KindContention, op, "数据库繁忙，请稍后重试！", err)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return fault.Wrap(fault.KindIO, op, "数据库操作错误，请重试！", err)
	}
	return fault.Wrap(fault.KindInternal, op, "操作失败，请重试！", err)
}

// IsContention reports whether err is a transient lock on the store file.
// It is the default retry predicate.
func IsContention(err error) bool {
	return fault.IsContention(err) || isLocked(err)
}

func isLocked(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		if se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
