package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/renshi/internal/fault"
)

func TestClassify(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint}

	tests := []struct {
		name string
		err  error
		want fault.Kind
	}{
		{"busy", busy, fault.KindContention},
		{"locked", fmt.Errorf("insert: %w", locked), fault.KindContention},
		{"locked text", errors.New("database is locked"), fault.KindContention},
		{"other sqlite", constraint, fault.KindIO},
		{"plain", errors.New("boom"), fault.KindInternal},
		{"kept", fault.NotFound("x", "人员不存在"), fault.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			assert.Equal(t, tt.want, fault.KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, Classify("op", nil))
}

func TestIsContention(t *testing.T) {
	assert.True(t, IsContention(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsContention(fault.New(fault.KindContention, "op", "busy")))
	assert.False(t, IsContention(fault.NotFound("op", "missing")))
	assert.False(t, IsContention(nil))
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		return s.AppendLog(ctx, tx, "测试", "target")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, s.db, "operation_log"))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		if err := s.AppendLog(ctx, tx, "测试", "target"); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, fault.KindInternal, fault.KindOf(err))
	assert.Equal(t, 0, countRows(t, s.db, "operation_log"))
}

func TestWithTx_BeginContentionFromDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	s := New(db)
	err = s.WithTx(context.Background(), "test", func(tx *sql.Tx) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.Error(t, err)
	assert.True(t, fault.IsContention(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitContentionFromDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO operation_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(sqlite3.Error{Code: sqlite3.ErrBusy})

	s := New(db)
	ctx := context.Background()
	err = s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		return s.AppendLog(ctx, tx, "测试", "target")
	})
	require.Error(t, err)
	assert.True(t, fault.IsContention(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RealWriterContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")

	holder, err := Open(path)
	require.NoError(t, err)
	defer holder.Close()
	ctx := context.Background()
	require.NoError(t, holder.Initialize(ctx))

	contender, err := Open(path, WithBusyTimeout(0))
	require.NoError(t, err)
	defer contender.Close()

	// holder keeps a write transaction open
	tx, err := holder.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, holder.AppendLog(ctx, tx, "持有", "lock"))
	defer tx.Rollback()

	err = contender.WithTx(ctx, "test", func(tx *sql.Tx) error {
		return contender.AppendLog(ctx, tx, "竞争", "lock")
	})
	require.Error(t, err)
	assert.True(t, fault.IsContention(err), "got %v", err)
}
