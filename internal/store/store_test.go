package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hr_data.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, path)
	assert.Equal(t, 1, s.DB().Stats().MaxOpenConnections)
}

func TestOpen_MissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "hr_data.db"))
	assert.Error(t, err)
}

func TestOpen_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hr_data.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))
	_, err = s.DB().Exec("INSERT INTO personnel (real_name, phone) VALUES ('张三', '138')")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 1, countRows(t, s.DB(), "personnel"))
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestClose_Twice(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "hr_data.db"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.NotPanics(t, func() { _ = s.Close() })
}

func TestTimestamp_UsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local)
	s := New(nil, WithClock(func() time.Time { return fixed }))

	assert.Equal(t, "2024-05-06 07:08:09", s.Timestamp())
	assert.Equal(t, fixed, s.Now())
}

func TestWithClock_NilKeepsDefault(t *testing.T) {
	s := New(nil, WithClock(nil))
	assert.WithinDuration(t, time.Now(), s.Now(), time.Minute)
}

func TestPragmas(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "hr_data.db"), WithBusyTimeout(250*time.Millisecond))
	require.NoError(t, err)
	defer s.Close()

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "250"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.want))
		})
	}
}

func TestForeignKeys_RejectOrphanPoolEntry(t *testing.T) {
	s := createTestStore(t)

	_, err := s.DB().Exec("INSERT INTO talent_pool (person_id, add_time, reason) VALUES (99, '', '')")
	require.Error(t, err)
	assert.Equal(t, 0, countRows(t, s.DB(), "talent_pool"))
}
