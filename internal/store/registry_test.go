package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/renshi/internal/fault"
)

func TestEnsureExtensionColumn_AddsColumnAndRegistryRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var (
		column string
		added  bool
	)
	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		var err error
		column, added, err = s.EnsureExtensionColumn(ctx, tx, "备注", "备注")
		return err
	})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "备注", column)
	assert.True(t, contains(getTableColumns(t, s.db, "personnel"), "备注"))

	cols, err := s.ExtensionColumns(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, ExtensionColumn{Name: "备注", SourceHeader: "备注", Version: 1, AddedAt: cols[0].AddedAt}, cols[0])
	assert.NotEmpty(t, cols[0].AddedAt)
}

func TestEnsureExtensionColumn_SecondCallIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, want := range []bool{true, false} {
		err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
			_, added, err := s.EnsureExtensionColumn(ctx, tx, "特长_爱好", "特长/爱好")
			assert.Equal(t, want, added, "call %d", i)
			return err
		})
		require.NoError(t, err)
	}

	cols, err := s.ExtensionColumns(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, cols, 1)
}

func TestEnsureExtensionColumn_VersionsIncrease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		for _, name := range []string{"a", "b", "c"} {
			if _, _, err := s.EnsureExtensionColumn(ctx, tx, name, name); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	cols, err := s.ExtensionColumns(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cols, 3)
	for i, c := range cols {
		assert.Equal(t, i+1, c.Version)
	}
}

func TestEnsureExtensionColumn_RolledBackWithTransaction(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		if _, _, err := s.EnsureExtensionColumn(ctx, tx, "临时", "临时"); err != nil {
			return err
		}
		return fault.Validation("test", "abort")
	})
	require.Error(t, err)

	assert.False(t, contains(getTableColumns(t, s.db, "personnel"), "临时"))
	cols, err := s.ExtensionColumns(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestEnsureExtensionColumn_QuotesNames(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		_, _, err := s.EnsureExtensionColumn(ctx, tx, `he said "hi"`, `he said "hi"`)
		return err
	})
	require.NoError(t, err)
	assert.True(t, contains(getTableColumns(t, s.db, "personnel"), `he said "hi"`))
}

func TestEnsureExtensionColumn_CaseInsensitive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var got []string
	err := s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		for _, name := range []string{"Remark", "remark", "REMARK"} {
			column, _, err := s.EnsureExtensionColumn(ctx, tx, name, name)
			if err != nil {
				return err
			}
			got = append(got, column)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Remark", "Remark", "Remark"}, got)

	cols, err := s.ExtensionColumns(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "Remark", cols[0].Name)
}

func TestEnsureExtensionColumn_AdoptsUnregisteredSpelling(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	_, err := s.DB().Exec(`ALTER TABLE personnel ADD COLUMN "Hobby" TEXT`)
	require.NoError(t, err)

	var added bool
	var column string
	err = s.WithTx(ctx, "test", func(tx *sql.Tx) error {
		var err error
		column, added, err = s.EnsureExtensionColumn(ctx, tx, "hobby", "爱好")
		return err
	})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, "Hobby", column)

	cols, err := s.ExtensionColumns(ctx, nil)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, ExtensionColumn{Name: "Hobby", SourceHeader: "爱好", Version: 1, AddedAt: cols[0].AddedAt}, cols[0])
}

func TestSameIdent(t *testing.T) {
	assert.True(t, SameIdent("Remark", "rEMARK"))
	assert.True(t, SameIdent("备注", "备注"))
	assert.False(t, SameIdent("Remark", "Remarks"))
	// only ASCII letters fold
	assert.False(t, SameIdent("Ä", "ä"))
}

func TestValidateColumnName(t *testing.T) {
	assert.NoError(t, ValidateColumnName("备注"))
	for _, bad := range []string{"", "  ", "id", "ID", "phone", "Real_Name"} {
		err := ValidateColumnName(bad)
		assert.True(t, fault.IsValidation(err), "name %q", bad)
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"a"`, QuoteIdent("a"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}
