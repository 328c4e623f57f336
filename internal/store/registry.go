package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/renshi/internal/fault"
)

// ExtensionColumn describes a personnel column added for an import header
// that matched no known field.
type ExtensionColumn struct {
	// Name is the column name in personnel.
	Name string

	// SourceHeader is the header text that introduced the column.
	SourceHeader string

	// Version is the registry sequence number, starting at 1.
	Version int

	// AddedAt is when the column was added (TimeLayout).
	AddedAt string
}

// ExtensionColumns returns the registry ordered by version.
func (s *Store) ExtensionColumns(ctx context.Context, q Querier) ([]ExtensionColumn, error) {
	if q == nil {
		q = s.db
	}
	rows, err := q.QueryContext(ctx, `
		SELECT name, source_header, version, added_at
		FROM extension_columns
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, Classify("store.extension_columns", fmt.Errorf("query extension columns: %w", err))
	}
	defer rows.Close()

	cols := []ExtensionColumn{}
	for rows.Next() {
		var c ExtensionColumn
		if err := rows.Scan(&c.Name, &c.SourceHeader, &c.Version, &c.AddedAt); err != nil {
			return nil, Classify("store.extension_columns", fmt.Errorf("scan extension column: %w", err))
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("store.extension_columns", fmt.Errorf("iterate extension columns: %w", err))
	}
	return cols, nil
}

// EnsureExtensionColumn makes sure personnel has a TEXT column called name
// and that the registry records it. It runs on the caller's transaction so
// the column appears atomically with the rows that use it.
//
// Column names compare case-insensitively, as SQLite does. When the column
// already exists under another spelling that spelling is returned and used
// for the registry row. added is true when the column was added by this call.
func (s *Store) EnsureExtensionColumn(ctx context.Context, tx Querier, name, header string) (column string, added bool, err error) {
	if err := ValidateColumnName(name); err != nil {
		return "", false, err
	}

	cols, err := orderedColumns(ctx, tx, "personnel")
	if err != nil {
		return "", false, err
	}

	column = name
	exists := false
	for _, c := range cols {
		if SameIdent(c, name) {
			column, exists = c, true
			break
		}
	}
	if !exists {
		stmt := fmt.Sprintf("ALTER TABLE personnel ADD COLUMN %s TEXT", QuoteIdent(column))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return "", false, fmt.Errorf("add extension column %q: %w", column, err)
		}
		added = true
	}

	registered, err := s.registerColumn(ctx, tx, column, header)
	if err != nil {
		return "", false, err
	}
	if added || registered {
		s.logger.Info("extension column registered",
			zap.String("column", column),
			zap.String("header", header),
			zap.Bool("column_added", added),
		)
	}
	return column, added, nil
}

// registerColumn inserts a registry row for name unless one exists under
// any letter case. Returns true when a row was inserted.
func (s *Store) registerColumn(ctx context.Context, tx Querier, name, header string) (bool, error) {
	var existing string
	err := tx.QueryRowContext(ctx, "SELECT name FROM extension_columns WHERE name = ? COLLATE NOCASE", name).Scan(&existing)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("lookup extension column %q: %w", name, err)
	}

	var next int
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) + 1 FROM extension_columns").Scan(&next); err != nil {
		return false, fmt.Errorf("next registry version: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO extension_columns (name, source_header, version, added_at)
		VALUES (?, ?, ?, ?)
	`, name, header, next, s.Timestamp())
	if err != nil {
		return false, fmt.Errorf("register extension column %q: %w", name, err)
	}
	return true, nil
}

// SameIdent reports whether a and b name the same SQLite identifier. SQLite
// folds only ASCII letters.
func SameIdent(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowerASCII(a[i]) != lowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func lowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// ValidateColumnName rejects names that cannot be used as an extension column.
func ValidateColumnName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fault.Validation("store.extension_column", "列名不能为空")
	}
	if strings.EqualFold(name, "id") {
		return fault.Validation("store.extension_column", "列名不能为 id")
	}
	for _, c := range PersonnelColumns {
		if strings.EqualFold(name, c) {
			return fault.Validation("store.extension_column", fmt.Sprintf("列名 %s 与固定字段冲突", name))
		}
	}
	return nil
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
