package store

import (
	"context"
	"fmt"
)

// LogEntry is one row of the append-only operation log.
type LogEntry struct {
	ID     int64
	Type   string
	Target string
	Time   string
}

// AppendLog writes an operation log entry on q (normally the operation's
// transaction), stamped with the store clock. Entries are never updated.
func (s *Store) AppendLog(ctx context.Context, q Querier, opType, target string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO operation_log (operation_type, operation_target, operation_time) VALUES (?, ?, ?)",
		opType, target, s.Timestamp(),
	)
	if err != nil {
		return fmt.Errorf("append operation log: %w", err)
	}
	return nil
}

// ListLog returns the most recent log entries, newest first.
// A limit of zero or less returns every entry.
func (s *Store) ListLog(ctx context.Context, limit int) ([]LogEntry, error) {
	query := `
		SELECT id, COALESCE(operation_type, ''), COALESCE(operation_target, ''), COALESCE(operation_time, '')
		FROM operation_log
		ORDER BY operation_time DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify("store.list_log", fmt.Errorf("query operation log: %w", err))
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Target, &e.Time); err != nil {
			return nil, Classify("store.list_log", fmt.Errorf("scan operation log: %w", err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("store.list_log", fmt.Errorf("iterate operation log: %w", err))
	}
	return entries, nil
}
