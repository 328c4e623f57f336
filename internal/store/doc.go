// Package store owns the SQLite file that holds the personnel records.
//
// The store keeps four base tables plus the extension registry:
//   - personnel: one row per person, fixed columns plus extension columns
//   - talent_pool: pool membership, person_id references personnel.id
//   - operation_log: append-only audit trail
//   - users: the single credential row (id = 1)
//   - extension_columns: versioned registry of columns added by imports
//
// # Critical Patterns
//
// One handle: a Store wraps exactly one *sql.DB, opened once and closed by
// the owner. Components receive the Store instead of opening the file.
//
// One transaction per operation: WithTx begins, runs the callback and
// commits; the deferred rollback releases the transaction on every path.
//
// Forward-only schema: Initialize creates missing tables, Migrate applies
// additive steps guarded by PRAGMA table_info. Both are idempotent.
//
// Extension columns only grow: EnsureExtensionColumn adds the column and its
// registry row in the caller's transaction, nothing ever drops them.
//
// # Database Configuration
//
//   - WAL mode: readers do not block the writer
//   - busy_timeout: SQLite's own wait before reporting a lock (configurable)
//   - foreign_keys=ON
//   - one open connection: SQLite allows a single writer
//
// Lock errors are classified as fault.KindContention so the retry executor
// can tell them apart from permanent failures.
package store
