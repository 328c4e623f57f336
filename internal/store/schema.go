package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Schema version tracking:
// 0 - schema created by earlier releases (no registry, maybe no reason column)
// 1 - users.password_enabled, talent_pool.reason
// 2 - extension_columns registry
const currentSchemaVersion = 2

// DefaultCredentialHash is the SHA-256 hex digest of the default password
// "123456", seeded when the credential table is empty.
const DefaultCredentialHash = "8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92"

// PersonnelColumns lists the fixed personnel columns (excluding id) in
// declared order.
var PersonnelColumns = []string{
	"real_name", "gender", "age", "id_number", "phone",
	"province", "city", "county", "nickname", "education",
	"political_status", "occupation", "position", "status", "join_date",
	"donation_days", "address", "bio", "photo_path",
}

var baseTables = []string{
	`CREATE TABLE IF NOT EXISTS personnel (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		real_name TEXT,
		gender TEXT,
		age INTEGER,
		id_number TEXT,
		phone TEXT,
		province TEXT,
		city TEXT,
		county TEXT,
		nickname TEXT,
		education TEXT,
		political_status TEXT,
		occupation TEXT,
		position TEXT,
		status TEXT,
		join_date TEXT,
		donation_days TEXT,
		address TEXT,
		bio TEXT,
		photo_path TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS operation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_type TEXT,
		operation_target TEXT,
		operation_time TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS talent_pool (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		person_id INTEGER,
		add_time TEXT,
		reason TEXT,
		FOREIGN KEY (person_id) REFERENCES personnel(id)
	)`,
	usersTable,
	registryTable,
}

const usersTable = `CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		password_hash TEXT,
		password_enabled INTEGER DEFAULT 1
	)`

const registryTable = `CREATE TABLE IF NOT EXISTS extension_columns (
		name TEXT PRIMARY KEY,
		source_header TEXT NOT NULL,
		version INTEGER NOT NULL UNIQUE,
		added_at TEXT NOT NULL
	)`

// Initialize creates the base tables if they do not exist.
// This function is idempotent.
func (s *Store) Initialize(ctx context.Context) error {
	err := s.WithTx(ctx, "store.initialize", func(tx *sql.Tx) error {
		for _, stmt := range baseTables {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("database initialized")
	return nil
}

// Migrate applies additive schema changes and seeds the credential row.
//
// Each step checks the current schema first, so running Migrate any number
// of times leaves the same schema and exactly one credential row.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.WithTx(ctx, "store.migrate", func(tx *sql.Tx) error {
		steps := []struct {
			name string
			fn   func(context.Context, *sql.Tx) error
		}{
			{"talent_pool.reason", s.migrateTalentPoolReason},
			{"users", s.migrateUsers},
			{"extension_columns", s.migrateRegistry},
			{"default credential", s.seedCredential},
		}
		for _, step := range steps {
			if err := step.fn(ctx, tx); err != nil {
				return fmt.Errorf("migrate %s: %w", step.name, err)
			}
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("database migration checked", zap.Int("schema_version", currentSchemaVersion))
	return nil
}

// SchemaVersion returns PRAGMA user_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, Classify("store.schema_version", fmt.Errorf("get user_version: %w", err))
	}
	return version, nil
}

func (s *Store) migrateTalentPoolReason(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "talent_pool")
	if err != nil {
		return err
	}
	if cols["reason"] {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE talent_pool ADD COLUMN reason TEXT"); err != nil {
		return err
	}
	s.logger.Info("migration: added talent_pool.reason")
	return nil
}

func (s *Store) migrateUsers(ctx context.Context, tx *sql.Tx) error {
	cols, err := tableColumns(ctx, tx, "users")
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		if _, err := tx.ExecContext(ctx, usersTable); err != nil {
			return err
		}
		s.logger.Info("migration: created users")
		return nil
	}
	if !cols["password_enabled"] {
		if _, err := tx.ExecContext(ctx, "ALTER TABLE users ADD COLUMN password_enabled INTEGER DEFAULT 1"); err != nil {
			return err
		}
		s.logger.Info("migration: added users.password_enabled")
	}
	_, err = tx.ExecContext(ctx, "UPDATE users SET password_enabled = 1 WHERE password_enabled IS NULL")
	return err
}

// migrateRegistry creates the registry and adopts extension columns added
// to personnel by releases that predate it.
func (s *Store) migrateRegistry(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, registryTable); err != nil {
		return err
	}

	cols, err := orderedColumns(ctx, tx, "personnel")
	if err != nil {
		return err
	}
	fixed := make(map[string]bool, len(PersonnelColumns)+1)
	fixed["id"] = true
	for _, c := range PersonnelColumns {
		fixed[c] = true
	}

	for _, col := range cols {
		if fixed[col] {
			continue
		}
		if _, err := s.registerColumn(ctx, tx, col, col); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedCredential(ctx context.Context, tx *sql.Tx) error {
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO users (id, password_hash, password_enabled) VALUES (1, ?, 1)",
		DefaultCredentialHash,
	)
	if err != nil {
		return err
	}
	s.logger.Info("migration: seeded default credential")
	return nil
}

// tableColumns returns the set of column names of table.
// A missing table yields an empty set.
func tableColumns(ctx context.Context, q Querier, table string) (map[string]bool, error) {
	cols, err := orderedColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set, nil
}

// orderedColumns returns the column names of table in declaration order.
func orderedColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info %s: %w", table, err)
	}
	return cols, nil
}

// Columns returns the personnel columns currently in the schema, fixed and
// extension, in declaration order.
func (s *Store) Columns(ctx context.Context) ([]string, error) {
	cols, err := orderedColumns(ctx, s.db, "personnel")
	if err != nil {
		return nil, Classify("store.columns", err)
	}
	return cols, nil
}
