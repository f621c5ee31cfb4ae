// src/database/migrations.go
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/logger"
)

// ErrNoRollback is returned when a rollback is requested for a migration that
// defines no reverse operation. Rollbacks never silently no-op.
var ErrNoRollback = errors.New("no rollback available for migration")

// Migration is one schema change. Apply runs inside its own transaction; the
// version row is recorded in that same transaction, so a failed migration
// leaves no trace. Rollback is optional.
type Migration struct {
	Version  int
	Name     string
	Apply    func(tx *sql.Tx) error
	Rollback func(tx *sql.Tx) error
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME NOT NULL
)`

// Migrate brings the database to the highest defined version, applying pending
// migrations in strict ascending order. Already-applied versions are skipped.
// The first failure aborts the whole run; callers treat that as fatal.
func Migrate(db *sql.DB, migrations []Migration) error {
	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	current, err := appliedVersion(db)
	if err != nil {
		return err
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	applied := 0
	for _, m := range ordered {
		if m.Version <= current {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		logger.L.Info("Applied migration", "version", m.Version, "name", m.Name)
		applied++
	}

	if applied == 0 {
		logger.L.Info("No new database migrations to apply.")
	} else {
		logger.L.Info("Database migrations applied successfully.", "count", applied)
	}
	return nil
}

func applyOne(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := m.Apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO migrations (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("recording migration version: %w", err)
	}
	return tx.Commit()
}

// RollbackTo reverses migrations above target, newest first. A migration
// without a Rollback stops the walk with ErrNoRollback.
func RollbackTo(db *sql.DB, migrations []Migration, target int) error {
	current, err := appliedVersion(db)
	if err != nil {
		return err
	}

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version > ordered[j].Version })

	for _, m := range ordered {
		if m.Version > current || m.Version <= target {
			continue
		}
		if m.Rollback == nil {
			return fmt.Errorf("%w: version %d (%s)", ErrNoRollback, m.Version, m.Name)
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		if err := m.Rollback(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("rollback of migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec("DELETE FROM migrations WHERE version = ?", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("removing migration record %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.L.Info("Rolled back migration", "version", m.Version, "name", m.Name)
	}
	return nil
}

func appliedVersion(db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading applied migration version: %w", err)
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

// AppliedMigrations returns the audit log, oldest first.
func AppliedMigrations(db *sql.DB) ([]Migration, error) {
	rows, err := db.Query("SELECT version, name FROM migrations ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// columnExists checks table_info for the column. This is the preferred
// idempotence mechanism: a column may already exist from an older code path
// that altered the schema outside the migration log.
func columnExists(q queryer, table, column string) (bool, error) {
	rows, err := q.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &primaryKey); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableExists(q queryer, table string) (bool, error) {
	rows, err := q.Query("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// addColumnIfMissing is the shared guard used by column-adding migrations.
func addColumnIfMissing(tx *sql.Tx, table, column, definition string) error {
	exists, err := columnExists(tx, table, column)
	if err != nil {
		return err
	}
	if exists {
		logger.L.Debug("Column already present, skipping ALTER", "table", table, "column", column)
		return nil
	}
	_, err = tx.Exec(fmt.Sprintf("ALTER TABLE %q ADD COLUMN %s %s", table, column, definition))
	return err
}
