package executor

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/platinummonkey/automigrate/pkg/migration"
)

// HistoryTable is the migration history table name.
const HistoryTable = "automigrate_history"

// execer is satisfied by *sql.DB and *sql.Tx, so history rows can be written
// inside the migration's own transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder maintains the migration history table.
type Recorder struct {
	db      *sql.DB
	dialect Dialect
}

// NewRecorder creates a recorder for the given database and dialect.
func NewRecorder(db *sql.DB, dialect Dialect) *Recorder {
	return &Recorder{db: db, dialect: dialect}
}

// EnsureSchema creates the history table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	var ddl string
	switch r.dialect.Name() {
	case "postgres":
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			app VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			run_id VARCHAR(36) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)`, HistoryTable)
	case "mysql":
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			app VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			run_id VARCHAR(36) NOT NULL,
			applied_at DATETIME(6) NOT NULL
		)`, HistoryTable)
	default:
		ddl = fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app TEXT NOT NULL,
			name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`, HistoryTable)
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure history table: %w", err)
	}
	return nil
}

// Record marks a migration as applied. Runs on the supplied execer so the
// history row commits or rolls back with the migration itself.
func (r *Recorder) Record(ctx context.Context, ex execer, m *migration.Migration, runID string) error {
	query := fmt.Sprintf("INSERT INTO %s (app, name, run_id, applied_at) VALUES (%s, %s, %s, %s)",
		HistoryTable, r.placeholder(1), r.placeholder(2), r.placeholder(3), r.placeholder(4))
	if _, err := ex.ExecContext(ctx, query, m.App, m.Name, runID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record %s: %w", m.ID(), err)
	}
	return nil
}

// Unrecord removes a migration's history row after rollback.
func (r *Recorder) Unrecord(ctx context.Context, ex execer, ref migration.Ref) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE app = %s AND name = %s",
		HistoryTable, r.placeholder(1), r.placeholder(2))
	if _, err := ex.ExecContext(ctx, query, ref.App, ref.Name); err != nil {
		return fmt.Errorf("failed to unrecord %s: %w", ref, err)
	}
	return nil
}

// Applied lists applied migrations in application order.
func (r *Recorder) Applied(ctx context.Context) ([]migration.Ref, error) {
	query := fmt.Sprintf("SELECT app, name FROM %s ORDER BY id", HistoryTable)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer rows.Close()

	var refs []migration.Ref
	for rows.Next() {
		var ref migration.Ref
		if err := rows.Scan(&ref.App, &ref.Name); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return refs, nil
}

// AcquireLock serializes concurrent migration runs. Postgres uses a
// session-scoped advisory lock; sqlite serializes through its write lock and
// mysql runs unlocked.
func (r *Recorder) AcquireLock(ctx context.Context) error {
	if r.dialect.Name() != "postgres" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockKey()); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return nil
}

// ReleaseLock releases the advisory lock taken by AcquireLock.
func (r *Recorder) ReleaseLock(ctx context.Context) error {
	if r.dialect.Name() != "postgres" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockKey()); err != nil {
		return fmt.Errorf("failed to release migration lock: %w", err)
	}
	return nil
}

func advisoryLockKey() int64 {
	h := fnv.New64a()
	h.Write([]byte(HistoryTable))
	return int64(h.Sum64())
}

// placeholder renders the dialect's query placeholder for position n.
func (r *Recorder) placeholder(n int) string {
	if r.dialect.Name() == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
