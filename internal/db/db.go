package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/pkg/models"
	_ "github.com/mattn/go-sqlite3"
)

// Table names
const (
	TableCurrent  = "records_current"
	TableHistory  = "records_history"
	TableRollback = "rollback_log"
	tableInfo     = "store_info"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB represents a database connection
type DB struct {
	*sql.DB
	path      string
	keyColumn string
	logger    *slog.Logger
}

// Options configures New
type Options struct {
	// KeyColumn is the business identifier column, e.g. NOP. It is stored
	// in canonical column form.
	KeyColumn string
	Logger    *slog.Logger
}

// New opens (creating if needed) the record store at path
func New(path string, opts Options) (*DB, error) {
	keyColumn := config.ColumnName(opts.KeyColumn)
	if keyColumn == "" {
		return nil, fmt.Errorf("key column is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "db")
	logger.Debug("opening record store", "path", path)

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, keyColumn: keyColumn, logger: logger}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// dsn sets the connection pragmas on every pooled connection.
func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// KeyColumn returns the business key column name
func (db *DB) KeyColumn() string {
	return db.keyColumn
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS store_info (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	var stored string
	err = db.QueryRow(`SELECT value FROM store_info WHERE key = 'key_column'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec(`INSERT INTO store_info (key, value) VALUES ('key_column', ?)`, db.keyColumn); err != nil {
			return fmt.Errorf("record key column: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read key column: %w", err)
	case stored != db.keyColumn:
		return fmt.Errorf("store %s is keyed by %q, not %q", db.path, stored, db.keyColumn)
	}

	key := quoteIdent(db.keyColumn)
	_, err = db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS records_current (
			%[1]s TEXT PRIMARY KEY,
			row_hash TEXT NOT NULL,
			ingest_timestamp TEXT NOT NULL,
			source_file TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS records_history (
			history_id INTEGER PRIMARY KEY AUTOINCREMENT,
			%[1]s TEXT NOT NULL,
			row_hash TEXT,
			change_type TEXT NOT NULL,
			changed_timestamp TEXT NOT NULL,
			source_file TEXT NOT NULL,
			batch_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_history_key ON records_history(%[1]s, change_type, history_id);
		CREATE TABLE IF NOT EXISTS rollback_log (
			history_id INTEGER PRIMARY KEY,
			record_key TEXT NOT NULL,
			rolled_back_at TEXT NOT NULL
		);
	`, key))
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// WithSavepoint runs fn inside a named savepoint of tx. When fn fails its
// effects are undone and the failure is returned as rowErr while the
// transaction stays usable. err reports a failure of the savepoint itself,
// after which the transaction must be abandoned.
func WithSavepoint(ctx context.Context, tx *sql.Tx, name string, fn func() error) (rowErr, err error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("savepoint %s: %w", name, err)
	}
	if rowErr = fn(); rowErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO "+name); err != nil {
			return rowErr, fmt.Errorf("rollback to %s: %w", name, err)
		}
		// ROLLBACK TO keeps the savepoint open
		if _, err := tx.ExecContext(ctx, "RELEASE "+name); err != nil {
			return rowErr, fmt.Errorf("release %s: %w", name, err)
		}
		return rowErr, nil
	}
	if _, err := tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return nil, fmt.Errorf("release %s: %w", name, err)
	}
	return nil, nil
}

// GetStats returns statistics about the store
func (db *DB) GetStats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	var last, source sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM records_current),
			(SELECT COUNT(*) FROM records_history),
			(SELECT COUNT(*) FROM rollback_log)
	`).Scan(&stats.Records, &stats.HistoryEntries, &stats.Rollbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	err = db.QueryRowContext(ctx, `
		SELECT ingest_timestamp, source_file FROM records_current
		ORDER BY ingest_timestamp DESC LIMIT 1
	`).Scan(&last, &source)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last ingest: %w", err)
	}
	stats.LastIngest = parseTime(last)
	stats.LastSource = source.String

	cols, err := db.Columns(ctx, db, TableCurrent)
	if err != nil {
		return nil, err
	}
	stats.Columns = len(cols)
	return &stats, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.TimestampLayout)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(models.TimestampLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
