package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chmdznr/recsync/pkg/models"
)

// Columns returns the recognized business columns of table in discovery
// order. The key column comes first; bookkeeping columns are excluded.
func (db *DB) Columns(ctx context.Context, q Queryer, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scan table info %s: %w", table, err)
		}
		if models.IsBookkeeping(name) {
			continue
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// EnsureColumns adds every column of columns that table does not know yet,
// in the given order, and returns the added ones. It never drops or renames.
// SQLite identifiers are case-insensitive, so matching is too.
func (db *DB) EnsureColumns(ctx context.Context, q Queryer, table string, columns []string) ([]string, error) {
	existing, err := db.Columns(ctx, q, table)
	if err != nil {
		return nil, &models.SchemaMigrationError{Table: table, Err: err}
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[strings.ToLower(c)] = true
	}

	var added []string
	for _, col := range columns {
		if known[strings.ToLower(col)] {
			continue
		}
		if models.IsBookkeeping(col) {
			return added, &models.SchemaMigrationError{Table: table, Column: col, Err: fmt.Errorf("reserved column name")}
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(table), quoteIdent(col))
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return added, &models.SchemaMigrationError{Table: table, Column: col, Err: err}
		}
		known[strings.ToLower(col)] = true
		added = append(added, col)
	}

	if len(added) > 0 {
		db.logger.Info("schema migration", "table", table, "added", added)
	}
	return added, nil
}

// EnsureSchema extends both the current and the history table with columns.
// It returns the columns newly added to the current table.
func (db *DB) EnsureSchema(ctx context.Context, q Queryer, columns []string) ([]string, error) {
	added, err := db.EnsureColumns(ctx, q, TableCurrent, columns)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureColumns(ctx, q, TableHistory, columns); err != nil {
		return nil, err
	}
	return added, nil
}
