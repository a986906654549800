package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chmdznr/recsync/pkg/models"
)

// The history ledger is append-only: nothing here updates or deletes an
// entry once it is written.

// AppendHistory appends entry to the ledger, writing the given business
// columns of entry.Fields, and returns the new surrogate id.
func (db *DB) AppendHistory(ctx context.Context, q Queryer, columns []string, entry *models.HistoryEntry) (int64, error) {
	names := append(quoteIdents(columns),
		models.ColumnRowHash,
		models.ColumnChangeType,
		models.ColumnChangedTimestamp,
		models.ColumnSourceFile,
		models.ColumnBatchID)
	args := make([]any, 0, len(names))
	for _, c := range columns {
		args = append(args, nullable(entry.Fields[c]))
	}
	args = append(args, entry.RowHash, entry.ChangeType, formatTime(entry.ChangedAt), entry.SourceFile, entry.BatchID)

	query := fmt.Sprintf(`INSERT INTO records_history (%s) VALUES (%s)`,
		strings.Join(names, ", "), placeholders(len(names)))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to append history for %s: %w", entry.Key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read history id: %w", err)
	}
	entry.ID = id
	return id, nil
}

// MostRecentHistory returns the latest entry of changeType for key, or
// models.ErrNotFound.
func (db *DB) MostRecentHistory(ctx context.Context, q Queryer, key, changeType string) (*models.HistoryEntry, error) {
	columns, err := db.Columns(ctx, q, TableHistory)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM records_history
		WHERE %s = ? AND change_type = ?
		ORDER BY history_id DESC LIMIT 1`,
		historySelect(columns), quoteIdent(db.keyColumn))

	entry, err := scanHistory(q.QueryRowContext(ctx, query, key, changeType), columns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history for %s: %w", key, err)
	}
	entry.Key = key
	return entry, nil
}

// ListHistory returns up to limit entries for key, newest first.
// A limit of zero or less returns every entry.
func (db *DB) ListHistory(ctx context.Context, key string, limit int) ([]models.HistoryEntry, error) {
	columns, err := db.Columns(ctx, db, TableHistory)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	query := fmt.Sprintf(`SELECT %s FROM records_history
		WHERE %s = ?
		ORDER BY history_id DESC LIMIT ?`,
		historySelect(columns), quoteIdent(db.keyColumn))

	rows, err := db.QueryContext(ctx, query, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows, columns)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		entry.Key = key
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// IsRolledBack reports whether a rollback already consumed historyID.
func (db *DB) IsRolledBack(ctx context.Context, q Queryer, historyID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rollback_log WHERE history_id = ?`, historyID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check rollback log: %w", err)
	}
	return n > 0, nil
}

// MarkRolledBack records that a rollback consumed historyID.
func (db *DB) MarkRolledBack(ctx context.Context, q Queryer, historyID int64, key string, at time.Time) error {
	_, err := q.ExecContext(ctx, `INSERT INTO rollback_log (history_id, record_key, rolled_back_at) VALUES (?, ?, ?)`,
		historyID, key, formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to record rollback of %s: %w", key, err)
	}
	return nil
}

func historySelect(columns []string) string {
	return selectList(columns,
		models.ColumnHistoryID,
		models.ColumnRowHash,
		models.ColumnChangeType,
		models.ColumnChangedTimestamp,
		models.ColumnSourceFile,
		models.ColumnBatchID)
}

func scanHistory(row scanner, columns []string) (*models.HistoryEntry, error) {
	vals := make([]sql.NullString, len(columns))
	var id int64
	var rowHash, changeType, ts, src, batch sql.NullString
	dest := make([]any, 0, len(columns)+6)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	dest = append(dest, &id, &rowHash, &changeType, &ts, &src, &batch)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	entry := &models.HistoryEntry{
		ID:         id,
		Fields:     make(models.Record, len(columns)),
		RowHash:    rowHash.String,
		ChangeType: changeType.String,
		ChangedAt:  parseTime(ts),
		SourceFile: src.String,
		BatchID:    batch.String,
	}
	for i, c := range columns {
		entry.Fields[c] = fromNullable(vals[i])
	}
	return entry, nil
}
