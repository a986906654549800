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

// GetRecord loads the current record for key, reading the given business
// columns. Returns models.ErrNotFound when the key is absent.
func (db *DB) GetRecord(ctx context.Context, q Queryer, columns []string, key string) (*models.StoredRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM records_current WHERE %s = ?`,
		selectList(columns, models.ColumnRowHash, models.ColumnIngestTimestamp, models.ColumnSourceFile),
		quoteIdent(db.keyColumn))

	rec, err := scanStored(q.QueryRowContext(ctx, query, key), columns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", key, err)
	}
	rec.Key = key
	return rec, nil
}

// InsertRecord inserts a new current record. columns lists the fields of
// rec to write and must include the key column.
func (db *DB) InsertRecord(ctx context.Context, q Queryer, columns []string, rec models.Record, rowHash string, ts time.Time, source string) error {
	names := append(quoteIdents(columns), models.ColumnRowHash, models.ColumnIngestTimestamp, models.ColumnSourceFile)
	args := make([]any, 0, len(names))
	for _, c := range columns {
		args = append(args, nullable(rec[c]))
	}
	args = append(args, rowHash, formatTime(ts), source)

	query := fmt.Sprintf(`INSERT INTO records_current (%s) VALUES (%s)`,
		strings.Join(names, ", "), placeholders(len(names)))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// UpdateRecord overwrites the given columns of key and its bookkeeping.
func (db *DB) UpdateRecord(ctx context.Context, q Queryer, key string, columns []string, rec models.Record, rowHash string, ts time.Time, source string) error {
	sets, args := setClause(columns, rec)
	sets = append(sets,
		models.ColumnRowHash+" = ?",
		models.ColumnIngestTimestamp+" = ?",
		models.ColumnSourceFile+" = ?")
	args = append(args, rowHash, formatTime(ts), source, key)
	return db.execUpdate(ctx, q, key, sets, args)
}

// RestoreRecord overwrites the given columns of key and its fingerprint,
// leaving ingest timestamp and source untouched.
func (db *DB) RestoreRecord(ctx context.Context, q Queryer, key string, columns []string, rec models.Record, rowHash string) error {
	sets, args := setClause(columns, rec)
	sets = append(sets, models.ColumnRowHash+" = ?")
	args = append(args, rowHash, key)
	return db.execUpdate(ctx, q, key, sets, args)
}

// UpdateRowHash replaces only the stored fingerprint of key.
func (db *DB) UpdateRowHash(ctx context.Context, q Queryer, key, rowHash string) error {
	return db.execUpdate(ctx, q, key, []string{models.ColumnRowHash + " = ?"}, []any{rowHash, key})
}

func (db *DB) execUpdate(ctx context.Context, q Queryer, key string, sets []string, args []any) error {
	query := fmt.Sprintf(`UPDATE records_current SET %s WHERE %s = ?`,
		strings.Join(sets, ", "), quoteIdent(db.keyColumn))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ForEachCurrent streams every current record ordered by key, reading
// pageSize rows per query. fn may stop iteration by returning an error.
func (db *DB) ForEachCurrent(ctx context.Context, pageSize int, fn func(models.StoredRecord) error) error {
	return db.ForEachCurrentAfter(ctx, "", pageSize, fn)
}

// ForEachCurrentAfter is ForEachCurrent starting past key after. An empty
// after starts from the first record.
func (db *DB) ForEachCurrentAfter(ctx context.Context, after string, pageSize int, fn func(models.StoredRecord) error) error {
	if pageSize <= 0 {
		pageSize = 500
	}
	columns, err := db.Columns(ctx, db, TableCurrent)
	if err != nil {
		return err
	}
	key := quoteIdent(db.keyColumn)
	list := selectList(columns, models.ColumnRowHash, models.ColumnIngestTimestamp, models.ColumnSourceFile)
	firstPage := fmt.Sprintf(`SELECT %s FROM records_current ORDER BY %s LIMIT ?`, list, key)
	nextPage := fmt.Sprintf(`SELECT %s FROM records_current WHERE %s > ? ORDER BY %s LIMIT ?`, list, key, key)

	var page []models.StoredRecord
	if after == "" {
		page, err = db.currentPage(ctx, columns, firstPage, pageSize)
	} else {
		page, err = db.currentPage(ctx, columns, nextPage, after, pageSize)
	}
	for {
		if err != nil {
			return err
		}
		for _, rec := range page {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		page, err = db.currentPage(ctx, columns, nextPage, page[len(page)-1].Key, pageSize)
	}
}

func (db *DB) currentPage(ctx context.Context, columns []string, query string, args ...any) ([]models.StoredRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var page []models.StoredRecord
	for rows.Next() {
		rec, err := scanStored(rows, columns)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Key = rec.Fields.Get(db.keyColumn)
		page = append(page, *rec)
	}
	return page, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStored(row scanner, columns []string) (*models.StoredRecord, error) {
	vals := make([]sql.NullString, len(columns)+3)
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec := &models.StoredRecord{Fields: make(models.Record, len(columns))}
	for i, c := range columns {
		rec.Fields[c] = fromNullable(vals[i])
	}
	n := len(columns)
	rec.RowHash = vals[n].String
	rec.IngestTimestamp = parseTime(vals[n+1])
	rec.SourceFile = vals[n+2].String
	return rec, nil
}

func selectList(columns []string, extra ...string) string {
	return strings.Join(append(quoteIdents(columns), extra...), ", ")
}

func setClause(columns []string, rec models.Record) ([]string, []any) {
	sets := make([]string, 0, len(columns)+3)
	args := make([]any, 0, len(columns)+4)
	for _, c := range columns {
		sets = append(sets, quoteIdent(c)+" = ?")
		args = append(args, nullable(rec[c]))
	}
	return sets, args
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
