package models

import (
	"strings"
	"time"
)

// Bookkeeping column names stored alongside business fields.
const (
	ColumnRowHash          = "row_hash"
	ColumnIngestTimestamp  = "ingest_timestamp"
	ColumnSourceFile       = "source_file"
	ColumnHistoryID        = "history_id"
	ColumnChangeType       = "change_type"
	ColumnChangedTimestamp = "changed_timestamp"
	ColumnBatchID          = "batch_id"
)

// ChangeSyncUpdateOld tags a history entry holding the values a record had
// right before a sync overwrote it.
const ChangeSyncUpdateOld = "sync_update_old"

// TimestampLayout is used for every timestamp persisted as text. Values are
// always UTC with a fixed fraction width so they sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// IsBookkeeping reports whether name is one of the reserved bookkeeping
// columns. SQLite identifiers are case-insensitive, so the check is too.
func IsBookkeeping(name string) bool {
	switch strings.ToLower(name) {
	case ColumnRowHash, ColumnIngestTimestamp, ColumnSourceFile,
		ColumnHistoryID, ColumnChangeType, ColumnChangedTimestamp, ColumnBatchID:
		return true
	}
	return false
}

// Record maps canonical column names to optional text values.
// A nil value is null.
type Record map[string]*string

// Get returns the value for column, or "" when it is null or absent.
func (r Record) Get(column string) string {
	if v := r[column]; v != nil {
		return *v
	}
	return ""
}

// Clone returns a shallow copy; the string values are immutable anyway.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Batch is one ingestion call's set of incoming records from a single source.
type Batch struct {
	Source  string
	Columns []string
	Values  map[string][]*string
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	n := 0
	for _, col := range b.Columns {
		if l := len(b.Values[col]); l > n {
			n = l
		}
	}
	return n
}

// Record materializes row i. Columns shorter than the batch are null.
func (b *Batch) Record(i int) Record {
	rec := make(Record, len(b.Columns))
	for _, col := range b.Columns {
		vals := b.Values[col]
		if i < len(vals) {
			rec[col] = vals[i]
		} else {
			rec[col] = nil
		}
	}
	return rec
}

// StoredRecord is a current-store row with its bookkeeping fields.
type StoredRecord struct {
	Key             string    `json:"key"`
	Fields          Record    `json:"fields"`
	RowHash         string    `json:"row_hash"`
	IngestTimestamp time.Time `json:"ingest_timestamp"`
	SourceFile      string    `json:"source_file"`
}

// HistoryEntry is an immutable snapshot of a record's prior values.
type HistoryEntry struct {
	ID         int64     `json:"history_id"`
	Key        string    `json:"key"`
	Fields     Record    `json:"fields"`
	RowHash    string    `json:"row_hash"`
	ChangeType string    `json:"change_type"`
	ChangedAt  time.Time `json:"changed_timestamp"`
	SourceFile string    `json:"source_file"`
	BatchID    string    `json:"batch_id,omitempty"`
}

// Snapshot is a materialized export of the current store.
type Snapshot struct {
	Columns []string    `json:"columns"`
	Rows    [][]*string `json:"rows"`
}
