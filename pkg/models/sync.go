package models

import "time"

// Modification is one field-level change applied during a sync.
type Modification struct {
	Key   string `json:"key"`
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// RowError records a per-row storage failure that did not abort the batch.
type RowError struct {
	Key string `json:"key"`
	Op  string `json:"op"`
	Err string `json:"error"`
}

// ColumnRename reports a duplicate header column renamed to Name_N.
type ColumnRename struct {
	Original string `json:"original"`
	Renamed  string `json:"renamed"`
}

// SyncSummary is the transient result of applying one batch.
type SyncSummary struct {
	BatchID       string         `json:"batch_id"`
	Source        string         `json:"source"`
	StartedAt     time.Time      `json:"started_at"`
	Duration      time.Duration  `json:"duration"`
	New           int            `json:"new_records"`
	Updated       int            `json:"updated_records"`
	Unchanged     int            `json:"unchanged_records"`
	Refreshed     int            `json:"refreshed_fingerprints"`
	AddedColumns  []string       `json:"added_columns,omitempty"`
	Renames       []ColumnRename `json:"renames,omitempty"`
	Modifications []Modification `json:"modifications"`
	Errors        []RowError     `json:"errors"`
}

// Changed reports whether the batch inserted or updated anything.
func (s *SyncSummary) Changed() bool {
	return s.New > 0 || s.Updated > 0
}

// RollbackResult describes a successful rollback.
type RollbackResult struct {
	Key       string         `json:"key"`
	HistoryID int64          `json:"history_id"`
	Restored  []Modification `json:"restored"`
}
