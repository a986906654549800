package models

import "time"

// Stats summarizes the store contents
type Stats struct {
	Records        int64     `json:"records"`
	HistoryEntries int64     `json:"history_entries"`
	Rollbacks      int64     `json:"rollbacks"`
	Columns        int       `json:"columns"`
	LastIngest     time.Time `json:"last_ingest"`
	LastSource     string    `json:"last_source"`
}
