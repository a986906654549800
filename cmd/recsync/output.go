package main

import (
	"fmt"
	"sort"

	"github.com/chmdznr/recsync/pkg/models"
	"github.com/chmdznr/recsync/pkg/utils"
	"github.com/fatih/color"
)

var (
	warn    = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	oldVal  = color.New(color.FgRed).SprintFunc()
	newVal  = color.New(color.FgGreen).SprintFunc()
	keyName = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func printMissing(err *models.MissingColumnsError) {
	failure.Println("Missing required columns:")
	for _, c := range err.Missing {
		fmt.Printf("  - %s\n", c)
	}
}

func printSummary(s *models.SyncSummary, showChanges bool) {
	for _, r := range s.Renames {
		warn.Printf("Duplicate column %s renamed to %s\n", r.Original, r.Renamed)
	}
	if len(s.AddedColumns) > 0 {
		fmt.Printf("New columns: %v\n", s.AddedColumns)
	}

	if showChanges && len(s.Modifications) > 0 {
		fmt.Println("\nModifications:")
		for _, m := range s.Modifications {
			fmt.Printf("  %s %s: %s -> %s\n", keyName(m.Key), m.Field, oldVal(quoted(m.Old)), newVal(quoted(m.New)))
		}
	}

	fmt.Printf("\nIngest Summary (batch %s):\n", s.BatchID)
	fmt.Printf("- New records:       %s\n", utils.FormatCount(s.New))
	fmt.Printf("- Updated records:   %s\n", utils.FormatCount(s.Updated))
	fmt.Printf("- Unchanged records: %s\n", utils.FormatCount(s.Unchanged))
	if s.Refreshed > 0 {
		fmt.Printf("- Refreshed fingerprints: %s\n", utils.FormatCount(s.Refreshed))
	}
	fmt.Printf("- Field changes:     %s\n", utils.FormatCount(len(s.Modifications)))
	fmt.Printf("- Duration:          %s\n", utils.FormatDuration(s.Duration))

	if len(s.Errors) > 0 {
		failure.Printf("\n%d rows failed:\n", len(s.Errors))
		for _, e := range s.Errors {
			fmt.Printf("  %s (%s): %s\n", keyName(e.Key), e.Op, e.Err)
		}
	}
}

func printRollback(r *models.RollbackResult) {
	fmt.Printf("Rolled back %s to history entry %d\n", keyName(r.Key), r.HistoryID)
	if len(r.Restored) == 0 {
		fmt.Println("No field values differed")
		return
	}
	for _, m := range r.Restored {
		fmt.Printf("  %s: %s -> %s\n", m.Field, oldVal(quoted(m.Old)), newVal(quoted(m.New)))
	}
}

func printHistory(entries []models.HistoryEntry) {
	for _, h := range entries {
		fmt.Printf("#%d %s %s (%s) from %s\n",
			h.ID, h.ChangeType, h.ChangedAt.Local().Format("2006-01-02 15:04:05"), utils.FormatSince(h.ChangedAt), h.SourceFile)
		fields := make([]string, 0, len(h.Fields))
		for field := range h.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			if v := h.Fields[field]; v != nil {
				fmt.Printf("    %s = %s\n", field, *v)
			}
		}
	}
}

func printStatus(path, keyColumn string, size int64, stats *models.Stats) {
	fmt.Printf("Store: %s", path)
	if size >= 0 {
		fmt.Printf(" (%s)", utils.FormatSize(size))
	}
	fmt.Println()
	fmt.Printf("Key column: %s\n", keyColumn)
	fmt.Printf("Records: %s\n", utils.FormatCount(stats.Records))
	fmt.Printf("Columns: %d\n", stats.Columns)
	fmt.Printf("History entries: %s\n", utils.FormatCount(stats.HistoryEntries))
	fmt.Printf("Rollbacks: %s\n", utils.FormatCount(stats.Rollbacks))
	if stats.LastSource != "" {
		fmt.Printf("Last ingest: %s from %s\n", utils.FormatSince(stats.LastIngest), stats.LastSource)
	} else {
		fmt.Println("Last ingest: never")
	}
}

func quoted(s string) string {
	if s == "" {
		return "(empty)"
	}
	return fmt.Sprintf("%q", s)
}
