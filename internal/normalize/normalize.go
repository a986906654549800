// Package normalize canonicalizes incoming column headers and cell values
// and validates a batch against a profile before it reaches the store.
package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/pkg/models"
)

// NormalizeName trims, collapses internal whitespace and uppercases.
func NormalizeName(name string) string {
	return config.ColumnName(name)
}

// NormalizeValue is the null-normalized text of a cell: nil is "".
// Fingerprints and diffs both compare through it.
func NormalizeValue(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// Cell converts raw reader text to an optional value. Blank cells are null.
func Cell(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// NormalizeHeader canonicalizes every name and resolves duplicates by
// appending _N, N being the 1-based duplicate occurrence left to right.
// Blank names stay blank and are never renamed.
func NormalizeHeader(raw []string) ([]string, []models.ColumnRename) {
	seen := make(map[string]int, len(raw))
	taken := make(map[string]bool, len(raw))
	cols := make([]string, 0, len(raw))
	var renames []models.ColumnRename

	for _, r := range raw {
		name := NormalizeName(r)
		if name == "" {
			cols = append(cols, name)
			continue
		}
		if _, dup := seen[name]; !dup && !taken[name] {
			seen[name] = 0
			taken[name] = true
			cols = append(cols, name)
			continue
		}
		// A generated name may collide with another header
		// (e.g. "X", "X", "X_1"); keep counting until it is free.
		renamed := ""
		for {
			seen[name]++
			renamed = fmt.Sprintf("%s_%d", name, seen[name])
			if !taken[renamed] {
				break
			}
		}
		taken[renamed] = true
		cols = append(cols, renamed)
		renames = append(renames, models.ColumnRename{Original: name, Renamed: renamed})
	}
	return cols, renames
}

func legacySet(profile *config.Profile) map[string]bool {
	legacy := make(map[string]bool, len(profile.LegacyColumns))
	for _, c := range profile.LegacyColumns {
		legacy[NormalizeName(c)] = true
	}
	return legacy
}

// Validate removes blank, legacy and reserved columns from cols and checks
// the required set. The returned slice preserves the input order.
func Validate(cols []string, profile *config.Profile, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	legacy := legacySet(profile)

	kept := make([]string, 0, len(cols))
	present := make(map[string]bool, len(cols))
	for i, c := range cols {
		switch {
		case c == "":
			logger.Warn("ignoring column with blank header", "position", i+1)
		case legacy[c]:
			logger.Info("removing legacy column from input", "column", c)
		case models.IsBookkeeping(c):
			logger.Warn("ignoring column with reserved name", "column", c)
		default:
			kept = append(kept, c)
			present[c] = true
		}
	}

	var missing []string
	for _, req := range profile.RequiredColumns {
		if !present[NormalizeName(req)] {
			missing = append(missing, NormalizeName(req))
		}
	}
	if len(missing) > 0 {
		return kept, &models.MissingColumnsError{Missing: missing}
	}
	return kept, nil
}

// BuildBatch turns a raw header and rows into a validated batch.
// Short rows are padded with nulls, extra cells are dropped.
//
// Blank and legacy headers are dropped before duplicates are resolved, so
// a repeated legacy column never survives under a generated name.
func BuildBatch(header []string, rows [][]string, source string, profile *config.Profile, logger *slog.Logger) (*models.Batch, []models.ColumnRename, error) {
	if logger == nil {
		logger = slog.Default()
	}
	legacy := legacySet(profile)

	// positions maps each surviving header to its cell index in a row.
	var positions []int
	var names []string
	for i, h := range header {
		name := NormalizeName(h)
		switch {
		case name == "":
			logger.Warn("ignoring column with blank header", "position", i+1)
		case legacy[name]:
			logger.Info("removing legacy column from input", "column", name)
		default:
			positions = append(positions, i)
			names = append(names, name)
		}
	}

	cols, renames := NormalizeHeader(names)
	for _, r := range renames {
		logger.Warn("duplicate column renamed", "column", r.Original, "renamed", r.Renamed)
	}

	kept, err := Validate(cols, profile, logger)
	if err != nil {
		return nil, renames, err
	}
	keep := make(map[string]bool, len(kept))
	for _, c := range kept {
		keep[c] = true
	}

	batch := &models.Batch{
		Source:  source,
		Columns: kept,
		Values:  make(map[string][]*string, len(kept)),
	}
	for j, col := range cols {
		if !keep[col] {
			continue
		}
		idx := positions[j]
		vals := make([]*string, len(rows))
		for i, row := range rows {
			if idx < len(row) {
				vals[i] = Cell(row[idx])
			}
		}
		batch.Values[col] = vals
	}
	return batch, renames, nil
}
