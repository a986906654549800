// Package export materializes the current record set into an external
// column layout and writes it as a spreadsheet or CSV file.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/pkg/models"
)

type column struct {
	source string
	name   string
}

// Project reads every current record and lays it out in the profile's
// export order. Schema columns outside that order follow in discovery
// order; bookkeeping columns never appear. Rows are ordered by key.
func Project(ctx context.Context, store *db.DB, profile *config.Profile) (*models.Snapshot, error) {
	schema, err := store.Columns(ctx, store, db.TableCurrent)
	if err != nil {
		return nil, err
	}
	layout := columnLayout(schema, profile)

	snap := &models.Snapshot{Columns: make([]string, len(layout))}
	for i, c := range layout {
		snap.Columns[i] = c.name
	}
	err = store.ForEachCurrent(ctx, profile.PageSize, func(rec models.StoredRecord) error {
		row := make([]*string, len(layout))
		for i, c := range layout {
			row[i] = rec.Fields[c.source]
		}
		snap.Rows = append(snap.Rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to project records: %w", err)
	}
	return snap, nil
}

// columnLayout maps schema columns to export columns. An alias renames a column
// unless its target name is already taken by another schema column.
func columnLayout(schema []string, profile *config.Profile) []column {
	taken := make(map[string]bool, len(schema))
	for _, c := range schema {
		taken[strings.ToUpper(c)] = true
	}

	cols := make([]column, 0, len(schema))
	byName := make(map[string]int, len(schema))
	for _, c := range schema {
		name := c
		if alias, ok := lookupAlias(profile.ExportAliases, c); ok && !taken[strings.ToUpper(alias)] {
			name = alias
			taken[strings.ToUpper(alias)] = true
		}
		byName[strings.ToUpper(name)] = len(cols)
		cols = append(cols, column{source: c, name: name})
	}

	ordered := make([]column, 0, len(cols))
	used := make([]bool, len(cols))
	for _, want := range profile.ExportOrder {
		i, ok := byName[strings.ToUpper(want)]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		ordered = append(ordered, cols[i])
	}
	for i, c := range cols {
		if !used[i] {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func lookupAlias(aliases map[string]string, column string) (string, bool) {
	for from, to := range aliases {
		if strings.EqualFold(from, column) {
			return to, true
		}
	}
	return "", false
}
