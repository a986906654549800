package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/tabular"
	"github.com/chmdznr/recsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *config.Profile {
	return &config.Profile{
		KeyColumn:       "KEY",
		RequiredColumns: []string{"KEY", "BUDGET"},
		LegacyColumns:   []string{"REVENUE (ACTUAL)"},
		PageSize:        10,
	}
}

func TestIngest_StripsLegacyColumn(t *testing.T) {
	store := newTestStore(t)
	syncer := newTestSyncer(t, store)
	ctx := context.Background()

	table := &tabular.Table{
		Header: []string{" key ", "budget", "Revenue  (Actual)"},
		Rows:   [][]string{{"1", "100", "999"}},
	}
	summary, err := syncer.Ingest(ctx, table, "legacy.xlsx", testProfile())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)

	cols, err := store.Columns(ctx, store, db.TableCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY", "BUDGET"}, cols)
	assert.Equal(t, "100", currentRecord(t, store, "1").Fields.Get("BUDGET"))
}

func TestIngest_DuplicateHeaderColumnsRetained(t *testing.T) {
	store := newTestStore(t)
	syncer := newTestSyncer(t, store)
	ctx := context.Background()

	table := &tabular.Table{
		Header: []string{"KEY", "BUDGET", "budget"},
		Rows:   [][]string{{"1", "100", "200"}},
	}
	summary, err := syncer.Ingest(ctx, table, "dup.xlsx", testProfile())
	require.NoError(t, err)
	assert.Equal(t, []models.ColumnRename{{Original: "BUDGET", Renamed: "BUDGET_1"}}, summary.Renames)

	rec := currentRecord(t, store, "1")
	assert.Equal(t, "100", rec.Fields.Get("BUDGET"))
	assert.Equal(t, "200", rec.Fields.Get("BUDGET_1"))
}

func TestIngest_RejectsMissingColumns(t *testing.T) {
	store := newTestStore(t)
	syncer := newTestSyncer(t, store)
	ctx := context.Background()

	table := &tabular.Table{
		Header: []string{"KEY", "OWNER"},
		Rows:   [][]string{{"1", "ann"}},
	}
	_, err := syncer.Ingest(ctx, table, "bad.xlsx", testProfile())

	var missing *models.MissingColumnsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"BUDGET"}, missing.Missing)

	cols, err := store.Columns(ctx, store, db.TableCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY"}, cols, "a rejected batch never migrates the schema")
}

func TestIngest_BlankCellsAreNull(t *testing.T) {
	store := newTestStore(t)
	syncer := newTestSyncer(t, store)
	ctx := context.Background()

	table := &tabular.Table{
		Header: []string{"KEY", "BUDGET", "NOTE"},
		Rows:   [][]string{{"1", "  "}},
	}
	_, err := syncer.Ingest(ctx, table, "blank.csv", testProfile())
	require.NoError(t, err)

	rec := currentRecord(t, store, "1")
	assert.Nil(t, rec.Fields["BUDGET"])
	assert.Nil(t, rec.Fields["NOTE"])
}

func TestIngest_LowercaseProfileKey(t *testing.T) {
	store, err := db.New(filepath.Join(t.TempDir(), "lower.db"), db.Options{KeyColumn: "key", Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	syncer := newTestSyncer(t, store)

	profile := &config.Profile{KeyColumn: "key", RequiredColumns: []string{"budget"}}
	table := &tabular.Table{
		Header: []string{"key", "budget"},
		Rows:   [][]string{{"1", "10"}},
	}
	summary, err := syncer.Ingest(context.Background(), table, "lower.csv", profile)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, "10", currentRecord(t, store, "1").Fields.Get("BUDGET"))
}

func TestIngest_BlankHeadersNeverReachSchema(t *testing.T) {
	store := newTestStore(t)
	syncer := newTestSyncer(t, store)
	ctx := context.Background()

	table := &tabular.Table{
		Header: []string{"key", "budget", "", " "},
		Rows:   [][]string{{"1", "10", "x", "y"}},
	}
	summary, err := syncer.Ingest(ctx, table, "blank-header.xlsx", testProfile())
	require.NoError(t, err)
	assert.Equal(t, []string{"BUDGET"}, summary.AddedColumns)
	assert.Empty(t, summary.Renames)

	cols, err := store.Columns(ctx, store, db.TableCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY", "BUDGET"}, cols)
}

func TestIngest_RepeatedLegacyColumnStripped(t *testing.T) {
	store := newTestStore(t)
	syncer := newTestSyncer(t, store)
	ctx := context.Background()

	table := &tabular.Table{
		Header: []string{"KEY", "BUDGET", "REVENUE (ACTUAL)", "REVENUE (ACTUAL)"},
		Rows:   [][]string{{"1", "10", "9", "8"}},
	}
	_, err := syncer.Ingest(ctx, table, "legacy-twice.xlsx", testProfile())
	require.NoError(t, err)

	cols, err := store.Columns(ctx, store, db.TableCurrent)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY", "BUDGET"}, cols)
}
