package normalize

import (
	"errors"
	"testing"

	"github.com/chmdznr/recsync/internal/config"
	"github.com/chmdznr/recsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already canonical", input: "NOP", expected: "NOP"},
		{name: "lowercase", input: "status", expected: "STATUS"},
		{name: "surrounding spaces", input: "  cost ", expected: "COST"},
		{name: "internal whitespace", input: "assign \t  by", expected: "ASSIGN BY"},
		{name: "empty", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "", NormalizeValue(nil))
	assert.Equal(t, "", NormalizeValue(models.StringPtr("  ")))
	assert.Equal(t, "x", NormalizeValue(models.StringPtr(" x ")))

	assert.Nil(t, Cell(""))
	assert.Nil(t, Cell(" \t"))
	require.NotNil(t, Cell("0"))
	assert.Equal(t, "0", *Cell("0"))
}

func TestNormalizeHeader_Duplicates(t *testing.T) {
	cols, renames := NormalizeHeader([]string{"Budget", "cost", "BUDGET ", "budget"})

	assert.Equal(t, []string{"BUDGET", "COST", "BUDGET_1", "BUDGET_2"}, cols)
	assert.Equal(t, []models.ColumnRename{
		{Original: "BUDGET", Renamed: "BUDGET_1"},
		{Original: "BUDGET", Renamed: "BUDGET_2"},
	}, renames)
}

func TestNormalizeHeader_GeneratedNameCollision(t *testing.T) {
	cols, _ := NormalizeHeader([]string{"X", "X", "X_1"})

	assert.Equal(t, []string{"X", "X_1", "X_1_1"}, cols)
}

func testProfile() *config.Profile {
	return &config.Profile{
		KeyColumn:       "KEY",
		RequiredColumns: []string{"KEY", "CAT", "STATUS"},
		LegacyColumns:   []string{"revenue (actual)"},
	}
}

func TestValidate(t *testing.T) {
	cols := []string{"KEY", "REVENUE (ACTUAL)", "CAT", "ROW_HASH", "STATUS", "EXTRA"}

	kept, err := Validate(cols, testProfile(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY", "CAT", "STATUS", "EXTRA"}, kept)
}

func TestValidate_MissingColumns(t *testing.T) {
	_, err := Validate([]string{"CAT"}, testProfile(), nil)

	var missing *models.MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"KEY", "STATUS"}, missing.Missing)
	assert.Contains(t, err.Error(), "KEY, STATUS")
}

func TestBuildBatch(t *testing.T) {
	header := []string{"key", "Cat", "cat", "Status", "Revenue (Actual)"}
	rows := [][]string{
		{"1", "X", "Y", "open", "100"},
		{"2", "", "Z"},
	}

	batch, renames, err := BuildBatch(header, rows, "file.xlsx", testProfile(), nil)
	require.NoError(t, err)

	assert.Equal(t, "file.xlsx", batch.Source)
	assert.Equal(t, []string{"KEY", "CAT", "CAT_1", "STATUS"}, batch.Columns)
	assert.Len(t, renames, 1)
	assert.Equal(t, 2, batch.Len())

	first := batch.Record(0)
	assert.Equal(t, "X", first.Get("CAT"))
	assert.Equal(t, "Y", first.Get("CAT_1"))
	_, hasLegacy := first["REVENUE (ACTUAL)"]
	assert.False(t, hasLegacy)

	second := batch.Record(1)
	assert.Nil(t, second["CAT"], "blank cell is null")
	assert.Nil(t, second["STATUS"], "short row is padded with null")
	assert.Equal(t, "Z", second.Get("CAT_1"))
}

func TestBuildBatch_Rejected(t *testing.T) {
	_, _, err := BuildBatch([]string{"key"}, nil, "f", testProfile(), nil)

	var missing *models.MissingColumnsError
	assert.ErrorAs(t, err, &missing)
}

func TestNormalizeHeader_BlankNamesNotRenamed(t *testing.T) {
	cols, renames := NormalizeHeader([]string{"KEY", "", "  ", "KEY"})

	assert.Equal(t, []string{"KEY", "", "", "KEY_1"}, cols)
	assert.Equal(t, []models.ColumnRename{{Original: "KEY", Renamed: "KEY_1"}}, renames)
}

func TestBuildBatch_DropsBlankHeaders(t *testing.T) {
	header := []string{"key", "", "cat", " ", "status"}
	rows := [][]string{{"1", "stray", "X", "more", "open"}}

	batch, renames, err := BuildBatch(header, rows, "f", testProfile(), nil)
	require.NoError(t, err)

	assert.Empty(t, renames)
	assert.Equal(t, []string{"KEY", "CAT", "STATUS"}, batch.Columns)
	rec := batch.Record(0)
	assert.Equal(t, "X", rec.Get("CAT"))
	assert.Equal(t, "open", rec.Get("STATUS"))
	assert.Len(t, rec, 3)
}

func TestBuildBatch_RepeatedLegacyColumnDropped(t *testing.T) {
	header := []string{"KEY", "REVENUE (ACTUAL)", "CAT", "revenue (actual)", "STATUS"}
	rows := [][]string{{"1", "9", "X", "8", "open"}}

	batch, renames, err := BuildBatch(header, rows, "f", testProfile(), nil)
	require.NoError(t, err)

	assert.Empty(t, renames)
	assert.Equal(t, []string{"KEY", "CAT", "STATUS"}, batch.Columns)
	assert.Equal(t, "X", batch.Record(0).Get("CAT"))
}

func TestValidate_DropsBlankColumns(t *testing.T) {
	kept, err := Validate([]string{"KEY", "", "CAT", "STATUS"}, testProfile(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"KEY", "CAT", "STATUS"}, kept)
}
