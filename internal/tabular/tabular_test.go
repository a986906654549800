package tabular

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{name: "export.xlsx", want: FormatXLSX},
		{name: "EXPORT.XLSX", want: FormatXLSX},
		{name: "macro.xlsm", want: FormatXLSX},
		{name: "data.csv", want: FormatCSV},
		{name: "notes.txt", wantErr: true},
		{name: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatOf(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSV(t *testing.T) {
	input := "\xef\xbb\xbfNOP,CAT,STATUS\n1,X,open\n\n2,\"Y, Z\"\n,,\n"

	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"NOP", "CAT", "STATUS"}, table.Header)
	assert.Equal(t, [][]string{
		{"1", "X", "open"},
		{"2", "Y, Z"},
	}, table.Rows)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.xlsx")

	wb := excelize.NewFile()
	sheet := wb.GetSheetName(0)
	require.NoError(t, wb.SetSheetRow(sheet, "A1", &[]any{"NOP", "CAT", "BUDGET"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A2", &[]any{"1", "X", "100"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A3", &[]any{"2", "", "200"}))
	require.NoError(t, wb.SetSheetRow(sheet, "A5", &[]any{"3", "Z"}))
	// Only the first sheet is read.
	_, err := wb.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, wb.SetSheetRow("Other", "A1", &[]any{"IGNORED"}))
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	table, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"NOP", "CAT", "BUDGET"}, table.Header)
	assert.Equal(t, [][]string{
		{"1", "X", "100"},
		{"2", "", "200"},
		{"3", "Z"},
	}, table.Rows)
}

func TestReadFile_Errors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "data.json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
