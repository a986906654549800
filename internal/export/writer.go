package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chmdznr/recsync/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	SheetData     = "Data"
	SheetMetadata = "Metadata"
)

// Metadata describes an export for the Metadata sheet
type Metadata struct {
	ExportedAt time.Time
	Source     string
}

// WriteXLSX writes snap to path as a workbook with a Data sheet and a
// Metadata sheet.
func WriteXLSX(snap *models.Snapshot, path string, meta Metadata) error {
	wb := excelize.NewFile()
	defer wb.Close()

	if err := wb.SetSheetName(wb.GetSheetName(0), SheetData); err != nil {
		return fmt.Errorf("failed to name data sheet: %w", err)
	}
	if err := writeData(wb, snap); err != nil {
		return err
	}

	if _, err := wb.NewSheet(SheetMetadata); err != nil {
		return fmt.Errorf("failed to create metadata sheet: %w", err)
	}
	info := []string{
		"Export Information",
		"Export Date: " + meta.ExportedAt.Format(time.RFC3339),
		"Source: " + meta.Source,
		fmt.Sprintf("Total Rows Exported: %d", len(snap.Rows)),
		fmt.Sprintf("Total Columns: %d", len(snap.Columns)),
	}
	for i, line := range info {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := wb.SetCellStr(SheetMetadata, cell, line); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	if err := wb.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func writeData(wb *excelize.File, snap *models.Snapshot) error {
	sw, err := wb.NewStreamWriter(SheetData)
	if err != nil {
		return fmt.Errorf("failed to open data sheet: %w", err)
	}

	header := make([]any, len(snap.Columns))
	for i, c := range snap.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for r, row := range snap.Rows {
		values := make([]any, len(row))
		for i, v := range row {
			if v != nil {
				values[i] = *v
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r+1, err)
		}
	}
	return sw.Flush()
}

// WriteCSV writes snap to w with a header row. Nulls become empty fields.
func WriteCSV(snap *models.Snapshot, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snap.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(snap.Columns))
	for _, row := range snap.Rows {
		for i, v := range row {
			record[i] = ""
			if v != nil {
				record[i] = *v
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes snap to path in the given format ("xlsx" or "csv").
func WriteFile(snap *models.Snapshot, path, format string, meta Metadata) error {
	switch format {
	case "xlsx":
		return WriteXLSX(snap, path, meta)
	case "csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := WriteCSV(snap, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
