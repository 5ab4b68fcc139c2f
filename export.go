package newsharvest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/newsharvest/article"
	"github.com/xuri/excelize/v2"
)

// ExportFilename is the spreadsheet written into each run's output
// directory.
const ExportFilename = "news_data.xlsx"

// exportSheet names the single worksheet.
const exportSheet = "news"

// WriteXLSX writes records to path as a spreadsheet with a header row of
// article.Columns followed by one row per record. An empty slice produces a
// header-only file.
func WriteXLSX(path string, records []article.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(article.Columns))
	for i, name := range article.Columns {
		header[i] = name
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	for i, rec := range records {
		row := rec.Row()
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if len(records) > 0 {
		top, _ := excelize.CoordinatesToCellName(2, 2)
		bottom, _ := excelize.CoordinatesToCellName(2, len(records)+1)
		if err := f.SetCellStyle(exportSheet, top, bottom, dateStyle); err != nil {
			return fmt.Errorf("failed to style dates: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}

	return nil
}

// ReadXLSX returns the rows of a file written by WriteXLSX as strings,
// header first.
func ReadXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return rows, nil
}
