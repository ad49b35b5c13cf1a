package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/celerix-dev/celerix-leads/pkg/schema"
)

// SheetName is the single worksheet of the spreadsheet export.
const SheetName = "Leads"

const headerFill = "E0E0E0"

// WriteXLSX writes a workbook with one sheet: a bold, shaded header row and one
// row per lead in the order given. Score stays numeric so it sorts in Excel.
func WriteXLSX(w io.Writer, leads []schema.Lead, opts Options) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	for i, c := range Columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(SheetName, col, col, c.Width); err != nil {
			return fmt.Errorf("set width of %s: %w", c.Header, err)
		}
	}

	header := make([]any, len(Columns))
	for i, h := range Headers() {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, style); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := make([]any, len(Columns))
	for r, l := range leads {
		for i, c := range Columns {
			if i == scoreColumn {
				row[i] = l.Score
				continue
			}
			row[i] = c.Value(l, opts)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
