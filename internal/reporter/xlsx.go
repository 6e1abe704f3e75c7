package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// writeXLSX renders each table on its own sheet, in order
func writeXLSX(writer io.Writer, tables ...table) error {
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, t.sheet); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", t.sheet, err)
		}

		if err := writeSheet(f, t, headerStyle); err != nil {
			return err
		}
	}

	if err := f.Write(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t table, headerStyle int) error {
	headers := make([]interface{}, len(t.headers))
	for i, h := range t.headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(t.sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write headers on %s: %w", t.sheet, err)
	}

	lastHeader, err := excelize.CoordinatesToCellName(len(t.headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.sheet, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to style headers on %s: %w", t.sheet, err)
	}

	for i, row := range t.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(t.sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d on %s: %w", i+2, t.sheet, err)
		}
	}

	return f.SetPanes(t.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
