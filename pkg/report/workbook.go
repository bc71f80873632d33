package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary      = "Summary"
	SheetInstallments = "Installments"
	SheetLate         = "Late"
	SheetDueSoon      = "Due Soon"
	SheetTotals       = "Totals"
)

type sheet struct {
	name   string
	rows   func(Input) [][]any
	widths []float64
}

var sheets = []sheet{
	{SheetSummary, SummaryRows, []float64{25, 15, 30, 8, 15, 15, 15, 17, 12, 14, 12}},
	{SheetInstallments, InstallmentRows, []float64{25, 15, 12, 12, 14, 12, 11, 12, 15, 13, 12, 12, 13, 10, 10}},
	{SheetLate, LateRows, []float64{25, 15, 11, 12, 10, 15, 20, 12, 12, 13}},
	{SheetDueSoon, DueSoonRows, []float64{25, 15, 11, 12, 15, 15, 12, 13}},
	{SheetTotals, TotalsRows, []float64{30, 25}},
}

// Build lays out every sheet in a new workbook.
func Build(in Input) (*excelize.File, error) {
	f := excelize.NewFile()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sh.name); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to add sheet %q: %w", sh.name, err)
		}

		if err := writeRows(f, sh.name, sh.rows(in)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to fill sheet %q: %w", sh.name, err)
		}
		for col, w := range sh.widths {
			name, _ := excelize.ColumnNumberToName(col + 1)
			if err := f.SetColWidth(sh.name, name, name, w); err != nil {
				f.Close()
				return nil, err
			}
		}
		if err := f.SetRowStyle(sh.name, 1, 1, bold); err != nil {
			f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write builds the workbook and writes it as xlsx to w.
func Write(w io.Writer, in Input) error {
	f, err := Build(in)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeRows(f *excelize.File, sheetName string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
