package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"
)

const pivotSheet = "Pivot"

// WriteXLSX writes the pivot as a single-sheet workbook.
func WriteXLSX(w io.Writer, p PivotTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), pivotSheet); err != nil {
		return fmt.Errorf("WriteXLSX: naming sheet: %w", err)
	}

	for col, title := range p.Header() {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("WriteXLSX: header cell: %w", err)
		}
		if err := f.SetCellValue(pivotSheet, cell, title); err != nil {
			return fmt.Errorf("WriteXLSX: writing header: %w", err)
		}
	}

	for i, row := range p.Rows {
		values := []any{row.Year}
		for _, c := range p.Columns {
			values = append(values, row.Totals[c].InexactFloat64())
		}
		if row.Net != nil {
			values = append(values, row.Net.InexactFloat64())
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("WriteXLSX: row cell: %w", err)
		}
		if err := f.SetSheetRow(pivotSheet, cell, &values); err != nil {
			return fmt.Errorf("WriteXLSX: writing year %d: %w", row.Year, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("WriteXLSX: writing workbook: %w", err)
	}
	return nil
}

// RenderTable prints the pivot as a terminal table.
func RenderTable(w io.Writer, p PivotTable) {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	header := table.Row{}
	for _, h := range p.Header() {
		header = append(header, h)
	}
	t.AppendHeader(header)

	for _, r := range p.Rows {
		row := table.Row{r.Year}
		for _, c := range p.Columns {
			row = append(row, r.Totals[c].StringFixed(2))
		}
		if r.Net != nil {
			net := r.Net.StringFixed(2)
			if r.Net.IsNegative() {
				net = text.FgRed.Sprint(net)
			} else {
				net = text.FgGreen.Sprint(net)
			}
			row = append(row, net)
		}
		t.AppendRow(row)
	}

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault

	configs := make([]table.ColumnConfig, 0, len(header)-1)
	for n := 2; n <= len(header); n++ {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	t.Render()
}
