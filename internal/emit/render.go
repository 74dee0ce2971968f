package emit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

// WriteJSON renders export rows as an indented JSON array.
func WriteJSON(w io.Writer, groups []Group) error {
	rows := ExportRows(groups)
	if rows == nil {
		rows = []ExportRow{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// WriteCSV renders export rows with a header line.
func WriteCSV(w io.Writer, groups []Group) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, r := range ExportRows(groups) {
		if err := cw.Write(r.Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "lineage"

// WriteXLSX renders export rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, groups []Group) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range ExportRows(groups) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			r.EtlSystem, r.EtlJob, r.AppName, r.SQLPath, r.SQLNo,
			r.SrcDB, r.SrcTbl, r.SrcCol, r.TarDB, r.TarTbl, r.TarCol,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteTable renders a terminal table of source and target columns.
func WriteTable(w io.Writer, groups []Group) error {
	rows := ExportRows(groups)
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 records)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"job", "sql_no", "source", "target"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			jobName(r.EtlSystem, r.EtlJob), r.SQLNo,
			dotted(r.SrcDB, r.SrcTbl, r.SrcCol), dotted(r.TarDB, r.TarTbl, r.TarCol),
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d records)\n", len(rows))
	return nil
}

func jobName(system, job string) string {
	if system == "" {
		return job
	}
	return system + "/" + job
}

func dotted(db, tbl, col string) string {
	if db == "" {
		return tbl + "." + col
	}
	return db + "." + tbl + "." + col
}
