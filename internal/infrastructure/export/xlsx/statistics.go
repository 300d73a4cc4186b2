// Package xlsx renders analysis results as spreadsheet workbooks.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/hdimage/internal/core/imaging"
)

const (
	AllChannels = -1

	sheetSummary = "summary"
	sheetPlanes  = "planes"
)

var planeHeader = []any{"time", "z", "channel", "mean", "std", "min", "max"}

// WriteStatistics writes a workbook with a summary sheet holding the global
// statistics and a planes sheet with one row per (time, z, channel).
// A non-negative channel restricts the planes sheet to that channel.
func WriteStatistics(w io.Writer, st imaging.Stats, channel int) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := [][]any{
		{"metric", "value"},
		{"mean", st.Global.Mean},
		{"std", st.Global.Std},
		{"min", st.Global.Min},
		{"max", st.Global.Max},
	}
	for i, row := range summary {
		if err := setRow(f, sheetSummary, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(sheetSummary, 1, 1, bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}

	if _, err := f.NewSheet(sheetPlanes); err != nil {
		return fmt.Errorf("create planes sheet: %w", err)
	}
	if err := setRow(f, sheetPlanes, 1, planeHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheetPlanes, 1, 1, bold); err != nil {
		return fmt.Errorf("style planes header: %w", err)
	}

	row := 2
	for t := range st.Mean {
		for z := range st.Mean[t] {
			for ch := range st.Mean[t][z] {
				if channel >= 0 && ch != channel {
					continue
				}
				values := []any{t, z, ch, st.Mean[t][z][ch], st.Std[t][z][ch], st.Min[t][z][ch], st.Max[t][z][ch]}
				if err := setRow(f, sheetPlanes, row, values); err != nil {
					return err
				}
				row++
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
