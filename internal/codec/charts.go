package codec

import (
	"fmt"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/xuri/excelize/v2"
)

// chartSheet holds the data a chart workbook plots.
const chartSheet = "Chart"

// EncodePieChart writes the slices to a workbook together with a native
// pie chart over them.
func (c *Codec) EncodePieChart(data *core.PieChartData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(defaultSheet, chartSheet); err != nil {
		return nil, err
	}

	rows := [][]any{{data.Column, "Count", "Share"}}
	for _, s := range data.Slices {
		rows = append(rows, []any{s.Label, s.Count, s.Share})
	}
	if err := writeRows(f, rows); err != nil {
		return nil, err
	}

	if n := len(data.Slices); n > 0 {
		err := f.AddChart(chartSheet, "E2", &excelize.Chart{
			Type: excelize.Pie,
			Series: []excelize.ChartSeries{{
				Name:       fmt.Sprintf("'%s'!$B$1", chartSheet),
				Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", chartSheet, n+1),
				Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", chartSheet, n+1),
			}},
			Title: []excelize.RichTextRun{{Text: data.Column}},
		})
		if err != nil {
			return nil, fmt.Errorf("add pie chart: %w", err)
		}
	}
	return writeFile(f)
}

// EncodeLineChart writes the points to a workbook together with a native
// line chart over them.
func (c *Codec) EncodeLineChart(data *core.LineChartData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(defaultSheet, chartSheet); err != nil {
		return nil, err
	}

	rows := [][]any{{data.X, data.Y}}
	for _, p := range data.Points {
		rows = append(rows, []any{p.X, p.Y})
	}
	if err := writeRows(f, rows); err != nil {
		return nil, err
	}

	if n := len(data.Points); n > 0 {
		err := f.AddChart(chartSheet, "D2", &excelize.Chart{
			Type: excelize.Line,
			Series: []excelize.ChartSeries{{
				Name:       fmt.Sprintf("'%s'!$B$1", chartSheet),
				Categories: fmt.Sprintf("'%s'!$A$2:$A$%d", chartSheet, n+1),
				Values:     fmt.Sprintf("'%s'!$B$2:$B$%d", chartSheet, n+1),
			}},
			Title: []excelize.RichTextRun{{Text: fmt.Sprintf("%s by %s", data.Y, data.X)}},
		})
		if err != nil {
			return nil, fmt.Errorf("add line chart: %w", err)
		}
	}
	return writeFile(f)
}

func writeRows(f *excelize.File, rows [][]any) error {
	for i, r := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(chartSheet, ref, &r); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
