package codec

import (
	"fmt"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/xuri/excelize/v2"
)

// defaultSheet is the sheet excelize.NewFile starts with.
const defaultSheet = "Sheet1"

// addSheet creates the i-th sheet of a new file, reusing the default sheet
// for the first one.
func addSheet(f *excelize.File, i int, name string) error {
	if i == 0 {
		if name == defaultSheet {
			return nil
		}
		if err := f.SetSheetName(defaultSheet, name); err != nil {
			return fmt.Errorf("name sheet %q: %w", name, err)
		}
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("add sheet %q: %w", name, err)
	}
	return nil
}

// writeTable writes a header row and one row per table row, without the
// Origin column. A nil or column-less table leaves the sheet empty.
func writeTable(f *excelize.File, sheet string, t *core.Table) error {
	if t == nil {
		return nil
	}
	t = t.WithoutColumn(core.OriginColumn)
	if len(t.Columns) == 0 {
		return nil
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for i, r := range t.Rows {
		cells := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = cellValue(r[c])
		}
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, ref, &cells); err != nil {
			return err
		}
	}
	return nil
}

// cellValue converts a Value to what excelize writes natively. Dates become
// Excel serial dates with a date number format.
func cellValue(v core.Value) any {
	switch v.Kind {
	case core.KindNumber:
		return v.Num
	case core.KindDate:
		return v.Time
	case core.KindString:
		return v.Str
	default:
		return nil
	}
}
