package core

import (
	"slices"
	"strconv"
	"time"
)

// PendingEdit is the single most recent cell edit of a session.
// A new edit replaces it in full; it is never merged with an earlier one.
type PendingEdit struct {
	Sheet    string    `json:"sheet"`
	Row      int       `json:"row"`
	Column   string    `json:"column"`
	OldValue Value     `json:"oldValue"`
	Value    string    `json:"value"`
	Table    *Table    `json:"table"`
	EditedAt time.Time `json:"editedAt"`
}

// RecordEdit returns a copy of t with the cell at (row, column) replaced by
// value. The value is stored as the raw text supplied, without converting it
// back to the column's original type. The Origin column cannot be edited.
func RecordEdit(t *Table, row int, column, value string) (*Table, error) {
	if row < 0 || row >= t.Len() {
		return nil, invalid("row", strconv.Itoa(row), "row %d is out of range [0, %d)", row, t.Len())
	}
	if err := requireColumn(t, column); err != nil {
		return nil, err
	}
	if column == OriginColumn {
		return nil, invalid("column", column, "column %q is generated and cannot be edited", column)
	}

	out := NewTable(t.Columns)
	out.Rows = slices.Clone(t.Rows)
	edited := cloneRow(t.Rows[row])
	edited[column] = Text(value)
	out.Rows[row] = edited
	return out, nil
}

// ExportEdits lays out the sheets to write for a pending edit.
//
// Sheets named in the pending table's Origin values are written from the
// pending rows, with Origin dropped. Other sheets are written from the
// workbook unchanged, unless legacy is set, in which case they are omitted
// and only the sheets touched by the edit are exported.
func ExportEdits(wb *Workbook, pending *PendingEdit, legacy bool) ([]Sheet, error) {
	if pending == nil || pending.Table == nil || pending.Table.Len() == 0 {
		return nil, invalid("edit", "", "there are no edits to save")
	}

	parts := pending.Table.partitionByOrigin()
	var out []Sheet
	for _, name := range wb.SheetNames() {
		if p, ok := parts[name]; ok {
			out = append(out, Sheet{Name: name, Table: p.WithoutColumn(OriginColumn)})
			continue
		}
		if legacy {
			continue
		}
		t, err := wb.Table(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Sheet{Name: name, Table: t.WithoutColumn(OriginColumn)})
	}
	if len(out) == 0 {
		return nil, invalid("edit", "", "the edited rows do not belong to any sheet")
	}
	return out, nil
}
