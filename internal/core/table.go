package core

import (
	"encoding/json"
	"slices"
)

// OriginColumn is the synthetic column recording the sheet a row was loaded
// from. It is appended on load and stripped again when a workbook is encoded.
const OriginColumn = "Origin"

// Row maps column names to cells. Missing columns read as null.
type Row map[string]Value

// Table is the ordered row/column data of one sheet.
//
// Tables are treated as immutable once built: every query and edit returns a
// new Table and never writes into the rows of its input.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given columns.
func NewTable(columns []string) *Table {
	return &Table{Columns: slices.Clone(columns)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether column is one of the table's columns.
func (t *Table) HasColumn(column string) bool {
	return t != nil && slices.Contains(t.Columns, column)
}

// Cell returns the value at row i, column col.
func (t *Table) Cell(i int, col string) Value {
	return t.Rows[i][col]
}

// Append adds a row built from values in column order.
func (t *Table) Append(values ...Value) {
	row := make(Row, len(t.Columns))
	for i, col := range t.Columns {
		if i < len(values) {
			row[col] = values[i]
		}
	}
	t.Rows = append(t.Rows, row)
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	out := NewTable(t.Columns)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = cloneRow(r)
	}
	return out
}

// Where returns a new table holding the rows for which keep returns true,
// in their original order.
func (t *Table) Where(keep func(Row) bool) *Table {
	out := NewTable(t.Columns)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// ColumnKind returns the kind shared by every non-null value of column.
// A column mixing kinds reports KindString; an all-null column reports KindNull.
func (t *Table) ColumnKind(column string) Kind {
	kind := KindNull
	for _, r := range t.Rows {
		v := r[column]
		if v.IsNull() {
			continue
		}
		if kind == KindNull {
			kind = v.Kind
			continue
		}
		if v.Kind != kind {
			return KindString
		}
	}
	return kind
}

// WithOrigin returns a copy of t whose Origin column is set to sheet on every row.
func (t *Table) WithOrigin(sheet string) *Table {
	out := t.Clone()
	if !out.HasColumn(OriginColumn) {
		out.Columns = append(out.Columns, OriginColumn)
	}
	for _, r := range out.Rows {
		r[OriginColumn] = Text(sheet)
	}
	return out
}

// WithoutColumn returns a copy of t without column.
func (t *Table) WithoutColumn(column string) *Table {
	cols := slices.DeleteFunc(slices.Clone(t.Columns), func(c string) bool { return c == column })
	out := NewTable(cols)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		nr := cloneRow(r)
		delete(nr, column)
		out.Rows[i] = nr
	}
	return out
}

// Concat stacks tables in order. Columns are the union of all inputs in
// first-seen order; rows missing a column read it as null.
func Concat(tables ...*Table) *Table {
	var cols []string
	for _, t := range tables {
		for _, c := range t.Columns {
			if !slices.Contains(cols, c) {
				cols = append(cols, c)
			}
		}
	}
	out := NewTable(cols)
	for _, t := range tables {
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// partitionByOrigin groups rows by their Origin value, keeping row order.
func (t *Table) partitionByOrigin() map[string]*Table {
	parts := make(map[string]*Table)
	for _, r := range t.Rows {
		origin := r[OriginColumn].String()
		p, ok := parts[origin]
		if !ok {
			p = NewTable(t.Columns)
			parts[origin] = p
		}
		p.Rows = append(p.Rows, r)
	}
	return parts
}

// MarshalJSON encodes the table as {"columns": [...], "rows": [[...], ...]}
// with each row's cells in column order.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([][]Value, len(t.Rows))
	for i, r := range t.Rows {
		cells := make([]Value, len(t.Columns))
		for j, c := range t.Columns {
			cells[j] = r[c]
		}
		rows[i] = cells
	}
	cols := t.Columns
	if cols == nil {
		cols = []string{}
	}
	return json.Marshal(struct {
		Columns []string  `json:"columns"`
		Rows    [][]Value `json:"rows"`
	}{cols, rows})
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
