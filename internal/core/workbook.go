package core

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// SheetSource decodes the sheets of an uploaded file on demand. Close
// releases whatever the open file holds, such as spilled temp files.
type SheetSource interface {
	SheetNames() []string
	DecodeSheet(name string) (*Table, error)
	Close() error
}

// Sheet is a named table, the unit a Codec encodes.
type Sheet struct {
	Name  string
	Table *Table
}

// Workbook is an ordered set of uniquely named sheets.
//
// Tables are decoded from the source lazily, the first time a sheet is
// asked for, and memoized by name for the life of the Workbook. A Workbook
// is not safe for concurrent use; sessions serialize access to it.
//
// The source is closed once every sheet has been decoded, or by Close.
type Workbook struct {
	names  []string
	tables map[string]*Table
	src    SheetSource

	// gate, when set, is taken around every sheet decode.
	gate func() (release func(), err error)
}

// NewWorkbook creates a workbook backed by src.
func NewWorkbook(src SheetSource) (*Workbook, error) {
	names := src.SheetNames()
	if len(names) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("workbook has no sheets")}
	}
	if dup, ok := firstDuplicate(names); ok {
		return nil, &DecodeError{Err: fmt.Errorf("duplicate sheet name %q", dup)}
	}
	return &Workbook{
		names:  slices.Clone(names),
		tables: make(map[string]*Table, len(names)),
		src:    src,
	}, nil
}

// NewWorkbookFromSheets creates a fully materialized workbook.
func NewWorkbookFromSheets(sheets ...Sheet) (*Workbook, error) {
	wb := &Workbook{tables: make(map[string]*Table, len(sheets))}
	for _, sh := range sheets {
		if wb.Has(sh.Name) {
			return nil, fmt.Errorf("duplicate sheet name %q", sh.Name)
		}
		wb.names = append(wb.names, sh.Name)
		t := sh.Table
		if t == nil {
			t = NewTable(nil)
		}
		wb.tables[sh.Name] = t.WithOrigin(sh.Name)
	}
	return wb, nil
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	return slices.Clone(w.names)
}

// Len returns the number of sheets.
func (w *Workbook) Len() int {
	return len(w.names)
}

// Has reports whether a sheet called name exists.
func (w *Workbook) Has(name string) bool {
	return slices.Contains(w.names, name)
}

// hasFold reports whether a sheet name matches name ignoring case, the way
// workbook files compare sheet names.
func (w *Workbook) hasFold(name string) bool {
	return slices.ContainsFunc(w.names, func(n string) bool { return strings.EqualFold(n, name) })
}

// Table returns the sheet's table, with the Origin column appended.
// The first call for a sheet decodes it; later calls return the memoized table.
func (w *Workbook) Table(name string) (*Table, error) {
	if !w.Has(name) {
		return nil, invalid("sheet", name, "sheet %q does not exist", name)
	}
	if t, ok := w.tables[name]; ok {
		return t, nil
	}
	if w.src == nil {
		return nil, fmt.Errorf("sheet %q has no data source", name)
	}
	if w.gate != nil {
		release, err := w.gate()
		if err != nil {
			return nil, err
		}
		defer release()
	}
	raw, err := w.src.DecodeSheet(name)
	if err != nil {
		return nil, &DecodeError{Sheet: name, Err: err}
	}
	t := raw.WithOrigin(name)
	w.tables[name] = t

	if len(w.tables) == len(w.names) {
		if err := w.Close(); err != nil {
			slog.Warn("close workbook source", "error", err)
		}
	}
	return t, nil
}

// Close releases the source. Sheets decoded so far stay readable; the rest
// can no longer be decoded. Close is idempotent.
func (w *Workbook) Close() error {
	if w == nil || w.src == nil {
		return nil
	}
	src := w.src
	w.src = nil
	return src.Close()
}

// retire closes prev once a commit has replaced it with next.
func retire(prev, next *Workbook) {
	if prev == nil || prev == next {
		return
	}
	if err := prev.Close(); err != nil {
		slog.Warn("close replaced workbook", "error", err)
	}
}

// Sheets materializes every sheet in workbook order.
func (w *Workbook) Sheets() ([]Sheet, error) {
	out := make([]Sheet, 0, len(w.names))
	for _, name := range w.names {
		t, err := w.Table(name)
		if err != nil {
			return nil, err
		}
		out = append(out, Sheet{Name: name, Table: t})
	}
	return out, nil
}

// Decoded reports how many sheets have been decoded so far.
func (w *Workbook) Decoded() int {
	return len(w.tables)
}

func firstDuplicate(names []string) (string, bool) {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return n, true
		}
		seen[n] = true
	}
	return "", false
}
