package core

// query.go implements the stateless filters and searches over tables.
//
// None of these functions mutate their input: each returns a new Table that
// shares no row slice with the original and keeps the original row order.

import (
	"strconv"
	"strings"
	"time"
)

// AllColumns selects every column of a row in Search.
const AllColumns = ""

// SearchMode selects how a query is matched against cells.
type SearchMode string

const (
	// ModeName matches a case-insensitive substring.
	ModeName SearchMode = "name"
	// ModeNumber parses the query as an integer and matches its decimal form.
	ModeNumber SearchMode = "number"
)

// ParseSearchMode converts user input to a SearchMode. Empty input is ModeName.
func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "name", "text":
		return ModeName, nil
	case "number", "numeric":
		return ModeNumber, nil
	default:
		return "", invalid("mode", s, "search mode must be name or number")
	}
}

// FilterByDateRange keeps rows whose date in column falls within
// [start, end], inclusive. Rows with an empty date never match.
func FilterByDateRange(t *Table, column string, start, end time.Time) (*Table, error) {
	if err := requireColumn(t, column); err != nil {
		return nil, err
	}
	if t.ColumnKind(column) != KindDate {
		return nil, invalid("column", column, "column %q is not a date column", column)
	}
	if start.After(end) {
		return nil, invalid("date", start.Format(time.DateOnly), "start date is after end date")
	}
	return t.Where(func(r Row) bool {
		v := r[column]
		if v.Kind != KindDate {
			return false
		}
		return !v.Time.Before(start) && !v.Time.After(end)
	}), nil
}

// FilterByColumnSubstring keeps rows whose cells contain every supplied
// substring in the matching column, ignoring case. Empty substrings are skipped.
func FilterByColumnSubstring(t *Table, filters map[string]string) (*Table, error) {
	needles := make(map[string]string, len(filters))
	for col, sub := range filters {
		if sub == "" {
			continue
		}
		if err := requireColumn(t, col); err != nil {
			return nil, err
		}
		needles[col] = strings.ToLower(sub)
	}
	if len(needles) == 0 {
		return t.Where(func(Row) bool { return true }), nil
	}
	return t.Where(func(r Row) bool {
		for col, needle := range needles {
			if !strings.Contains(strings.ToLower(r[col].String()), needle) {
				return false
			}
		}
		return true
	}), nil
}

// Search returns the rows of t matching query in column, or in any column
// when column is AllColumns. An empty query returns every row.
func Search(t *Table, query, column string, mode SearchMode) (*Table, error) {
	m, err := newMatcher(query, mode)
	if err != nil {
		return nil, err
	}
	if column != AllColumns {
		if err := requireColumn(t, column); err != nil {
			return nil, err
		}
	}
	return searchTable(t, m, column), nil
}

// SearchAcrossWorkbook runs Search on every sheet in workbook order and
// stacks the non-empty results. A sheet without the named column contributes
// no rows. When nothing matches the result is an empty table, not an error.
func SearchAcrossWorkbook(wb *Workbook, query, column string, mode SearchMode) (*Table, error) {
	m, err := newMatcher(query, mode)
	if err != nil {
		return nil, err
	}

	var hits []*Table
	for _, name := range wb.SheetNames() {
		t, err := wb.Table(name)
		if err != nil {
			return nil, err
		}
		if column != AllColumns && !t.HasColumn(column) {
			continue
		}
		if found := searchTable(t, m, column); found.Len() > 0 {
			hits = append(hits, found)
		}
	}
	if len(hits) == 0 {
		return NewTable(nil), nil
	}
	return Concat(hits...), nil
}

// matcher tests a single cell against a prepared query.
type matcher struct {
	all   bool
	match func(Value) bool
}

func newMatcher(query string, mode SearchMode) (matcher, error) {
	if query == "" {
		return matcher{all: true}, nil
	}
	switch mode {
	case ModeName, "":
		needle := strings.ToLower(query)
		return matcher{match: func(v Value) bool {
			return strings.Contains(strings.ToLower(v.String()), needle)
		}}, nil
	case ModeNumber:
		n, err := strconv.ParseInt(strings.TrimSpace(query), 10, 64)
		if err != nil {
			return matcher{}, invalid("query", query, "search value %q must be a whole number", query)
		}
		needle := strconv.FormatInt(n, 10)
		return matcher{match: func(v Value) bool {
			return strings.Contains(v.String(), needle)
		}}, nil
	default:
		return matcher{}, invalid("mode", string(mode), "search mode must be name or number")
	}
}

func searchTable(t *Table, m matcher, column string) *Table {
	if m.all {
		return t.Where(func(Row) bool { return true })
	}
	if column != AllColumns {
		return t.Where(func(r Row) bool { return m.match(r[column]) })
	}
	return t.Where(func(r Row) bool {
		for _, c := range t.Columns {
			if m.match(r[c]) {
				return true
			}
		}
		return false
	})
}
