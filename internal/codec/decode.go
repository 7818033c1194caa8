package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/xuri/excelize/v2"
)

// source is an open workbook whose sheets are decoded one at a time.
// It is not safe for concurrent use.
type source struct {
	f        *excelize.File
	names    []string
	date1904 bool
	dateFmt  map[int]bool // style id -> applies a date number format
}

func newSource(f *excelize.File) (*source, error) {
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, fmt.Errorf("read workbook properties: %w", err)
	}
	s := &source{
		f:       f,
		names:   f.GetSheetList(),
		dateFmt: make(map[int]bool),
	}
	if props.Date1904 != nil {
		s.date1904 = *props.Date1904
	}
	return s, nil
}

// Close removes the temp files excelize spilled large worksheets to.
func (s *source) Close() error {
	return s.f.Close()
}

func (s *source) SheetNames() []string {
	return s.names
}

// DecodeSheet reads a sheet into a table. The first row names the columns;
// fully empty rows are skipped.
func (s *source) DecodeSheet(name string) (*core.Table, error) {
	rows, err := s.f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return core.NewTable(nil), nil
	}

	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	t := core.NewTable(headerNames(rows[0], width))

	for i, raw := range rows[1:] {
		if isBlank(raw) {
			continue
		}
		rowNum := i + 2
		values := make([]core.Value, width)
		for col, cell := range raw {
			v, err := s.cellValue(name, col+1, rowNum, cell)
			if err != nil {
				return nil, err
			}
			values[col] = v
		}
		t.Append(values...)
	}
	return t, nil
}

// cellValue types one raw cell.
func (s *source) cellValue(sheet string, col, row int, raw string) (core.Value, error) {
	if raw == "" {
		return core.Value{}, nil
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return core.Value{}, err
	}
	typ, err := s.f.GetCellType(sheet, ref)
	if err != nil {
		return core.Value{}, err
	}

	switch typ {
	case excelize.CellTypeBool:
		if raw == "1" || strings.EqualFold(raw, "true") {
			return core.Text("TRUE"), nil
		}
		return core.Text("FALSE"), nil
	case excelize.CellTypeDate:
		if t, ok := parseISODate(raw); ok {
			return core.Date(t), nil
		}
		return core.Text(raw), nil
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.Text(raw), nil
		}
		isDate, err := s.isDateCell(sheet, ref)
		if err != nil {
			return core.Value{}, err
		}
		if isDate {
			if t, err := excelize.ExcelDateToTime(n, s.date1904); err == nil {
				return core.Date(t), nil
			}
		}
		return core.Number(n), nil
	default:
		return core.Text(raw), nil
	}
}

// isDateCell reports whether the cell's style applies a date or time format.
func (s *source) isDateCell(sheet, ref string) (bool, error) {
	styleID, err := s.f.GetCellStyle(sheet, ref)
	if err != nil {
		return false, err
	}
	if styleID == 0 {
		return false, nil
	}
	if v, ok := s.dateFmt[styleID]; ok {
		return v, nil
	}
	style, err := s.f.GetStyle(styleID)
	if err != nil {
		return false, err
	}
	v := isDateNumFmt(style.NumFmt)
	if style.CustomNumFmt != nil {
		v = isDateFormatCode(*style.CustomNumFmt)
	}
	s.dateFmt[styleID] = v
	return v, nil
}

// isDateNumFmt reports whether a built-in number format id shows a date.
func isDateNumFmt(id int) bool {
	return (id >= 14 && id <= 22) || (id >= 45 && id <= 47)
}

// isDateFormatCode reports whether a custom format code shows a date or a
// time of day. Quoted literals, escaped characters and bracketed sections
// such as colors are ignored.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case inQuote:
			inQuote = c != '"'
		case inBracket:
			inBracket = c != ']'
		case c == '"':
			inQuote = true
		case c == '[':
			inBracket = true
		case c == '\\' || c == '_' || c == '*':
			i++
		default:
			b.WriteByte(c)
		}
	}
	f := strings.ToLower(b.String())
	if section, _, ok := strings.Cut(f, ";"); ok {
		f = section
	}
	return strings.ContainsAny(f, "ydhs")
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

func parseISODate(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// headerNames names width columns from the header row. Blank names become
// "Unnamed: N" (N is the zero-based column index) and repeated names get
// ".1", ".2", ... suffixes.
func headerNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]bool, width)
	counts := make(map[string]int, width)
	for i := range width {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		base := name
		for seen[name] {
			counts[base]++
			name = fmt.Sprintf("%s.%d", base, counts[base])
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
