package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the scalar type of a cell.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	default:
		return "null"
	}
}

// Value is a single typed cell.
// The zero Value is null.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Time time.Time
}

// Text returns a string Value.
func Text(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number returns a numeric Value.
func Number(f float64) Value {
	return Value{Kind: KindNumber, Num: f}
}

// Date returns a date Value.
func Date(t time.Time) Value {
	return Value{Kind: KindDate, Time: t}
}

// IsNull reports whether the cell is empty.
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// String returns the display form used for searching and filtering.
// Integral numbers print without a fraction, dates without a time of day
// when they fall on midnight, and null prints as the empty string.
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return formatNumber(v.Num)
	case KindDate:
		if v.Time.Hour() == 0 && v.Time.Minute() == 0 && v.Time.Second() == 0 && v.Time.Nanosecond() == 0 {
			return v.Time.Format("2006-01-02")
		}
		return v.Time.Format("2006-01-02 15:04:05")
	default:
		return ""
	}
}

// Float returns the cell as a number when it is numeric or a string that
// parses as one.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes numbers as JSON numbers, null as null and everything
// else as its display string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return json.Marshal(formatNumber(v.Num))
		}
		return []byte(formatNumber(v.Num)), nil
	default:
		return json.Marshal(v.String())
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
