package core

// validation.go holds the user-input checks shared by the sheet registry,
// the query engine and the edit tracker.
//
// Every rejected input is reported as a ValidationError carrying the field
// that was wrong, the offending value and a human-readable message. The web
// layer maps these to VAL codes (see error_messages.go).

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLength is the longest sheet name a workbook file accepts.
const MaxSheetNameLength = 31

// invalidSheetNameChars are rejected anywhere in a sheet name.
const invalidSheetNameChars = `:\/?*[]`

// ValidationError represents bad user input for a single field.
type ValidationError struct {
	Field   string // Field being validated: "sheet", "row", "column", "query", ...
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

func invalid(field, value, format string, args ...any) ValidationError {
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

// validateNewSheetName checks a name for a sheet that is about to be created
// (by add or rename) against the workbook's existing names. A rename passes
// the sheet's current name as except so a case-only change is allowed.
func validateNewSheetName(wb *Workbook, name, except string) error {
	if strings.TrimSpace(name) == "" {
		return invalid("sheet", name, "sheet name is empty")
	}
	if utf8.RuneCountInString(name) > MaxSheetNameLength {
		return invalid("sheet", name, "sheet name %q is longer than %d characters", name, MaxSheetNameLength)
	}
	if strings.ContainsAny(name, invalidSheetNameChars) {
		return invalid("sheet", name, "sheet name %q contains one of %s", name, invalidSheetNameChars)
	}
	if strings.HasPrefix(name, "'") || strings.HasSuffix(name, "'") {
		return invalid("sheet", name, "sheet name %q cannot start or end with an apostrophe", name)
	}
	if name == except {
		return invalid("sheet", name, "sheet %q already exists", name)
	}
	if wb.hasFold(name) && !strings.EqualFold(name, except) {
		return invalid("sheet", name, "sheet %q already exists", name)
	}
	return nil
}

// requireSheet fails when name is not a sheet of wb.
func requireSheet(wb *Workbook, name string) error {
	if name == "" {
		return invalid("sheet", name, "no sheet selected")
	}
	if !wb.Has(name) {
		return invalid("sheet", name, "sheet %q does not exist", name)
	}
	return nil
}

// requireColumn fails when column is not part of t.
func requireColumn(t *Table, column string) error {
	if !t.HasColumn(column) {
		return invalid("column", column, "column %q not found", column)
	}
	return nil
}
