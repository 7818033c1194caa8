package web

// handlers_common.go contains shared request parsing and response helpers
// used across handlers.

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/go-chi/chi/v5"
)

// xlsxContentType is the media type of workbook downloads.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxJSONBody caps small JSON request bodies.
const maxJSONBody = 64 * 1024

// sheetParam returns the unescaped {sheet} path parameter. chi routes on
// RawPath when the request has one, and the parameter is still escaped then.
func sheetParam(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "sheet")
	if r.URL.RawPath == "" {
		return raw, nil
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", core.ValidationError{Field: "sheet", Value: raw, Message: "sheet name is not valid URL encoding"}
	}
	return name, nil
}

// decodeJSON reads a small JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.ValidationError{Field: "body", Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

// dateLayouts are accepted for date query parameters, most specific first.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseDateParam parses a date query parameter. A date-only end bound is
// moved to the last instant of that day so the range stays inclusive.
func parseDateParam(name, value string, end bool) (time.Time, error) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if end && layout == "2006-01-02" {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	return time.Time{}, core.ValidationError{
		Field:   "date",
		Value:   value,
		Message: fmt.Sprintf("%s must be a date like 2024-01-31", name),
	}
}

// parseViewFilter reads date_column/start/end and filter[col]=value.
func parseViewFilter(r *http.Request) (core.ViewFilter, error) {
	q := r.URL.Query()
	var f core.ViewFilter

	if col := q.Get("date_column"); col != "" {
		start, end := q.Get("start"), q.Get("end")
		if start == "" || end == "" {
			return f, core.ValidationError{Field: "date", Message: "date_column requires both start and end"}
		}
		var err error
		if f.Start, err = parseDateParam("start", start, false); err != nil {
			return f, err
		}
		if f.End, err = parseDateParam("end", end, true); err != nil {
			return f, err
		}
		f.DateColumn = col
	}

	for key, values := range q {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		col := key[len("filter[") : len(key)-1]
		if col == "" || len(values) == 0 || values[0] == "" {
			continue
		}
		if f.Substrings == nil {
			f.Substrings = make(map[string]string)
		}
		f.Substrings[col] = values[0]
	}
	return f, nil
}

// searchParams reads q, column and mode.
func searchParams(r *http.Request) (query, column string, mode core.SearchMode, err error) {
	q := r.URL.Query()
	mode, err = core.ParseSearchMode(q.Get("mode"))
	return q.Get("q"), q.Get("column"), mode, err
}

// chartFormat reads format=json|xlsx, defaulting to json.
func chartFormat(r *http.Request) (string, error) {
	switch f := strings.ToLower(r.URL.Query().Get("format")); f {
	case "", "json":
		return "json", nil
	case "xlsx":
		return "xlsx", nil
	default:
		return "", core.ValidationError{Field: "format", Value: f, Message: "format must be json or xlsx"}
	}
}

// writeXLSX sends data as a workbook attachment.
func writeXLSX(w http.ResponseWriter, fileName string, data []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// derivedFileName names a file produced from an uploaded workbook, e.g.
// "report.xlsx" with suffix "edited" becomes "report_edited.xlsx".
func derivedFileName(original, suffix string) string {
	base := strings.TrimSuffix(path.Base(original), path.Ext(original))
	if base == "" || base == "." || base == "/" {
		base = "workbook"
	}
	return base + "_" + suffix + ".xlsx"
}

// SearchResponse is the body of both search endpoints.
type SearchResponse struct {
	Found bool        `json:"found"`
	Count int         `json:"count"`
	Table *core.Table `json:"table"`
}

func newSearchResponse(t *core.Table) SearchResponse {
	return SearchResponse{Found: t.Len() > 0, Count: t.Len(), Table: t}
}

// SheetResponse is the body of a sheet view.
type SheetResponse struct {
	Sheet string      `json:"sheet"`
	Count int         `json:"count"`
	Table *core.Table `json:"table"`
}
