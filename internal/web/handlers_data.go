package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetdesk/internal/core"
)

// handleViewSheet selects a sheet and returns its rows, optionally narrowed
// by a date range and per-column substrings.
func (s *Server) handleViewSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter, err := parseViewFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.service.ViewSheet(sessionFrom(r), name, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SheetResponse{Sheet: name, Count: t.Len(), Table: t})
}

// handleSearchSheet searches one sheet.
func (s *Server) handleSearchSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query, column, mode, err := searchParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.service.SearchSheet(sessionFrom(r), name, query, column, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(t))
}

// handleSearchAll searches every sheet; matches carry their Origin sheet.
func (s *Server) handleSearchAll(w http.ResponseWriter, r *http.Request) {
	query, column, mode, err := searchParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.service.SearchAll(sessionFrom(r), query, column, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSearchResponse(t))
}

// handlePieChart returns the value distribution of one column.
func (s *Server) handlePieChart(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format, err := chartFormat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	column := r.URL.Query().Get("column")
	data, err := s.service.PieChart(sessionFrom(r), name, column)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, data)
		return
	}
	file, err := s.codec.EncodePieChart(data)
	if err != nil {
		s.fail(w, r, &core.IOError{Op: "encode", Key: sessionFrom(r).ID, Err: err})
		return
	}
	writeXLSX(w, derivedFileName(column, "pie"), file)
}

// handleLineChart returns y plotted against x.
func (s *Server) handleLineChart(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	format, err := chartFormat(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	x, y := q.Get("x"), q.Get("y")
	data, err := s.service.LineChart(sessionFrom(r), name, x, y)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, data)
		return
	}
	file, err := s.codec.EncodeLineChart(data)
	if err != nil {
		s.fail(w, r, &core.IOError{Op: "encode", Key: sessionFrom(r).ID, Err: err})
		return
	}
	writeXLSX(w, derivedFileName(y, "line"), file)
}
