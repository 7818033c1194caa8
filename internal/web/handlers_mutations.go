package web

import (
	"net/http"

	"github.com/JonMunkholm/sheetdesk/internal/core"
)

type sheetNameRequest struct {
	Name string `json:"name"`
}

type editRequest struct {
	Row    *int    `json:"row"`
	Column string  `json:"column"`
	Value  *string `json:"value"`
}

// handleListSheets returns the sheet names and the active sheet.
func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListSheets(sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAddSheet appends an empty sheet.
func (s *Server) handleAddSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	sess := sessionFrom(r)
	if err := s.service.AddSheet(r.Context(), sess, req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSheets(w, r, sess, http.StatusCreated)
}

// handleRemoveSheet deletes a sheet.
func (s *Server) handleRemoveSheet(w http.ResponseWriter, r *http.Request) {
	name, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	sess := sessionFrom(r)
	if err := s.service.RemoveSheet(r.Context(), sess, name); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSheets(w, r, sess, http.StatusOK)
}

// handleRenameSheet renames a sheet in place.
func (s *Server) handleRenameSheet(w http.ResponseWriter, r *http.Request) {
	oldName, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req sheetNameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	sess := sessionFrom(r)
	if err := s.service.RenameSheet(r.Context(), sess, oldName, req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondSheets(w, r, sess, http.StatusOK)
}

// handleEditCell replaces the pending edit with a change to one cell.
func (s *Server) handleEditCell(w http.ResponseWriter, r *http.Request) {
	sheet, err := sheetParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Row == nil {
		s.fail(w, r, core.ValidationError{Field: "row", Message: "row is required"})
		return
	}
	if req.Value == nil {
		s.fail(w, r, core.ValidationError{Field: "edit", Message: "value is required"})
		return
	}

	edit, err := s.service.EditCell(r.Context(), sessionFrom(r), sheet, *req.Row, req.Column, *req.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edit)
}

// handlePendingEdit returns the pending edit, or null when there is none.
func (s *Server) handlePendingEdit(w http.ResponseWriter, r *http.Request) {
	edit, err := s.service.Pending(sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": edit})
}

// handleExportEdits downloads the pending edit as a workbook.
func (s *Server) handleExportEdits(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	list, err := s.service.ListSheets(sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := s.service.ExportEdits(r.Context(), sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeXLSX(w, derivedFileName(list.FileName, "edited"), data)
}

func (s *Server) respondSheets(w http.ResponseWriter, r *http.Request, sess *core.Session, status int) {
	list, err := s.service.ListSheets(sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, list)
}
