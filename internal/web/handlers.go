package web

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/sheetdesk/internal/core"
	"github.com/JonMunkholm/sheetdesk/internal/web/templates"
)

// pageRowLimit caps the rows rendered into the HTML page. The JSON API is
// not limited.
const pageRowLimit = 500

// handlePage renders the main page: the upload form, the sheet list and the
// active sheet. ?sheet= selects a different sheet first.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	data := templates.PageData{RowLimit: pageRowLimit}

	list, err := s.service.ListSheets(sess)
	switch {
	case errors.Is(err, core.ErrNoWorkbook):
		// Nothing uploaded yet; render the upload form only.
	case err != nil:
		s.fail(w, r, err)
		return
	default:
		active := list.Active
		if want := r.URL.Query().Get("sheet"); want != "" {
			active = want
		}
		t, err := s.service.ViewSheet(sess, active, core.ViewFilter{})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		pending, err := s.service.Pending(sess)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		data.FileName = list.FileName
		data.Sheets = list.Sheets
		data.Active = active
		data.Table = t
		data.Pending = pending
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Page(data).Render(r.Context(), w); err != nil {
		s.fail(w, r, err)
	}
}

// handleHealth reports liveness, live sessions and decode slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
		"uploads":  s.service.UploadStatus(),
	})
}
