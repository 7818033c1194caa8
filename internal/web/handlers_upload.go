package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/JonMunkholm/sheetdesk/internal/logging"
)

// uploadMemory is how much of a multipart upload is held in memory before
// spilling to a temporary file.
const uploadMemory = 32 << 20

// handleUpload decodes an uploaded workbook and makes it the session's
// workbook. The previous workbook, if any, is replaced.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.respondError(w, r, fmt.Errorf("file too large: %w", err), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	fileName := filepath.Base(header.Filename)
	if err := s.service.LoadWorkbook(r.Context(), sess, fileName, data); err != nil {
		s.fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("workbook uploaded", "file", fileName, "bytes", len(data))

	list, err := s.service.ListSheets(sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// handleDownload returns the session's workbook as last persisted.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.service.Download(r.Context(), sessionFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if filepath.Ext(name) != ".xlsx" {
		name = derivedFileName(name, "export")
	}
	writeXLSX(w, name, data)
}

// handleDiscard drops the session's workbook and its stored copy.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(r.Context(), sessionFrom(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
