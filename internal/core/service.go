package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PersistTimeout is the maximum duration for writing a workbook to the store.
var PersistTimeout = 30 * time.Second

// Codec converts between workbook files and sheets.
type Codec interface {
	Decode(data []byte) (SheetSource, error)
	Encode(sheets []Sheet) ([]byte, error)
}

// Store keeps one workbook file per session key. Save must replace the
// previous version atomically.
type Store interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Options tunes Service behavior.
type Options struct {
	// LegacyEditExport limits edit export to the sheets the edit touched.
	LegacyEditExport bool

	// MaxConcurrentDecodes and DecodeWait bound parallel uploads. Zero
	// values use DefaultMaxConcurrentDecodes and DefaultDecodeWait.
	MaxConcurrentDecodes int
	DecodeWait           time.Duration
}

// Service provides the workbook operations behind every session action.
//
// Mutating methods are reducers run through Session.Update: they compute a
// new State, write it through to the store when the workbook structure
// changed, and return it. The session commits the result only when no error
// is returned.
type Service struct {
	codec Codec
	store Store
	audit AuditSink
	opts  Options

	decodes *DecodeLimiter
}

// NewService creates a new Service instance. audit may be nil.
func NewService(codec Codec, store Store, audit AuditSink, opts Options) (*Service, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Service{
		codec: codec,
		store: store,
		audit: audit,
		opts:  opts,

		decodes: NewDecodeLimiter(opts.MaxConcurrentDecodes, opts.DecodeWait),
	}, nil
}

// LoadWorkbook decodes an uploaded file and makes it the session's workbook.
// The first sheet becomes active and any pending edit is dropped. A file that
// cannot be decoded leaves the session unchanged.
func (s *Service) LoadWorkbook(ctx context.Context, sess *Session, fileName string, data []byte) error {
	wb, err := s.decode(ctx, data)
	if err != nil {
		slog.Warn("upload rejected", "session_id", sess.ID, "error", err)
		return err
	}

	var prev *Workbook
	err = sess.Update(func(st State) (State, error) {
		if err := s.save(ctx, sess.ID, data); err != nil {
			return st, err
		}
		prev = st.Workbook
		return State{
			Workbook: wb,
			FileName: fileName,
			Active:   wb.SheetNames()[0],
		}, nil
	})
	if err != nil {
		_ = wb.Close()
		return err
	}
	retire(prev, wb)

	slog.Info("workbook loaded",
		"session_id", sess.ID,
		"file", fileName,
		"sheets", wb.Len(),
	)
	s.logAudit(ctx, AuditEntry{
		Action:    ActionUpload,
		SessionID: sess.ID,
		FileName:  fileName,
		NewValue:  fmt.Sprintf("%d sheets", wb.Len()),
	})
	return nil
}

// decode opens data under a decode slot. Sheets of the returned workbook
// take a slot again each time one is decoded.
func (s *Service) decode(ctx context.Context, data []byte) (*Workbook, error) {
	if err := s.decodes.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.decodes.Release()

	src, err := s.codec.Decode(data)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, &DecodeError{Err: err}
	}
	wb, err := NewWorkbook(src)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	wb.gate = s.decodeGate
	return wb, nil
}

// decodeGate holds a decode slot for one lazy sheet decode.
func (s *Service) decodeGate() (func(), error) {
	if err := s.decodes.Acquire(context.Background()); err != nil {
		return nil, err
	}
	return s.decodes.Release, nil
}

// UploadStatus reports decode slot usage.
func (s *Service) UploadStatus() DecodeLimiterStatus {
	return s.decodes.Status()
}

// WaitForUploads blocks until in-flight uploads finish or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.decodes.WaitForDrain(ctx)
}

// SheetList is the sheet names of a session's workbook and the active one.
type SheetList struct {
	FileName string   `json:"fileName"`
	Sheets   []string `json:"sheets"`
	Active   string   `json:"active"`
}

// ListSheets returns the session's sheet names in workbook order.
func (s *Service) ListSheets(sess *Session) (SheetList, error) {
	var out SheetList
	err := sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		out = SheetList{FileName: st.FileName, Sheets: st.Workbook.SheetNames(), Active: st.Active}
		return nil
	})
	return out, err
}

// SelectSheet makes name the active sheet.
func (s *Service) SelectSheet(sess *Session, name string) error {
	return sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		if err := requireSheet(st.Workbook, name); err != nil {
			return st, err
		}
		st.Active = name
		return st, nil
	})
}

// ViewFilter narrows a sheet view. Zero fields are ignored.
type ViewFilter struct {
	DateColumn string
	Start, End time.Time
	Substrings map[string]string
}

// ViewSheet selects name and returns its rows after applying f.
func (s *Service) ViewSheet(sess *Session, name string, f ViewFilter) (*Table, error) {
	var out *Table
	err := sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		if err := requireSheet(st.Workbook, name); err != nil {
			return st, err
		}
		t, err := st.Workbook.Table(name)
		if err != nil {
			return st, err
		}
		if f.DateColumn != "" {
			if t, err = FilterByDateRange(t, f.DateColumn, f.Start, f.End); err != nil {
				return st, err
			}
		}
		if len(f.Substrings) > 0 {
			if t, err = FilterByColumnSubstring(t, f.Substrings); err != nil {
				return st, err
			}
		}
		out = t
		st.Active = name
		return st, nil
	})
	return out, err
}

// SearchSheet runs Search on one sheet of the session's workbook.
func (s *Service) SearchSheet(sess *Session, name, query, column string, mode SearchMode) (*Table, error) {
	var out *Table
	err := sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		if err := requireSheet(st.Workbook, name); err != nil {
			return err
		}
		t, err := st.Workbook.Table(name)
		if err != nil {
			return err
		}
		out, err = Search(t, query, column, mode)
		return err
	})
	return out, err
}

// SearchAll runs SearchAcrossWorkbook on the session's workbook.
func (s *Service) SearchAll(sess *Session, query, column string, mode SearchMode) (*Table, error) {
	var out *Table
	err := sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		var err error
		out, err = SearchAcrossWorkbook(st.Workbook, query, column, mode)
		return err
	})
	return out, err
}

// EditCell replaces the session's pending edit with a single-cell change to
// sheet. The edit is held in memory until exported.
func (s *Service) EditCell(ctx context.Context, sess *Session, sheet string, row int, column, value string) (*PendingEdit, error) {
	var edit *PendingEdit
	err := sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		if err := requireSheet(st.Workbook, sheet); err != nil {
			return st, err
		}
		t, err := st.Workbook.Table(sheet)
		if err != nil {
			return st, err
		}
		edited, err := RecordEdit(t, row, column, value)
		if err != nil {
			return st, err
		}
		edit = &PendingEdit{
			Sheet:    sheet,
			Row:      row,
			Column:   column,
			OldValue: t.Cell(row, column),
			Value:    value,
			Table:    edited,
			EditedAt: time.Now().UTC(),
		}
		st.Pending = edit
		return st, nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, AuditEntry{
		Action:    ActionCellEdit,
		SessionID: sess.ID,
		Sheet:     sheet,
		Row:       &row,
		Column:    column,
		OldValue:  edit.OldValue.String(),
		NewValue:  value,
	})
	return edit, nil
}

// Pending returns the session's pending edit, or nil.
func (s *Service) Pending(sess *Session) (*PendingEdit, error) {
	var out *PendingEdit
	err := sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		out = st.Pending
		return nil
	})
	return out, err
}

// ExportEdits encodes the pending edit as a workbook file.
func (s *Service) ExportEdits(ctx context.Context, sess *Session) ([]byte, error) {
	var sheets []Sheet
	err := sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		var err error
		sheets, err = ExportEdits(st.Workbook, st.Pending, s.opts.LegacyEditExport)
		return err
	})
	if err != nil {
		return nil, err
	}

	data, err := s.codec.Encode(sheets)
	if err != nil {
		return nil, &IOError{Op: "encode", Key: sess.ID, Err: err}
	}
	s.logAudit(ctx, AuditEntry{
		Action:    ActionEditsExport,
		SessionID: sess.ID,
		NewValue:  fmt.Sprintf("%d sheets", len(sheets)),
	})
	return data, nil
}

// Download returns the session's workbook file as last persisted. When the
// store has no copy the current workbook is encoded instead.
func (s *Service) Download(ctx context.Context, sess *Session) (string, []byte, error) {
	var (
		name string
		wb   *Workbook
	)
	if err := sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		name, wb = st.FileName, st.Workbook
		return nil
	}); err != nil {
		return "", nil, err
	}

	data, err := s.store.Load(ctx, sess.ID)
	if err == nil {
		return name, data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", nil, &IOError{Op: "load", Key: sess.ID, Err: err}
	}

	var sheets []Sheet
	if err := sess.View(func(State) error {
		var err error
		sheets, err = wb.Sheets()
		return err
	}); err != nil {
		return "", nil, err
	}
	data, err = s.codec.Encode(sheets)
	if err != nil {
		return "", nil, &IOError{Op: "encode", Key: sess.ID, Err: err}
	}
	return name, data, nil
}

// PieChart computes pie chart data for column of sheet.
func (s *Service) PieChart(sess *Session, sheet, column string) (*PieChartData, error) {
	var out *PieChartData
	err := s.viewSheet(sess, sheet, func(t *Table) error {
		var err error
		out, err = PieChart(t, column)
		return err
	})
	return out, err
}

// LineChart computes line chart data for x and y of sheet.
func (s *Service) LineChart(sess *Session, sheet, x, y string) (*LineChartData, error) {
	var out *LineChartData
	err := s.viewSheet(sess, sheet, func(t *Table) error {
		var err error
		out, err = LineChart(t, x, y)
		return err
	})
	return out, err
}

// Close removes a session's persisted workbook.
func (s *Service) Close(ctx context.Context, sess *Session) error {
	if err := s.store.Delete(ctx, sess.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return &IOError{Op: "delete", Key: sess.ID, Err: err}
	}
	return nil
}

// Discard drops the session's workbook and pending edit and deletes the
// stored copy.
func (s *Service) Discard(ctx context.Context, sess *Session) error {
	var (
		name string
		prev *Workbook
	)
	err := sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		if err := s.Close(ctx, sess); err != nil {
			return st, err
		}
		name, prev = st.FileName, st.Workbook
		return State{}, nil
	})
	if err != nil {
		return err
	}
	retire(prev, nil)

	slog.Info("workbook discarded", "session_id", sess.ID, "file", name)
	s.logAudit(ctx, AuditEntry{
		Action:    ActionDiscard,
		SessionID: sess.ID,
		FileName:  name,
	})
	return nil
}

func (s *Service) viewSheet(sess *Session, sheet string, fn func(*Table) error) error {
	return sess.View(func(st State) error {
		if !st.Loaded() {
			return ErrNoWorkbook
		}
		if err := requireSheet(st.Workbook, sheet); err != nil {
			return err
		}
		t, err := st.Workbook.Table(sheet)
		if err != nil {
			return err
		}
		return fn(t)
	})
}

// persist encodes wb in full and replaces the stored copy under key.
func (s *Service) persist(ctx context.Context, key string, wb *Workbook) error {
	sheets, err := wb.Sheets()
	if err != nil {
		return err
	}
	data, err := s.codec.Encode(sheets)
	if err != nil {
		return &IOError{Op: "encode", Key: key, Err: err}
	}
	return s.save(ctx, key, data)
}

func (s *Service) save(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, PersistTimeout)
	defer cancel()

	start := time.Now()
	if err := s.store.Save(ctx, key, data); err != nil {
		return &IOError{Op: "save", Key: key, Err: err}
	}
	slog.Debug("workbook persisted",
		"key", key,
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return nil
}
