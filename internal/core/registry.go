package core

import (
	"context"
	"log/slog"
	"slices"
)

// AddSheet returns a copy of wb with an empty sheet called name appended.
func AddSheet(wb *Workbook, name string) (*Workbook, error) {
	if err := validateNewSheetName(wb, name, ""); err != nil {
		return nil, err
	}
	sheets, err := wb.Sheets()
	if err != nil {
		return nil, err
	}
	return NewWorkbookFromSheets(append(sheets, Sheet{Name: name})...)
}

// RemoveSheet returns a copy of wb without the sheet called name.
// A workbook always keeps at least one sheet.
func RemoveSheet(wb *Workbook, name string) (*Workbook, error) {
	if err := requireSheet(wb, name); err != nil {
		return nil, err
	}
	if wb.Len() == 1 {
		return nil, invalid("sheet", name, "cannot remove %q, the workbook's only sheet", name)
	}
	sheets, err := wb.Sheets()
	if err != nil {
		return nil, err
	}
	sheets = slices.DeleteFunc(sheets, func(sh Sheet) bool { return sh.Name == name })
	return NewWorkbookFromSheets(sheets...)
}

// RenameSheet returns a copy of wb with sheet oldName called newName, in the
// same position and with its Origin values rewritten.
func RenameSheet(wb *Workbook, oldName, newName string) (*Workbook, error) {
	if err := requireSheet(wb, oldName); err != nil {
		return nil, err
	}
	if err := validateNewSheetName(wb, newName, oldName); err != nil {
		return nil, err
	}
	sheets, err := wb.Sheets()
	if err != nil {
		return nil, err
	}
	for i := range sheets {
		if sheets[i].Name == oldName {
			sheets[i].Name = newName
		}
	}
	return NewWorkbookFromSheets(sheets...)
}

// renameOrigin rewrites the Origin values of a pending edit after a rename.
func renameOrigin(p *PendingEdit, oldName, newName string) *PendingEdit {
	if p == nil {
		return nil
	}
	out := *p
	if out.Sheet == oldName {
		out.Sheet = newName
	}
	if p.Table == nil {
		return &out
	}
	t := NewTable(p.Table.Columns)
	t.Rows = make([]Row, len(p.Table.Rows))
	for i, r := range p.Table.Rows {
		if r[OriginColumn].String() == oldName {
			r = cloneRow(r)
			r[OriginColumn] = Text(newName)
		}
		t.Rows[i] = r
	}
	out.Table = t
	return &out
}

// dropOrigin removes a pending edit that only touched a removed sheet.
func dropOrigin(p *PendingEdit, name string) *PendingEdit {
	if p == nil || p.Sheet != name {
		return p
	}
	return nil
}

// AddSheet appends an empty sheet to the session's workbook and writes the
// result through to the store.
func (s *Service) AddSheet(ctx context.Context, sess *Session, name string) error {
	var prev, next *Workbook
	err := sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		wb, err := AddSheet(st.Workbook, name)
		if err != nil {
			return st, err
		}
		if err := s.persist(ctx, sess.ID, wb); err != nil {
			return st, err
		}
		prev, next = st.Workbook, wb
		st.Workbook = wb
		return st, nil
	})
	if err != nil {
		return err
	}
	retire(prev, next)

	slog.Info("sheet added", "session_id", sess.ID, "sheet", name)
	s.logAudit(ctx, AuditEntry{Action: ActionSheetAdd, SessionID: sess.ID, Sheet: name})
	return nil
}

// RemoveSheet drops a sheet from the session's workbook and writes the
// result through to the store. When the active sheet is removed the first
// remaining sheet becomes active.
func (s *Service) RemoveSheet(ctx context.Context, sess *Session, name string) error {
	var prev, next *Workbook
	err := sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		wb, err := RemoveSheet(st.Workbook, name)
		if err != nil {
			return st, err
		}
		if err := s.persist(ctx, sess.ID, wb); err != nil {
			return st, err
		}
		prev, next = st.Workbook, wb
		st.Workbook = wb
		if st.Active == name {
			st.Active = wb.SheetNames()[0]
		}
		st.Pending = dropOrigin(st.Pending, name)
		return st, nil
	})
	if err != nil {
		return err
	}
	retire(prev, next)

	slog.Info("sheet removed", "session_id", sess.ID, "sheet", name)
	s.logAudit(ctx, AuditEntry{Action: ActionSheetRemove, SessionID: sess.ID, Sheet: name})
	return nil
}

// RenameSheet renames a sheet of the session's workbook and writes the
// result through to the store.
func (s *Service) RenameSheet(ctx context.Context, sess *Session, oldName, newName string) error {
	var prev, next *Workbook
	err := sess.Update(func(st State) (State, error) {
		if !st.Loaded() {
			return st, ErrNoWorkbook
		}
		wb, err := RenameSheet(st.Workbook, oldName, newName)
		if err != nil {
			return st, err
		}
		if err := s.persist(ctx, sess.ID, wb); err != nil {
			return st, err
		}
		prev, next = st.Workbook, wb
		st.Workbook = wb
		if st.Active == oldName {
			st.Active = newName
		}
		st.Pending = renameOrigin(st.Pending, oldName, newName)
		return st, nil
	})
	if err != nil {
		return err
	}
	retire(prev, next)

	slog.Info("sheet renamed", "session_id", sess.ID, "from", oldName, "to", newName)
	s.logAudit(ctx, AuditEntry{
		Action:    ActionSheetRename,
		SessionID: sess.ID,
		Sheet:     oldName,
		NewSheet:  newName,
	})
	return nil
}
