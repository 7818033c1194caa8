package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionUpload      AuditAction = "upload"
	ActionSheetAdd    AuditAction = "sheet_add"
	ActionSheetRemove AuditAction = "sheet_remove"
	ActionSheetRename AuditAction = "sheet_rename"
	ActionCellEdit    AuditAction = "cell_edit"
	ActionEditsExport AuditAction = "edits_export"
	ActionDiscard     AuditAction = "discard"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string        `json:"id"`
	Action    AuditAction   `json:"action"`
	Severity  AuditSeverity `json:"severity"`
	SessionID string        `json:"sessionId"`
	FileName  string        `json:"fileName,omitempty"`
	Sheet     string        `json:"sheet,omitempty"`
	NewSheet  string        `json:"newSheet,omitempty"`
	Row       *int          `json:"row,omitempty"`
	Column    string        `json:"column,omitempty"`
	OldValue  string        `json:"oldValue,omitempty"`
	NewValue  string        `json:"newValue,omitempty"`
	IPAddress string        `json:"ipAddress,omitempty"`
	UserAgent string        `json:"userAgent,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AuditSink persists audit entries.
type AuditSink interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionSheetRemove, ActionDiscard:
		return SeverityCritical
	case ActionUpload, ActionSheetRename:
		return SeverityHigh
	case ActionEditsExport:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// logAudit fills in id, severity, time and client details and hands the
// entry to the audit sink. Audit failures are logged, never returned: the
// action they describe has already been committed.
func (s *Service) logAudit(ctx context.Context, entry AuditEntry) {
	meta := RequestMetaFromContext(ctx)
	entry.ID = uuid.New().String()
	entry.Severity = determineSeverity(entry.Action)
	entry.IPAddress = meta.IPAddress
	entry.UserAgent = meta.UserAgent
	entry.CreatedAt = time.Now().UTC()

	slog.Debug("audit",
		"action", entry.Action,
		"severity", entry.Severity,
		"session_id", entry.SessionID,
		"sheet", entry.Sheet,
	)

	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		slog.Warn("audit append failed",
			"action", entry.Action,
			"session_id", entry.SessionID,
			"error", err,
		)
	}
}
