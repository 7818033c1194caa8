// Package core provides the workbook model and the operations behind every
// session action.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors are matched first (see MapError); anything else falls back to
// case-insensitive pattern matching on the error text.
//
// # Validation Errors (VAL001-VAL099)
//
// Bad user input, reported as a ValidationError. The message is the
// validation message itself; the code depends on the field:
//
//	VAL001 - sheet    Action: Choose an existing sheet or a valid new name
//	VAL002 - column   Action: Pick one of the sheet's columns
//	VAL003 - row      Action: Pick a row shown in the current view
//	VAL004 - query    Action: Enter a whole number for number search
//	VAL005 - date     Action: Make the start date earlier than the end date
//	VAL006 - mode     Action: Use name or number search
//	VAL007 - edit     Action: Edit a cell before saving
//	VAL000 - other    Action: Check the value and try again
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	          Patterns: "file too large", "request body too large"
//	FILE002 - Not a workbook: The file could not be read as a workbook (DecodeError)
//	FILE004 - No file: No file was selected
//	          Patterns: "no file provided"
//	FILE005 - Empty file: The uploaded file is empty
//	          Patterns: "empty file"
//	UPL001  - Upload busy: Every decode slot stayed busy (ErrTooManyUploads)
//
// # Workbook Errors (WB001-WB099)
//
//	WB001 - No workbook: Nothing has been uploaded yet (ErrNoWorkbook)
//	WB002 - Not stored: No saved copy of the workbook exists (ErrNotFound)
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session expired (ErrSessionNotFound)
//	SES002 - Too many sessions (ErrTooManySessions)
//
// # Storage Errors (IO001-IO099, DB004-DB007)
//
//	IO001 - Save failed: The workbook could not be written (IOError, op save)
//	IO002 - Encode failed: The workbook could not be built (IOError, op encode)
//	IO003 - Load failed: The saved workbook could not be read (IOError, other ops)
//	DB004 - Connection refused          Patterns: "connection refused"
//	DB005 - Connection reset            Patterns: "connection reset"
//	DB006 - Timeout                     Patterns: "timeout"
//	DB007 - Deadlock                    Patterns: "deadlock"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled          Patterns: "context canceled"
//	REQ002 - Request timeout            Patterns: "context deadline exceeded"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches:
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Review the suggested action to guide the user
//  3. If ERR000 or IO*, check application logs for the original technical error
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// validationActions maps a ValidationError field to its code and action.
var validationActions = map[string]UserMessage{
	"sheet":  {Code: "VAL001", Action: "Choose an existing sheet or a valid new name"},
	"column": {Code: "VAL002", Action: "Pick one of the sheet's columns"},
	"row":    {Code: "VAL003", Action: "Pick a row shown in the current view"},
	"query":  {Code: "VAL004", Action: "Enter a whole number for number search"},
	"date":   {Code: "VAL005", Action: "Make the start date earlier than the end date"},
	"mode":   {Code: "VAL006", Action: "Use name or number search"},
	"edit":   {Code: "VAL007", Action: "Edit a cell before saving"},
}

var (
	msgDecode = UserMessage{
		Message: "The file could not be read as a workbook",
		Action:  "Upload an .xlsx file saved by a spreadsheet application",
		Code:    "FILE002",
	}
	msgNoWorkbook = UserMessage{
		Message: "No workbook has been uploaded",
		Action:  "Upload a workbook first",
		Code:    "WB001",
	}
	msgNotStored = UserMessage{
		Message: "No saved copy of this workbook exists",
		Action:  "Upload the workbook again",
		Code:    "WB002",
	}
	msgSessionNotFound = UserMessage{
		Message: "Your session has expired",
		Action:  "Reload the page and upload the workbook again",
		Code:    "SES001",
	}
	msgTooManySessions = UserMessage{
		Message: "Too many people are using the service",
		Action:  "Please wait a moment and try again",
		Code:    "SES002",
	}
	msgTooManyUploads = UserMessage{
		Message: "The server is busy processing other uploads",
		Action:  "Please wait a moment and upload again",
		Code:    "UPL001",
	}
	msgSaveFailed = UserMessage{
		Message: "The workbook could not be saved",
		Action:  "Your previous version is unchanged. Please try again",
		Code:    "IO001",
	}
	msgEncodeFailed = UserMessage{
		Message: "The workbook could not be built",
		Action:  "Please try again or contact support",
		Code:    "IO002",
	}
	msgLoadFailed = UserMessage{
		Message: "The saved workbook could not be read",
		Action:  "Please try again or contact support",
		Code:    "IO003",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Patterns are matched using strings.Contains, so partial matches work.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Remove unused sheets or split the workbook",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Remove unused sheets or split the workbook",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select an .xlsx file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a workbook with at least one sheet",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Request Errors (REQ001-REQ002)
	// Checked before the generic "timeout" pattern.
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller workbook or check your connection",
			Code:    "REQ002",
		},
	},

	// =========================================================================
	// Database Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Support staff should check application logs for the original technical
// error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors from this package are recognized first; otherwise the known
// error patterns are searched (case-insensitive) and the first match is
// returned. If nothing matches, a generic fallback message with code ERR000
// is returned.
//
// Example:
//
//	err := fmt.Errorf("rename: %w", ErrNoWorkbook)
//	msg := MapError(err)
//	// msg.Code == "WB001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var ve ValidationError
	if errors.As(err, &ve) {
		msg, ok := validationActions[ve.Field]
		if !ok {
			msg = UserMessage{Code: "VAL000", Action: "Check the value and try again"}
		}
		msg.Message = ve.Message
		return msg, true
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return msgDecode, true
	}

	var ioe *IOError
	if errors.As(err, &ioe) {
		switch ioe.Op {
		case "save":
			return msgSaveFailed, true
		case "encode":
			return msgEncodeFailed, true
		default:
			return msgLoadFailed, true
		}
	}

	switch {
	case errors.Is(err, ErrNoWorkbook):
		return msgNoWorkbook, true
	case errors.Is(err, ErrNotFound):
		return msgNotStored, true
	case errors.Is(err, ErrSessionNotFound):
		return msgSessionNotFound, true
	case errors.Is(err, ErrTooManySessions):
		return msgTooManySessions, true
	case errors.Is(err, ErrTooManyUploads):
		return msgTooManyUploads, true
	}
	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error is recognized and should be shown to users.
// Returns true for anything other than the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
//
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
