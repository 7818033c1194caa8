// Package core provides the workbook model and the operations behind every
// session action.
//
// This package holds all domain logic independent of any UI or transport
// layer. It is used by the web handlers, the sheetctl CLI and tests without
// modification. File formats and storage live behind the [Codec] and [Store]
// interfaces.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Tables: ordered columns and rows of typed [Value] cells. Every table
//     loaded from a workbook carries the synthetic [OriginColumn].
//   - Workbook: ordered, uniquely named sheets decoded lazily from a
//     [SheetSource] and memoized by name.
//   - Query engine: stateless filters and searches that return new tables.
//   - Sessions: one [State] per user, changed only through [Session.Update].
//   - Service: the reducers run against a session (load, add, remove,
//     rename, edit, export) plus read-only queries and charts.
//   - Audit: every upload, structural change, edit and export is recorded.
//
// # Sessions
//
// Handlers never mutate state in place. A reducer receives the current
// [State], returns the next one or an error, and the session commits the
// result only on success:
//
//	err := svc.RenameSheet(ctx, sess, "Q1", "Q1 Final")
//	// on error the workbook, active sheet and pending edit are unchanged
//
// # Write-through
//
// Add, remove and rename encode the whole new workbook and hand it to the
// [Store] before the session commits. A failed encode or save is returned as
// an [IOError] and the previous version stays both stored and in memory.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - VAL000-VAL007: Validation errors ([ValidationError], by field)
//   - FILE001-FILE005: File errors (size, not a workbook, empty)
//   - WB001-WB002: Workbook state errors
//   - SES001-SES002: Session errors
//   - IO001-IO003: Store errors ([IOError])
//
// # Audit Logging
//
// Audit entries carry a severity:
//
//   - Low: Edit exports
//   - Medium: Cell edits, sheet additions
//   - High: Uploads, renames
//   - Critical: Sheet removals
package core
