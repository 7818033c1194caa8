package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoWorkbook is returned by session operations before any file was uploaded.
	ErrNoWorkbook = errors.New("no workbook loaded")

	// ErrNotFound is returned by a Store when no workbook is persisted under a key.
	ErrNotFound = errors.New("workbook not found in store")

	// ErrSessionNotFound is returned when a session id is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned when the session store is at capacity.
	ErrTooManySessions = errors.New("too many sessions")
)

// DecodeError reports an upload that could not be parsed as a workbook.
type DecodeError struct {
	Sheet string // Empty when the file itself is unreadable
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("decode sheet %q: %v", e.Sheet, e.Err)
	}
	return fmt.Sprintf("decode workbook: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IOError reports a failure to materialize a workbook to the backing store.
// The previously stored version is left untouched.
type IOError struct {
	Op  string // "encode" or "save"
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("workbook %s failed for %q: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
