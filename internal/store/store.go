// Package store persists workbook files and audit entries.
//
// Two backends implement core.Store and core.AuditSink: a directory of
// .xlsx files and a Postgres database. Both replace a stored workbook
// atomically, so a failed save leaves the previous version readable.
package store

import (
	"fmt"
	"regexp"
)

// Backend names accepted by configuration.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// validateKey rejects keys that are unsafe as file names.
func validateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("invalid store key %q", key)
	}
	return nil
}
