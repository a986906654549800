package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a record or history entry does not exist.
var ErrNotFound = errors.New("not found")

// ErrRollbackNotFound is returned when a key has no unconsumed
// sync_update_old entry to roll back to.
var ErrRollbackNotFound = errors.New("no rollback data found")

// MissingColumnsError rejects a batch before any mutation.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// SchemaMigrationError aborts a batch: later writes assume the new schema.
type SchemaMigrationError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaMigrationError) Error() string {
	return fmt.Sprintf("schema migration on %s (column %q): %v", e.Table, e.Column, e.Err)
}

func (e *SchemaMigrationError) Unwrap() error {
	return e.Err
}
