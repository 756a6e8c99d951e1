package store

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// constraintError signals a uniqueness violation (duplicate id).
type constraintError struct {
	table string
	id    string
}

func (e constraintError) Error() string { return "constraint violation: " + e.table + " " + e.id + " already exists" }

// foreignKeyError signals a message referencing an unknown session.
type foreignKeyError struct{ sessionID string }

func (e foreignKeyError) Error() string { return "foreign key violation: unknown session " + e.sessionID }

// notFoundError signals a missing row.
type notFoundError struct {
	what string
	id   string
}

func (e notFoundError) Error() string { return e.what + " not found: " + e.id }

// IsConstraint reports whether err is a uniqueness violation.
func IsConstraint(err error) bool {
	var e constraintError
	return errors.As(err, &e)
}

// IsForeignKey reports whether err is an unknown-session violation.
func IsForeignKey(err error) bool {
	var e foreignKeyError
	return errors.As(err, &e)
}

// IsNotFound reports whether err indicates a missing session.
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e)
}

// ErrNotFound constructs a not-found error for callers that need one (e.g. caches).
func ErrNotFound(what, id string) error { return notFoundError{what: what, id: id} }

// driverCode extracts the extended SQLite result code, or 0.
func driverCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// mapInsertError converts driver constraint failures into typed errors.
func mapInsertError(err error, table, id, sessionID string) error {
	switch driverCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return constraintError{table: table, id: id}
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return foreignKeyError{sessionID: sessionID}
	}
	return err
}
