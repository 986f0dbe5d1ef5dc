// Package apperr defines the error kinds shared across the notepad core.
package apperr

import "errors"

var (
	// ErrNotFound means an identifier no longer resolves: the note was
	// deleted (possibly by another session) or never existed.
	ErrNotFound = errors.New("not found")
	// ErrStorageUnavailable wraps any record store backend fault.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrEmptyInput is returned for blank export names and blank search patterns.
	ErrEmptyInput = errors.New("empty input")
	// ErrSinkUnwritable means an export target could not be opened or written.
	ErrSinkUnwritable = errors.New("sink unwritable")

	ErrNotDirty      = errors.New("nothing to revert")
	ErrSessionClosed = errors.New("session closed")
)
