package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrBoundary is returned by reorder operations that would move a record
	// past the first or last position among its siblings. The document is
	// left unmodified.
	ErrBoundary = errors.New("already at boundary")

	// ErrRecordNotFound is returned when a structural operation references a
	// record id that does not exist in the document.
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidDocument is returned when an operation requires a parseable
	// document but the current text has a structural error in its data block.
	ErrInvalidDocument = errors.New("invalid document")
)
