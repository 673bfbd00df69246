package core

import "errors"

var (
	// ErrScopeNotFound aborts a session whose campaign does not exist.
	ErrScopeNotFound = errors.New("campaign does not exist")

	// ErrUnknownKind is returned for an import kind with no registered schema.
	ErrUnknownKind = errors.New("unknown import kind")

	// ErrNoHeader is returned by sheet readers when no row looks like a header.
	ErrNoHeader = errors.New("header row not found")

	// ErrEmptySheet is returned for files without any data rows.
	ErrEmptySheet = errors.New("empty file")

	// ErrDuplicateKey is returned by RecordStore.Create when the store's
	// uniqueness constraint rejects the record.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSessionStarted is returned when Run is called twice on a session.
	ErrSessionStarted = errors.New("import session already started")

	// ErrPersistence marks a row whose commit failed for a reason other than
	// the uniqueness constraint.
	ErrPersistence = errors.New("persistence failure")
)
