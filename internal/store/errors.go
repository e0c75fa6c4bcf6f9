package store

import "errors"

var (
	// ErrNotFound is returned by lookups on an unknown document or block id.
	// It is a normal outcome, not a failure, and is never conflated with an
	// empty-but-found result.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with existing state it
	// must not silently replace, e.g. persisting a document id twice.
	ErrConflict = errors.New("conflicting write")
)
