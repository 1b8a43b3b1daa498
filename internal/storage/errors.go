package storage

import "errors"

var (
	// ErrNotFound: no goal (or other keyed row) under the requested key.
	ErrNotFound = errors.New("storage: record not found")

	// ErrDuplicateKey: a yield report id was already persisted. Reports are
	// never overwritten.
	ErrDuplicateKey = errors.New("storage: report id already stored")

	// ErrInvalidInput: the record failed validation before reaching the backend.
	ErrInvalidInput = errors.New("storage: invalid record")
)
