package storage

import "errors"

// Journal and analytics stores are append-only.
var (
	// ErrNotFound is returned when a requested seq or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a seq or operation_id is already
	// stored. Existing rows are never updated.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned for records missing required fields or
	// carrying amounts the backend cannot hold.
	ErrInvalidInput = errors.New("invalid input")
)
