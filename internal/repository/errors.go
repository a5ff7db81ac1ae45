package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrLocked is returned when another process already owns the data directory
	ErrLocked = errors.New("data directory is locked by another process")

	// ErrCorrupt is returned when a persisted file cannot be decoded
	ErrCorrupt = errors.New("corrupt data file")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)
