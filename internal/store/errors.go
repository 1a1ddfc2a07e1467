package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateKey   = errors.New("already exists")

	// ErrInvalidTransition is returned when a guarded status update matched
	// no row, meaning the job already left the expected state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
