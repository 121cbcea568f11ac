package repository

import "errors"

// Sentinel errors for the session record store.
var (
	ErrNotFound          = errors.New("session record not found")
	ErrInvalidLimit      = errors.New("invalid record limit")
	ErrInvalidRecord     = errors.New("session record requires a session id")
	ErrUnsupportedDriver = errors.New("unsupported store driver")
)
