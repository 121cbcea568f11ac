package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted          = errors.New("service not started")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session not active")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidSignal       = errors.New("invalid signal")
	ErrInvalidCameraAction = errors.New("invalid camera action")
)
