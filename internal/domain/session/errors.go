package session

import "errors"

// Errors returned by the session controller.
var (
	ErrAlreadyActive     = errors.New("session already started")
	ErrCameraUnavailable = errors.New("camera unavailable")
)
