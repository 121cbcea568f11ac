package attemptlog

import "errors"

// Errors returned by the attempt log client.
var (
	ErrUnexpectedStatus = errors.New("attempt log: unexpected status")
	ErrMissingAttemptID = errors.New("attempt log: response carries no attempt id")
	ErrNoCertification  = errors.New("attempt log: certification id is required")
)
