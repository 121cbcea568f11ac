package analyzer

import "errors"

// Errors returned by analyzers.
var (
	ErrAnalysis   = errors.New("frame analysis failed")
	ErrEmptyFrame = errors.New("empty frame")
)
