package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("document not found")
	ErrVersionConflict = errors.New("document version conflict")
	ErrUnavailable     = errors.New("store unavailable")
	ErrClosed          = errors.New("store closed")
)
