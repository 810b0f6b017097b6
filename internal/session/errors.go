package session

import "errors"

// Sentinel kinds for session errors.
var (
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrQueueNotEmpty     = errors.New("queue not empty")
	ErrAttemptClosed     = errors.New("attempt already closed")
	ErrNoMoreLifts       = errors.New("no more lifts in setup")
)
