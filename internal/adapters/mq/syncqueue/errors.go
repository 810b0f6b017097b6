package syncqueue

import "errors"

// Sentinel kinds for offline queue errors.
var (
	// ErrRetryExhausted means at least one action was dropped to the
	// dead-letter list after exceeding its retry budget.
	ErrRetryExhausted = errors.New("sync action retry exhausted")
	// ErrClosed means the queue no longer accepts actions.
	ErrClosed = errors.New("sync queue closed")
)
