// Package repository defines the keyed document store the engine
// persists through, along with its errors.
//
// The engine never sees storage internals: everything goes through Get,
// Put, List and Subscribe. Change delivery is at-least-once and may be
// out of order relative to writes; consumers are required to tolerate
// duplicates.
package repository

import (
	"context"
	"time"
)

// Collection names used by the engine.
const (
	Attempts    = "attempts"
	Sessions    = "sessions"
	Athletes    = "athletes"
	Setups      = "setups"
	SyncActions = "sync_actions"
	Audit       = "audit"
)

// Version sentinels for Put.
const (
	// VersionAny skips the optimistic check.
	VersionAny int64 = -1
	// VersionNew requires that the document does not exist yet.
	VersionNew int64 = 0
)

// Document is one stored row/doc plus its optimistic-concurrency version.
// Data must be treated as read-only by consumers; mutate a copy and Put it.
type Document struct {
	Collection string
	ID         string
	Version    int64
	Data       any
	UpdatedAt  time.Time
}

// Change notifies a subscriber of a created or updated document.
type Change struct {
	Document
}

// Store provides keyed access with subscribe-for-changes semantics.
type Store interface {
	// Get returns a document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Put writes a document. expected is the version the caller read
	// (VersionNew for create, VersionAny to skip the check); a mismatch
	// returns ErrVersionConflict and writes nothing.
	Put(ctx context.Context, collection, id string, data any, expected int64) (Document, error)

	// Delete removes a document. Missing documents are a no-op.
	Delete(ctx context.Context, collection, id string) error

	// List returns all documents in a collection matching the filter.
	// A nil filter matches everything.
	List(ctx context.Context, collection string, match func(Document) bool) ([]Document, error)

	// Subscribe registers a change callback for a collection and returns
	// a cancel handle. Delivery is asynchronous and at-least-once.
	Subscribe(ctx context.Context, collection string, match func(Change) bool, fn func(Change)) (func(), error)
}
