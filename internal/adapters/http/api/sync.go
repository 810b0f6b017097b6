// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"errors"
	"net/http"

	"github.com/g97iulio1609/a1lifter/internal/adapters/mq/syncqueue"
)

// SyncHandler exposes the offline replay queue.
type SyncHandler struct {
	deps SyncDependencies
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncDependencies) *SyncHandler {
	return &SyncHandler{deps: deps}
}

// flushResponse mirrors the wire schema for POST /sync/flush.
type flushResponse struct {
	Applied      int  `json:"applied"`
	Retained     int  `json:"retained"`
	DeadLettered int  `json:"dead_lettered"`
	Exhausted    bool `json:"exhausted"`
}

// HandleFlush handles POST /sync/flush requests. Retry exhaustion is
// reported in the body, not as an HTTP failure: the flush pass itself
// worked and its outcome is what the organizer asked to see.
func (h *SyncHandler) HandleFlush(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync_flush"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	report, err := h.deps.FlushOfflineQueue(r.Context())
	if err != nil && !errors.Is(err, syncqueue.ErrRetryExhausted) {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, flushResponse{
		Applied:      report.Applied,
		Retained:     report.Retained,
		DeadLettered: report.DeadLettered,
		Exhausted:    errors.Is(err, syncqueue.ErrRetryExhausted),
	})
}

// HandleDeadLetters handles GET /sync/deadletters requests.
func (h *SyncHandler) HandleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	letters := h.deps.DeadLetters()
	if letters == nil {
		letters = []syncqueue.Action{}
	}
	writeJSON(w, http.StatusOK, letters)
}
