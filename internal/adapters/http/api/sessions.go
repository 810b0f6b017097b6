// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// SessionsHandler handles session lifecycle and read requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// createSessionRequest mirrors the wire schema for POST /sessions.
type createSessionRequest struct {
	EventID string `json:"event_id"`
	SetupID string `json:"setup_id"`
}

// HandleCreateSession handles POST /sessions requests.
func (h *SessionsHandler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_session"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.EventID) == "" || strings.TrimSpace(req.SetupID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	s, err := h.deps.CreateSession(r.Context(), req.EventID, req.SetupID)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// breakRequest mirrors the wire schema for POST /sessions/{id}/break.
type breakRequest struct {
	DurationSec int `json:"duration_sec"`
}

// HandleSession routes GET /sessions/{id}/current|queue|timer and the
// POST /sessions/{id}/{action} lifecycle endpoints.
func (h *SessionsHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	const op = "api.session"
	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	id, sub := parts[0], parts[1]

	if r.Method == http.MethodGet {
		h.handleRead(w, r, id, sub)
		return
	}
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var err error
	switch sub {
	case "start":
		err = h.deps.StartSession(r.Context(), id)
	case "pause":
		err = h.deps.PauseSession(r.Context(), id)
	case "resume":
		err = h.deps.ResumeSession(r.Context(), id)
	case "advance":
		err = h.deps.AdvanceQueue(r.Context(), id)
	case "next-lift":
		err = h.deps.NextLift(r.Context(), id)
	case "complete":
		err = h.deps.CompleteSession(r.Context(), id)
	case "abort":
		err = h.deps.AbortSession(r.Context(), id)
	case "break":
		var req breakRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		err = h.deps.StartBreak(id, time.Duration(req.DurationSec)*time.Second)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SessionsHandler) handleRead(w http.ResponseWriter, r *http.Request, id, sub string) {
	const op = "api.session_read"
	switch sub {
	case "current":
		attempt, err := h.deps.CurrentAttempt(r.Context(), id)
		if err != nil {
			writeDomainError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, attempt)
	case "queue":
		queue, err := h.deps.Queue(r.Context(), id)
		if err != nil {
			writeDomainError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, queue)
	case "timer":
		view, err := h.deps.TimerState(id)
		if err != nil {
			writeDomainError(w, Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, view)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("unknown session view")))
	}
}
