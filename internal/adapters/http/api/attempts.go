// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// AttemptsHandler handles weight declarations and corrections.
type AttemptsHandler struct {
	deps AttemptDependencies
}

// NewAttemptsHandler creates a new attempts handler.
func NewAttemptsHandler(deps AttemptDependencies) *AttemptsHandler {
	return &AttemptsHandler{deps: deps}
}

// declareRequest mirrors the wire schema for POST /attempts.
type declareRequest struct {
	SessionID string  `json:"session_id"`
	AthleteID string  `json:"athlete_id"`
	Lift      string  `json:"lift"`
	Number    int     `json:"number"`
	Weight    float64 `json:"weight"`
}

func (d declareRequest) validate() error {
	switch {
	case strings.TrimSpace(d.SessionID) == "":
		return errors.New("missing session_id")
	case strings.TrimSpace(d.AthleteID) == "":
		return errors.New("missing athlete_id")
	case strings.TrimSpace(d.Lift) == "":
		return errors.New("missing lift")
	case d.Number < 1:
		return errors.New("number must be at least 1")
	case d.Weight <= 0:
		return errors.New("weight must be positive")
	}
	return nil
}

// HandleDeclareWeight handles POST /attempts requests.
func (h *AttemptsHandler) HandleDeclareWeight(w http.ResponseWriter, r *http.Request) {
	const op = "api.declare_weight"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req declareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	attempt, err := h.deps.DeclareWeight(r.Context(), req.SessionID, req.AthleteID, req.Lift, req.Number, req.Weight)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

// correctRequest mirrors the wire schema for POST /attempts/{id}/correct.
type correctRequest struct {
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

// HandleAttempt routes POST /attempts/{id}/correct requests.
func (h *AttemptsHandler) HandleAttempt(w http.ResponseWriter, r *http.Request) {
	const op = "api.correct_attempt"
	rest := strings.TrimPrefix(r.URL.Path, "/attempts/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "correct" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req correctRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.ActorID) == "" || strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	replacement, err := h.deps.CorrectAttempt(r.Context(), parts[0], req.ActorID, req.Reason)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, replacement)
}
