// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
)

// VotesHandler handles judge vote requests.
type VotesHandler struct {
	deps VoteDependencies
}

// NewVotesHandler creates a new votes handler.
func NewVotesHandler(deps VoteDependencies) *VotesHandler {
	return &VotesHandler{deps: deps}
}

// voteRequest mirrors the wire schema for POST /votes.
type voteRequest struct {
	AttemptID      string `json:"attempt_id"`
	JudgeID        string `json:"judge_id"`
	Decision       string `json:"decision"`
	ReasonCode     string `json:"reason_code"`
	HeadJudge      bool   `json:"head_judge"`
	IdempotencyKey string `json:"idempotency_key"`
	TS             string `json:"ts"`
}

func (v voteRequest) validate() error {
	switch {
	case strings.TrimSpace(v.AttemptID) == "":
		return errors.New("missing attempt_id")
	case strings.TrimSpace(v.JudgeID) == "":
		return errors.New("missing judge_id")
	case strings.TrimSpace(v.IdempotencyKey) == "":
		return errors.New("missing idempotency_key")
	}
	switch model.Decision(v.Decision) {
	case model.DecisionGood, model.DecisionNoLift:
	default:
		return errors.New("decision must be GOOD or NO_LIFT")
	}
	if v.TS != "" {
		if _, err := time.Parse(time.RFC3339, v.TS); err != nil {
			return errors.New("invalid ts; must be RFC3339")
		}
	}
	return nil
}

// HandlePostVote handles POST /votes requests.
func (h *VotesHandler) HandlePostVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_vote"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	vote := model.JudgeVote{
		JudgeID:        req.JudgeID,
		AttemptID:      req.AttemptID,
		Decision:       model.Decision(req.Decision),
		ReasonCode:     req.ReasonCode,
		HeadJudge:      req.HeadJudge,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.TS != "" {
		ts, _ := time.Parse(time.RFC3339, req.TS)
		vote.SubmittedAt = ts
	}

	ack, err := h.deps.SubmitVote(r.Context(), vote)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if ack.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, ack)
}
