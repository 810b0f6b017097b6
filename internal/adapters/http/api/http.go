// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/g97iulio1609/a1lifter/internal/adapters/mq/syncqueue"
	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/judging"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/types"
	"github.com/g97iulio1609/a1lifter/internal/session"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	VoteDependencies
	SessionDependencies
	AttemptDependencies
	RegistrationDependencies
	LeaderboardDependencies
	SyncDependencies
}

// VoteDependencies covers judge vote submission.
type VoteDependencies interface {
	SubmitVote(ctx context.Context, vote model.JudgeVote) (types.VoteAck, error)
}

// SessionDependencies covers live session control and read views.
type SessionDependencies interface {
	CreateSession(ctx context.Context, eventID, setupID string) (model.LiveSession, error)
	StartSession(ctx context.Context, sessionID string) error
	PauseSession(ctx context.Context, sessionID string) error
	ResumeSession(ctx context.Context, sessionID string) error
	CompleteSession(ctx context.Context, sessionID string) error
	AbortSession(ctx context.Context, sessionID string) error
	AdvanceQueue(ctx context.Context, sessionID string) error
	NextLift(ctx context.Context, sessionID string) error
	StartBreak(sessionID string, d time.Duration) error
	CurrentAttempt(ctx context.Context, sessionID string) (model.Attempt, error)
	Queue(ctx context.Context, sessionID string) ([]types.QueueEntry, error)
	TimerState(sessionID string) (types.TimerView, error)
}

// AttemptDependencies covers weight declarations and corrections.
type AttemptDependencies interface {
	DeclareWeight(ctx context.Context, sessionID, athleteID, lift string, number int, weight float64) (model.Attempt, error)
	CorrectAttempt(ctx context.Context, attemptID, actorID, reason string) (model.Attempt, error)
}

// RegistrationDependencies covers meet setup writes.
type RegistrationDependencies interface {
	CreateSetup(ctx context.Context, setup model.EventSetup) (model.EventSetup, error)
	RegisterAthlete(ctx context.Context, a model.Athlete) (model.Athlete, error)
}

// LeaderboardDependencies defines the interface for leaderboard reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, eventID, categoryID, formula string, limit int) ([]types.LeaderboardRow, error)
}

// SyncDependencies covers the offline replay queue surface.
type SyncDependencies interface {
	FlushOfflineQueue(ctx context.Context) (syncqueue.Report, error)
	DeadLetters() []syncqueue.Action
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	votesHandler       *VotesHandler
	sessionsHandler    *SessionsHandler
	attemptsHandler    *AttemptsHandler
	athletesHandler    *AthletesHandler
	setupsHandler      *SetupsHandler
	leaderboardHandler *LeaderboardHandler
	syncHandler        *SyncHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		votesHandler:       NewVotesHandler(deps),
		sessionsHandler:    NewSessionsHandler(deps),
		attemptsHandler:    NewAttemptsHandler(deps),
		athletesHandler:    NewAthletesHandler(deps),
		setupsHandler:      NewSetupsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		syncHandler:        NewSyncHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/votes", MetricsMiddleware(s.votesHandler.HandlePostVote, "votes"))
	mux.HandleFunc("/sessions", MetricsMiddleware(s.sessionsHandler.HandleCreateSession, "sessions"))
	mux.HandleFunc("/sessions/", MetricsMiddleware(s.sessionsHandler.HandleSession, "sessions"))
	mux.HandleFunc("/attempts", MetricsMiddleware(s.attemptsHandler.HandleDeclareWeight, "attempts"))
	mux.HandleFunc("/attempts/", MetricsMiddleware(s.attemptsHandler.HandleAttempt, "attempts"))
	mux.HandleFunc("/athletes", MetricsMiddleware(s.athletesHandler.HandleRegisterAthlete, "athletes"))
	mux.HandleFunc("/setups", MetricsMiddleware(s.setupsHandler.HandleCreateSetup, "setups"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/sync/flush", MetricsMiddleware(s.syncHandler.HandleFlush, "sync_flush"))
	mux.HandleFunc("/sync/deadletters", MetricsMiddleware(s.syncHandler.HandleDeadLetters, "sync_deadletters"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates well-known domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound) || errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, judging.ErrInvalidVote):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, judging.ErrAlreadyJudged) || errors.Is(err, session.ErrAttemptClosed):
		writeError(w, http.StatusConflict, "already_judged", err)
	case errors.Is(err, session.ErrInvalidTransition) || errors.Is(err, session.ErrQueueNotEmpty) || errors.Is(err, session.ErrNoMoreLifts):
		writeError(w, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, judging.ErrCloseContention):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
