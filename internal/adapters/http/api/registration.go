// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
)

// AthletesHandler handles athlete registration requests.
type AthletesHandler struct {
	deps RegistrationDependencies
}

// NewAthletesHandler creates a new athletes handler.
func NewAthletesHandler(deps RegistrationDependencies) *AthletesHandler {
	return &AthletesHandler{deps: deps}
}

// athleteRequest mirrors the wire schema for POST /athletes.
type athleteRequest struct {
	EventID    string  `json:"event_id"`
	CategoryID string  `json:"category_id"`
	Name       string  `json:"name"`
	Gender     string  `json:"gender"`
	Bodyweight float64 `json:"bodyweight"`
	Lot        int     `json:"lot"`
}

func (a athleteRequest) validate() error {
	switch {
	case strings.TrimSpace(a.EventID) == "":
		return errors.New("missing event_id")
	case strings.TrimSpace(a.Name) == "":
		return errors.New("missing name")
	case a.Bodyweight <= 0:
		return errors.New("bodyweight must be positive")
	}
	switch model.Gender(a.Gender) {
	case model.GenderMale, model.GenderFemale:
	default:
		return errors.New("gender must be M or F")
	}
	return nil
}

// HandleRegisterAthlete handles POST /athletes requests.
func (h *AthletesHandler) HandleRegisterAthlete(w http.ResponseWriter, r *http.Request) {
	const op = "api.register_athlete"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req athleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	athlete, err := h.deps.RegisterAthlete(r.Context(), model.Athlete{
		EventID:    req.EventID,
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Gender:     model.Gender(req.Gender),
		Bodyweight: req.Bodyweight,
		Lot:        req.Lot,
	})
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, athlete)
}

// SetupsHandler handles event setup requests.
type SetupsHandler struct {
	deps RegistrationDependencies
}

// NewSetupsHandler creates a new setups handler.
func NewSetupsHandler(deps RegistrationDependencies) *SetupsHandler {
	return &SetupsHandler{deps: deps}
}

// setupRequest mirrors the wire schema for POST /setups.
type setupRequest struct {
	EventID         string   `json:"event_id"`
	Lifts           []string `json:"lifts"`
	AttemptsPerLift int      `json:"attempts_per_lift"`
	JudgesPerPanel  int      `json:"judges_per_panel"`
}

// HandleCreateSetup handles POST /setups requests.
func (h *SetupsHandler) HandleCreateSetup(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_setup"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req setupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.EventID) == "" || len(req.Lifts) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	setup, err := h.deps.CreateSetup(r.Context(), model.EventSetup{
		EventID:         req.EventID,
		Lifts:           req.Lifts,
		AttemptsPerLift: req.AttemptsPerLift,
		JudgesPerPanel:  req.JudgesPerPanel,
	})
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, setup)
}
