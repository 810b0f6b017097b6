package model

import "time"

// SessionState is the lifecycle state of a live session.
type SessionState string

// Session states. COMPLETED is terminal; ABORTED records an organizer
// cancellation and is also terminal.
const (
	SessionSetup     SessionState = "SETUP"
	SessionActive    SessionState = "ACTIVE"
	SessionPaused    SessionState = "PAUSED"
	SessionCompleted SessionState = "COMPLETED"
	SessionAborted   SessionState = "ABORTED"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// QueueItem is one slot in the lifting order. Items are derived from
// pending attempts and recomputed, never hand-edited.
type QueueItem struct {
	AttemptID       string    `json:"attempt_id"`
	AthleteID       string    `json:"athlete_id"`
	Lift            string    `json:"lift"`
	Number          int       `json:"number"`
	RequestedWeight float64   `json:"requested_weight"`
	Lot             int       `json:"lot"`
	RegisteredAt    time.Time `json:"registered_at"`
}

// LiveSession is the authoritative "what is happening now" record for
// one running event. Mutated only by the session state machine.
type LiveSession struct {
	ID               string       `json:"id"`
	EventID          string       `json:"event_id"`
	SetupID          string       `json:"setup_id"`
	State            SessionState `json:"state"`
	CurrentAttemptID string       `json:"current_attempt_id,omitempty"`
	CurrentLift      string       `json:"current_lift,omitempty"`
	Queue            []QueueItem  `json:"queue"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// EventSetup describes the competition shape a session runs under.
type EventSetup struct {
	ID              string   `json:"id"`
	EventID         string   `json:"event_id"`
	Lifts           []string `json:"lifts"`
	AttemptsPerLift int      `json:"attempts_per_lift"`
	JudgesPerPanel  int      `json:"judges_per_panel"`
}

// Gender selects the coefficient set used by scoring formulas.
type Gender string

// Genders recognized by the published formula tables.
const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Athlete carries the registration data the engine needs: bodyweight
// and gender for scoring, lot and registration time for queue ordering.
type Athlete struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	CategoryID   string    `json:"category_id"`
	Name         string    `json:"name"`
	Gender       Gender    `json:"gender"`
	Bodyweight   float64   `json:"bodyweight"`
	Lot          int       `json:"lot"`
	RegisteredAt time.Time `json:"registered_at"`
}
