package model

import "time"

// TimerPhase distinguishes what a countdown is for.
type TimerPhase string

// Timer phases.
const (
	PhaseAttempt          TimerPhase = "ATTEMPT"
	PhaseBreak            TimerPhase = "BREAK"
	PhaseDisciplineChange TimerPhase = "DISCIPLINE_CHANGE"
)

// TimerState is the engine state reported to callers.
type TimerState string

// Timer states.
const (
	TimerIdle    TimerState = "IDLE"
	TimerRunning TimerState = "RUNNING"
	TimerPaused  TimerState = "PAUSED"
	TimerExpired TimerState = "EXPIRED"
	TimerStopped TimerState = "STOPPED"
)

// Timer is a read snapshot of a countdown. Remaining is always derived
// from duration and start time against the wall clock, never from a
// ticking counter, so snapshots survive missed ticks and restarts.
type Timer struct {
	SessionID string        `json:"session_id"`
	Phase     TimerPhase    `json:"phase"`
	State     TimerState    `json:"state"`
	Duration  time.Duration `json:"duration"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	Remaining time.Duration `json:"remaining"`
}
