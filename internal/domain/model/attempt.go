// Package model contains domain entities passed between layers.
package model

import "time"

// AttemptResult is the lifecycle state of an attempt's outcome.
type AttemptResult string

// Attempt results. PENDING transitions to exactly one of the other
// states and is immutable afterwards.
const (
	ResultPending      AttemptResult = "PENDING"
	ResultGood         AttemptResult = "GOOD"
	ResultNoLift       AttemptResult = "NO_LIFT"
	ResultDisqualified AttemptResult = "DISQUALIFIED"
)

// Decision is a single judge's call on an attempt.
type Decision string

// Judge decisions.
const (
	DecisionGood   Decision = "GOOD"
	DecisionNoLift Decision = "NO_LIFT"
)

// JudgeVote is one judge's decision for one attempt. Votes are owned by
// exactly one attempt and immutable once the attempt closes.
type JudgeVote struct {
	JudgeID        string    `json:"judge_id"`
	AttemptID      string    `json:"attempt_id"`
	Decision       Decision  `json:"decision"`
	ReasonCode     string    `json:"reason_code,omitempty"`
	HeadJudge      bool      `json:"head_judge,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Attempt is one scored lift try by one athlete in one lift/attempt-number
// slot. At most one attempt exists per (athlete, lift, number) per event.
type Attempt struct {
	ID              string        `json:"id"`
	EventID         string        `json:"event_id"`
	AthleteID       string        `json:"athlete_id"`
	CategoryID      string        `json:"category_id"`
	Lift            string        `json:"lift"`
	Number          int           `json:"number"`
	RequestedWeight float64       `json:"requested_weight"`
	ActualWeight    float64       `json:"actual_weight,omitempty"`
	Result          AttemptResult `json:"result"`
	Votes           []JudgeVote   `json:"votes,omitempty"`
	// Overridden marks a head-judge decision that disagreed with the
	// lay-judge majority; the full vote list is retained for audit.
	Overridden bool       `json:"overridden,omitempty"`
	Voided     bool       `json:"voided,omitempty"`
	JudgedAt   *time.Time `json:"judged_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Judged reports whether the attempt has closed to a final result.
func (a *Attempt) Judged() bool {
	return a.Result != ResultPending && a.Result != ""
}

// VoteBy returns the accepted vote from the given judge, if any.
func (a *Attempt) VoteBy(judgeID string) (JudgeVote, bool) {
	for _, v := range a.Votes {
		if v.JudgeID == judgeID {
			return v, true
		}
	}
	return JudgeVote{}, false
}

// AuditEntry records a superseding correction to a judged attempt.
// Judged attempts are never mutated; corrections append one of these
// and point at the replacement attempt.
type AuditEntry struct {
	ID           string    `json:"id"`
	AttemptID    string    `json:"attempt_id"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	Reason       string    `json:"reason"`
	ActorID      string    `json:"actor_id"`
	CreatedAt    time.Time `json:"created_at"`
}
