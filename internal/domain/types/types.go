// Package types contains the read shapes returned across the API boundary.
package types

// LeaderboardRow is one ranked athlete in a leaderboard response.
type LeaderboardRow struct {
	Rank       int                `json:"rank"`
	AthleteID  string             `json:"athlete_id"`
	CategoryID string             `json:"category_id"`
	BestLifts  map[string]float64 `json:"best_lifts"`
	Total      float64            `json:"total"`
	Scores     FormulaScores      `json:"scores"`
}

// FormulaScores carries all four bodyweight-normalized scores.
type FormulaScores struct {
	Wilks    float64 `json:"wilks"`
	IPF      float64 `json:"ipf"`
	DOTS     float64 `json:"dots"`
	Sinclair float64 `json:"sinclair"`
}

// QueueEntry is one slot of the up-next order as exposed to callers.
type QueueEntry struct {
	AttemptID       string  `json:"attempt_id"`
	AthleteID       string  `json:"athlete_id"`
	Lift            string  `json:"lift"`
	Number          int     `json:"number"`
	RequestedWeight float64 `json:"requested_weight"`
	Lot             int     `json:"lot"`
}

// TimerView is the timer snapshot exposed to callers. Remaining is in
// whole seconds, rounded down.
type TimerView struct {
	SessionID    string `json:"session_id"`
	Phase        string `json:"phase"`
	State        string `json:"state"`
	DurationSec  int    `json:"duration_sec"`
	RemainingSec int    `json:"remaining_sec"`
}

// VoteAck is the immediate confirmation a judge client receives.
type VoteAck struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	Closed    bool   `json:"closed"`
	Result    string `json:"result,omitempty"`
	Queued    bool   `json:"queued"`
}
