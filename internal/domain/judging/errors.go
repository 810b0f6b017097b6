package judging

import "errors"

// Sentinel kinds for vote aggregation errors.
var (
	// ErrAlreadyJudged means the vote targeted a closed attempt. Callers
	// log and ignore it; it is not a fatal condition.
	ErrAlreadyJudged = errors.New("attempt already judged")
	// ErrInvalidVote means the vote failed structural validation.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrCloseContention means the close-decision write kept losing the
	// version race and gave up.
	ErrCloseContention = errors.New("attempt close contention")
)
