// Package judging combines judge votes into one authoritative attempt
// result.
//
// The critical invariant is exactly-once closing: "read current votes,
// decide, write result" is atomic per attempt. In-process submissions
// serialize on a striped mutex; cross-process writers are fenced by the
// store's version check, so two judges can never both win the close and
// double-advance the queue.
package judging

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/dedupe"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	"github.com/g97iulio1609/a1lifter/pkg/metrics"
)

// Aggregation configuration constants.
const (
	defaultPanelSize = 3
	lockStripes      = 64
	maxCloseRetries  = 3

	// ReasonTechnicalDQ on a head-judge vote closes the attempt as
	// DISQUALIFIED instead of NO_LIFT.
	ReasonTechnicalDQ = "TECHNICAL_DQ"
)

// Outcome reports what a Submit call did.
type Outcome struct {
	// Closed is true only for the single call that performed the state
	// transition. Callers use it to trigger queue advancement exactly once.
	Closed bool
	// AlreadyClosed is true when the attempt was judged before this call.
	AlreadyClosed bool
	// Duplicate is true when the idempotency key was seen before.
	Duplicate bool
	// Overridden is true when a head-judge decision disagreed with the
	// lay majority.
	Overridden bool
	Result     model.AttemptResult
}

// Aggregator applies votes to attempts stored in the repository.
type Aggregator struct {
	store     repository.Store
	keys      dedupe.Deduper
	panelSize int
	clock     clockwork.Clock
	logger    logger.Logger

	locks [lockStripes]sync.Mutex
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithPanelSize sets the number of lay judges on the platform.
func WithPanelSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.panelSize = n
		}
	}
}

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithDeduper injects a shared idempotency tracker.
func WithDeduper(d dedupe.Deduper) Option {
	return func(a *Aggregator) {
		if d != nil {
			a.keys = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator backed by the given store.
func New(store repository.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:     store,
		keys:      dedupe.New(),
		panelSize: defaultPanelSize,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("judging")
	}
	return a
}

// Submit applies one judge vote and closes the attempt when quorum is
// reached. Resubmission with the same idempotency key is a no-op; a new
// vote from a judge who already voted replaces their pending vote.
func (a *Aggregator) Submit(ctx context.Context, vote model.JudgeVote) (Outcome, error) {
	metrics.RecordVoteSubmitted()

	if err := validate(vote); err != nil {
		metrics.RecordVoteRejected("invalid")
		return Outcome{}, err
	}

	lock := &a.locks[stripe(vote.AttemptID)]
	lock.Lock()
	defer lock.Unlock()

	if a.keys.SeenAndRecord(ctx, vote.IdempotencyKey) {
		metrics.RecordVoteDuplicate()
		out := Outcome{Duplicate: true}
		if doc, err := a.store.Get(ctx, repository.Attempts, vote.AttemptID); err == nil {
			if attempt, ok := doc.Data.(model.Attempt); ok {
				out.Result = attempt.Result
				out.AlreadyClosed = attempt.Judged()
			}
		}
		return out, nil
	}

	var lastErr error
	for i := 0; i < maxCloseRetries; i++ {
		out, err := a.apply(ctx, vote)
		if err == nil || !errors.Is(err, repository.ErrVersionConflict) {
			if err != nil && !errors.Is(err, ErrAlreadyJudged) {
				// The vote never committed; free the key for a retry.
				a.keys.Unrecord(ctx, vote.IdempotencyKey)
			}
			return out, err
		}
		metrics.RecordVoteCloseRace()
		lastErr = err
	}
	a.keys.Unrecord(ctx, vote.IdempotencyKey)
	return Outcome{}, fmt.Errorf("%w: %s", ErrCloseContention, lastErr)
}

// apply performs one read-decide-write pass under the attempt's version.
func (a *Aggregator) apply(ctx context.Context, vote model.JudgeVote) (Outcome, error) {
	doc, err := a.store.Get(ctx, repository.Attempts, vote.AttemptID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load attempt: %w", err)
	}
	attempt, ok := doc.Data.(model.Attempt)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: attempt %s has unexpected shape", ErrInvalidVote, vote.AttemptID)
	}

	if attempt.Judged() {
		metrics.RecordVoteRejected("already_judged")
		a.logger.Warn(ctx, "vote for closed attempt ignored",
			logger.String("attempt_id", vote.AttemptID),
			logger.String("judge_id", vote.JudgeID),
		)
		return Outcome{AlreadyClosed: true, Result: attempt.Result}, ErrAlreadyJudged
	}

	// Judges may change their mind until quorum closes: a fresh key from
	// the same judge replaces the pending vote.
	replaced := false
	for i, v := range attempt.Votes {
		if v.JudgeID == vote.JudgeID {
			attempt.Votes[i] = vote
			replaced = true
			break
		}
	}
	if !replaced {
		attempt.Votes = append(attempt.Votes, vote)
	}

	result, overridden, closed := a.decide(attempt.Votes)
	out := Outcome{Result: attempt.Result}
	if closed {
		now := a.clock.Now().UTC()
		attempt.Result = result
		attempt.Overridden = overridden
		attempt.JudgedAt = &now
		out = Outcome{Closed: true, Overridden: overridden, Result: result}
	}
	attempt.UpdatedAt = a.clock.Now().UTC()

	if _, err := a.store.Put(ctx, repository.Attempts, attempt.ID, attempt, doc.Version); err != nil {
		return Outcome{}, err
	}

	if closed {
		metrics.RecordAttemptJudged(string(result))
		if overridden {
			metrics.RecordHeadOverride()
		}
		a.logger.Info(ctx, "attempt judged",
			logger.String("attempt_id", attempt.ID),
			logger.String("result", string(result)),
			logger.Int("votes", len(attempt.Votes)),
			logger.Bool("overridden", overridden),
		)
	}
	return out, nil
}

// decide evaluates the quorum rules over the accepted votes.
//
// A head-judge vote closes immediately and unconditionally. Otherwise
// the attempt closes as soon as a lay majority agrees or the whole
// panel has voted.
func (a *Aggregator) decide(votes []model.JudgeVote) (model.AttemptResult, bool, bool) {
	var good, noLift int
	var head *model.JudgeVote
	for i, v := range votes {
		if v.HeadJudge {
			head = &votes[i]
			continue
		}
		if v.Decision == model.DecisionGood {
			good++
		} else {
			noLift++
		}
	}

	if head != nil {
		result := model.ResultGood
		if head.Decision == model.DecisionNoLift {
			result = model.ResultNoLift
			if head.ReasonCode == ReasonTechnicalDQ {
				result = model.ResultDisqualified
			}
		}
		overridden := (result != model.ResultGood && good > noLift) ||
			(result == model.ResultGood && noLift > good)
		return result, overridden, true
	}

	majority := a.panelSize/2 + 1
	switch {
	case good >= majority:
		return model.ResultGood, false, true
	case noLift >= majority:
		return model.ResultNoLift, false, true
	case good+noLift >= a.panelSize:
		if good > noLift {
			return model.ResultGood, false, true
		}
		return model.ResultNoLift, false, true
	}
	return model.ResultPending, false, false
}

func validate(vote model.JudgeVote) error {
	switch {
	case vote.AttemptID == "":
		return fmt.Errorf("%w: missing attempt id", ErrInvalidVote)
	case vote.JudgeID == "":
		return fmt.Errorf("%w: missing judge id", ErrInvalidVote)
	case vote.IdempotencyKey == "":
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidVote)
	case vote.Decision != model.DecisionGood && vote.Decision != model.DecisionNoLift:
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidVote, vote.Decision)
	}
	return nil
}

func stripe(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % lockStripes)
}
