// Package syncqueue holds judge actions taken while the backing store
// is unreachable and replays them once connectivity returns.
//
// The queue is ordered and durable: actions are journaled through the
// store's sync_actions collection, so a crash between apply and removal
// is safe — replay is idempotent by action id. Enqueue never blocks on
// the network and never fails; Flush is single-flight.
package syncqueue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	"github.com/g97iulio1609/a1lifter/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultMaxRetries   = 3
	defaultApplyTimeout = 5 * time.Second
)

// Kind classifies a queued action.
type Kind string

// Action kinds.
const (
	KindJudgeDecision Kind = "judge_decision"
	KindAttemptUpdate Kind = "attempt_update"
	KindAthleteUpdate Kind = "athlete_update"
	KindEventUpdate   Kind = "event_update"
)

// Action is one not-yet-committed operation. ID doubles as the
// idempotency key the applier uses to make replay a no-op for actions
// that already reached the store.
type Action struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	Seq        uint64          `json:"seq"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Applier commits one action against the backing store. Implementations
// must be idempotent per action ID.
type Applier interface {
	Apply(ctx context.Context, action Action) error
}

// Probe reports whether the backing store is reachable. Injecting it
// keeps the online/offline branching deterministic in tests.
type Probe interface {
	Online(ctx context.Context) bool
}

// AlwaysOnline is the default probe for deployments without a
// connectivity signal.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online(context.Context) bool { return true }

// Report summarizes one flush pass.
type Report struct {
	Applied      int
	Retained     int
	DeadLettered int
}

type flight struct {
	done   chan struct{}
	report Report
	err    error
}

// Queue is the durable ordered offline action queue.
type Queue struct {
	mu      sync.Mutex
	pending []Action
	dead    []Action
	seq     uint64
	closed  bool
	inFly   *flight

	applier      Applier
	probe        Probe
	journal      repository.Store
	maxRetries   int
	applyTimeout time.Duration
	clock        clockwork.Clock
	logger       logger.Logger
}

// Option applies a configuration option to the Queue.
type Option func(*Queue)

// WithMaxRetries sets the per-action retry budget.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithApplyTimeout bounds each replay attempt.
func WithApplyTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.applyTimeout = d
		}
	}
}

// WithProbe injects the connectivity policy.
func WithProbe(p Probe) Option {
	return func(q *Queue) {
		if p != nil {
			q.probe = p
		}
	}
}

// WithJournal persists pending actions through the given store so a
// restart can replay them.
func WithJournal(s repository.Store) Option {
	return func(q *Queue) {
		q.journal = s
	}
}

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a Queue replaying against the given applier.
func New(applier Applier, opts ...Option) *Queue {
	q := &Queue{
		applier:      applier,
		probe:        AlwaysOnline{},
		maxRetries:   defaultMaxRetries,
		applyTimeout: defaultApplyTimeout,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logger.Get().Named("syncqueue")
	}
	return q
}

// Enqueue appends an action. It is synchronous, never blocks on the
// network, and always succeeds for an open queue; an action with an
// already-queued ID is a no-op.
func (q *Queue) Enqueue(ctx context.Context, id string, kind Kind, payload json.RawMessage) Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, a := range q.pending {
		if a.ID == id {
			return a
		}
	}
	q.seq++
	action := Action{
		ID:         id,
		Kind:       kind,
		Payload:    payload,
		Seq:        q.seq,
		EnqueuedAt: q.clock.Now().UTC(),
	}
	q.pending = append(q.pending, action)
	metrics.UpdateSyncQueueSize(len(q.pending))

	if q.journal != nil {
		// Best effort: the in-memory queue stays authoritative while the
		// journal itself may be the unreachable store.
		if _, err := q.journal.Put(ctx, repository.SyncActions, action.ID, action, repository.VersionAny); err != nil {
			q.logger.Debug(ctx, "journal write skipped", logger.String("action_id", action.ID), logger.Error(err))
		}
	}
	return action
}

// Restore reloads journaled actions after a restart, preserving their
// original order.
func (q *Queue) Restore(ctx context.Context) error {
	if q.journal == nil {
		return nil
	}
	docs, err := q.journal.List(ctx, repository.SyncActions, nil)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, doc := range docs {
		action, ok := doc.Data.(Action)
		if !ok {
			continue
		}
		q.pending = append(q.pending, action)
		if action.Seq > q.seq {
			q.seq = action.Seq
		}
	}
	sortBySeq(q.pending)
	metrics.UpdateSyncQueueSize(len(q.pending))
	return nil
}

// Flush replays pending actions in enqueue order. Concurrent calls are
// single-flight: a second caller joins the pass already running and
// receives its result. Returns ErrRetryExhausted when any action was
// dead-lettered during the pass.
func (q *Queue) Flush(ctx context.Context) (Report, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return Report{}, ErrClosed
	}
	if f := q.inFly; f != nil {
		q.mu.Unlock()
		select {
		case <-f.done:
			return f.report, f.err
		case <-ctx.Done():
			return Report{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	q.inFly = f
	batch := make([]Action, len(q.pending))
	copy(batch, q.pending)
	q.mu.Unlock()

	start := q.clock.Now()
	report, err := q.replay(ctx, batch)

	q.mu.Lock()
	q.inFly = nil
	q.mu.Unlock()

	metrics.RecordSyncFlush(float64(q.clock.Since(start).Milliseconds()))
	f.report, f.err = report, err
	close(f.done)
	return report, err
}

func (q *Queue) replay(ctx context.Context, batch []Action) (Report, error) {
	var report Report
	for _, action := range batch {
		if !q.probe.Online(ctx) {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		applyCtx, cancel := context.WithTimeout(ctx, q.applyTimeout)
		err := q.applier.Apply(applyCtx, action)
		cancel()

		if err == nil {
			q.remove(ctx, action.ID)
			report.Applied++
			metrics.RecordSyncReplayed()
			continue
		}

		if q.bumpRetries(ctx, action.ID) > q.maxRetries {
			q.remove(ctx, action.ID)
			q.addDead(action)
			report.DeadLettered++
			metrics.RecordSyncDeadLettered()
			q.logger.Error(ctx, "action dropped after retry exhaustion; needs manual intervention",
				logger.String("action_id", action.ID),
				logger.String("kind", string(action.Kind)),
				logger.Error(err),
			)
			continue
		}
		q.logger.Warn(ctx, "action replay failed; will retry",
			logger.String("action_id", action.ID),
			logger.Error(err),
		)
	}

	q.mu.Lock()
	report.Retained = len(q.pending)
	metrics.UpdateSyncQueueSize(len(q.pending))
	q.mu.Unlock()

	if report.DeadLettered > 0 {
		return report, ErrRetryExhausted
	}
	return report, nil
}

// remove drops an action from the pending list and, only after the
// remote write was acknowledged, from the journal.
func (q *Queue) remove(ctx context.Context, id string) {
	q.mu.Lock()
	for i, a := range q.pending {
		if a.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	if q.journal != nil {
		_ = q.journal.Delete(ctx, repository.SyncActions, id)
	}
}

func (q *Queue) bumpRetries(ctx context.Context, id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.pending {
		if q.pending[i].ID == id {
			q.pending[i].Retries++
			if q.journal != nil {
				_, _ = q.journal.Put(ctx, repository.SyncActions, id, q.pending[i], repository.VersionAny)
			}
			return q.pending[i].Retries
		}
	}
	return 0
}

func (q *Queue) addDead(action Action) {
	q.mu.Lock()
	q.dead = append(q.dead, action)
	q.mu.Unlock()
}

// DeadLetters returns actions dropped after retry exhaustion, oldest
// first. They stay visible until the process exits; dropping them
// silently would lose judge input without a trail.
func (q *Queue) DeadLetters() []Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Action, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting actions and flush passes.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func sortBySeq(actions []Action) {
	sort.Slice(actions, func(i, j int) bool { return actions[i].Seq < actions[j].Seq })
}
