// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
//
// It wires the judging aggregator, the live session machinery, the
// leaderboard builder and the offline sync queue together. Judge votes
// taken while the store is unreachable are acknowledged immediately and
// replayed by the flush worker once connectivity returns.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/mq/flushworker"
	"github.com/g97iulio1609/a1lifter/internal/adapters/mq/syncqueue"
	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/dedupe"
	"github.com/g97iulio1609/a1lifter/internal/domain/judging"
	"github.com/g97iulio1609/a1lifter/internal/domain/leaderboard"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/scoring"
	"github.com/g97iulio1609/a1lifter/internal/domain/types"
	"github.com/g97iulio1609/a1lifter/internal/session"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	"github.com/g97iulio1609/a1lifter/pkg/metrics"
)

// Service implements the API dependencies for the judging engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	aggregator *judging.Aggregator
	queue      *syncqueue.Queue
	worker     *flushworker.Worker
	sessions   *session.Manager
	boards     *leaderboard.Builder

	// Configuration
	dedupeSize      int
	shardCount      int
	panelSize       int
	attemptDuration time.Duration
	breakDuration   time.Duration
	primaryFormula  scoring.Formula
	syncMaxRetries  int
	flushInterval   time.Duration
	maxBoardLimit   int
	probe           syncqueue.Probe
	clock           clockwork.Clock

	// State
	started    bool
	workerStop func()
	workerDone chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDedupeSize sets the size of the vote idempotency cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithShardCount sets the number of store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithPanelSize sets the number of lay judges on the platform.
func WithPanelSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.panelSize = n
		}
	}
}

// WithAttemptDuration sets the per-attempt countdown.
func WithAttemptDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.attemptDuration = d
		}
	}
}

// WithBreakDuration sets the default break countdown.
func WithBreakDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.breakDuration = d
		}
	}
}

// WithPrimaryFormula sets the default leaderboard ordering.
func WithPrimaryFormula(f scoring.Formula) Option {
	return func(s *Service) {
		if f != "" {
			s.primaryFormula = f
		}
	}
}

// WithSyncMaxRetries sets the offline action retry budget.
func WithSyncMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.syncMaxRetries = n
		}
	}
}

// WithFlushInterval sets the background flush cadence.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard responses.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBoardLimit = n
		}
	}
}

// WithProbe injects the store connectivity policy.
func WithProbe(p syncqueue.Probe) Option {
	return func(s *Service) {
		if p != nil {
			s.probe = p
		}
	}
}

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStore injects a prebuilt store, primarily for tests.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dedupeSize:      100_000,
		shardCount:      8,
		panelSize:       3,
		attemptDuration: 60 * time.Second,
		breakDuration:   10 * time.Minute,
		primaryFormula:  scoring.IPF,
		syncMaxRetries:  3,
		flushInterval:   15 * time.Second,
		maxBoardLimit:   100,
		probe:           syncqueue.AlwaysOnline{},
		clock:           clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger.Info(ctx, "starting judging engine...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(
			repository.WithShardCount(s.shardCount),
		)
	}
	s.deduper = dedupe.New(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.aggregator = judging.New(s.store,
		judging.WithPanelSize(s.panelSize),
		judging.WithDeduper(s.deduper),
		judging.WithClock(s.clock),
	)
	s.queue = syncqueue.New(s,
		syncqueue.WithMaxRetries(s.syncMaxRetries),
		syncqueue.WithProbe(s.probe),
		syncqueue.WithJournal(s.store),
		syncqueue.WithClock(s.clock),
	)
	if err := s.queue.Restore(ctx); err != nil {
		s.logger.Warn(ctx, "offline journal restore failed", logger.Error(err))
	}

	s.sessions = session.NewManager(s.store, s.clock,
		session.WithAttemptDuration(s.attemptDuration),
		session.WithBreakDuration(s.breakDuration),
	)
	if err := s.sessions.Watch(ctx); err != nil {
		return fmt.Errorf("watch attempts: %w", err)
	}

	s.boards = leaderboard.New(s.store,
		leaderboard.WithPrimaryFormula(s.primaryFormula),
		leaderboard.WithClock(s.clock),
	)

	s.worker = flushworker.New(s.queue, s.probe,
		flushworker.WithInterval(s.flushInterval),
		flushworker.WithClock(s.clock),
	)
	workerCtx, cancel := context.WithCancel(context.Background())
	s.workerStop = cancel
	s.workerDone = make(chan struct{})
	go func() {
		defer close(s.workerDone)
		s.worker.Run(workerCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "judging engine started",
		logger.Int("panel_size", s.panelSize),
		logger.String("primary_formula", string(s.primaryFormula)),
		logger.Duration("attempt_timer", s.attemptDuration),
	)
	return nil
}

// Stop gracefully shuts down the service. Pending offline actions stay
// journaled for the next start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping judging engine...")

	if s.workerStop != nil {
		s.workerStop()
		<-s.workerDone
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.sessions != nil {
		s.sessions.Close()
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(ctx, "judging engine stopped")
}

// SubmitVote applies one judge vote. When the store is unreachable the
// vote is queued for replay and acknowledged immediately; the judge
// client never blocks on connectivity.
func (s *Service) SubmitVote(ctx context.Context, vote model.JudgeVote) (types.VoteAck, error) {
	if vote.IdempotencyKey == "" {
		return types.VoteAck{}, fmt.Errorf("%w: missing idempotency key", judging.ErrInvalidVote)
	}
	if vote.SubmittedAt.IsZero() {
		vote.SubmittedAt = s.clock.Now().UTC()
	}

	if !s.probe.Online(ctx) {
		return s.enqueueVote(ctx, vote)
	}

	out, err := s.aggregator.Submit(ctx, vote)
	switch {
	case err == nil:
		return voteAck(out), nil
	case errors.Is(err, judging.ErrAlreadyJudged):
		return voteAck(out), nil
	case errors.Is(err, repository.ErrUnavailable):
		metrics.RecordStoreUnavailable()
		return s.enqueueVote(ctx, vote)
	default:
		return types.VoteAck{}, err
	}
}

func (s *Service) enqueueVote(ctx context.Context, vote model.JudgeVote) (types.VoteAck, error) {
	payload, err := json.Marshal(vote)
	if err != nil {
		return types.VoteAck{}, fmt.Errorf("encode vote: %w", err)
	}
	s.queue.Enqueue(ctx, vote.IdempotencyKey, syncqueue.KindJudgeDecision, payload)
	// Replay should start the moment connectivity allows, not on the
	// next interval tick.
	s.worker.Wake()
	s.logger.Info(ctx, "vote queued for replay",
		logger.String("attempt_id", vote.AttemptID),
		logger.String("judge_id", vote.JudgeID),
	)
	return types.VoteAck{Accepted: true, Queued: true}, nil
}

// Apply replays one offline action against the store. Dedupe by
// idempotency key makes redelivery harmless, so already-applied and
// already-judged outcomes count as success.
func (s *Service) Apply(ctx context.Context, action syncqueue.Action) error {
	switch action.Kind {
	case syncqueue.KindJudgeDecision:
		var vote model.JudgeVote
		if err := json.Unmarshal(action.Payload, &vote); err != nil {
			return fmt.Errorf("decode queued vote: %w", err)
		}
		_, err := s.aggregator.Submit(ctx, vote)
		if err != nil && !errors.Is(err, judging.ErrAlreadyJudged) {
			return err
		}
		return nil
	case syncqueue.KindAttemptUpdate, syncqueue.KindAthleteUpdate, syncqueue.KindEventUpdate:
		var doc queuedDocument
		if err := json.Unmarshal(action.Payload, &doc); err != nil {
			return fmt.Errorf("decode queued update: %w", err)
		}
		_, err := s.store.Put(ctx, doc.Collection, doc.ID, doc.Data, repository.VersionAny)
		return err
	}
	return fmt.Errorf("unknown action kind %q", action.Kind)
}

// queuedDocument is the payload shape for generic entity updates queued
// while offline.
type queuedDocument struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
}

// CreateSetup stores an event setup and returns it with an id assigned.
func (s *Service) CreateSetup(ctx context.Context, setup model.EventSetup) (model.EventSetup, error) {
	if setup.EventID == "" || len(setup.Lifts) == 0 {
		return model.EventSetup{}, fmt.Errorf("setup requires an event id and at least one lift")
	}
	if setup.AttemptsPerLift <= 0 {
		setup.AttemptsPerLift = 3
	}
	if setup.JudgesPerPanel <= 0 {
		setup.JudgesPerPanel = s.panelSize
	}
	if setup.ID == "" {
		setup.ID = uuid.NewString()
	}
	if _, err := s.store.Put(ctx, repository.Setups, setup.ID, setup, repository.VersionAny); err != nil {
		return model.EventSetup{}, err
	}
	return setup, nil
}

// RegisterAthlete stores an athlete registration.
func (s *Service) RegisterAthlete(ctx context.Context, a model.Athlete) (model.Athlete, error) {
	if a.EventID == "" || a.Name == "" {
		return model.Athlete{}, fmt.Errorf("athlete requires an event id and a name")
	}
	if a.Bodyweight <= 0 {
		return model.Athlete{}, fmt.Errorf("athlete bodyweight must be positive")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = s.clock.Now().UTC()
	}
	if _, err := s.store.Put(ctx, repository.Athletes, a.ID, a, repository.VersionAny); err != nil {
		return model.Athlete{}, err
	}
	return a, nil
}

// CreateSession creates a live session in SETUP for an event.
func (s *Service) CreateSession(ctx context.Context, eventID, setupID string) (model.LiveSession, error) {
	return s.sessions.Create(ctx, eventID, setupID)
}

// StartSession transitions a session from SETUP to ACTIVE.
func (s *Service) StartSession(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.Start(ctx)
}

// PauseSession pauses an active session.
func (s *Service) PauseSession(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.Pause(ctx)
}

// ResumeSession resumes a paused session.
func (s *Service) ResumeSession(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.Resume(ctx)
}

// CompleteSession completes a session whose queue is empty.
func (s *Service) CompleteSession(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.Complete(ctx)
}

// AbortSession cancels a session from any non-terminal state.
func (s *Service) AbortSession(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.Abort(ctx)
}

// AdvanceQueue skips the current attempt without judging it.
func (s *Service) AdvanceQueue(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.Advance(ctx)
}

// NextLift moves a session to the next lift in its setup.
func (s *Service) NextLift(ctx context.Context, sessionID string) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	return m.NextLift(ctx)
}

// StartBreak begins a break countdown for a session.
func (s *Service) StartBreak(sessionID string, d time.Duration) error {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return err
	}
	m.StartBreak(d)
	return nil
}

// DeclareWeight creates or updates a pending attempt and reorders the
// session queue.
func (s *Service) DeclareWeight(ctx context.Context, sessionID, athleteID, lift string, number int, weight float64) (model.Attempt, error) {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return model.Attempt{}, err
	}
	return m.DeclareWeight(ctx, athleteID, lift, number, weight)
}

// CurrentAttempt returns the attempt at the head of a session's queue.
func (s *Service) CurrentAttempt(ctx context.Context, sessionID string) (model.Attempt, error) {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return model.Attempt{}, err
	}
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return model.Attempt{}, err
	}
	if snap.CurrentAttemptID == "" {
		return model.Attempt{}, fmt.Errorf("%w: session %s has no current attempt", repository.ErrNotFound, sessionID)
	}
	doc, err := s.store.Get(ctx, repository.Attempts, snap.CurrentAttemptID)
	if err != nil {
		return model.Attempt{}, err
	}
	attempt, ok := doc.Data.(model.Attempt)
	if !ok {
		return model.Attempt{}, fmt.Errorf("attempt %s has unexpected shape", snap.CurrentAttemptID)
	}
	return attempt, nil
}

// Queue returns a session's up-next order.
func (s *Service) Queue(ctx context.Context, sessionID string) ([]types.QueueEntry, error) {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return nil, err
	}
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.QueueEntry, len(snap.Queue))
	for i, item := range snap.Queue {
		out[i] = types.QueueEntry{
			AttemptID:       item.AttemptID,
			AthleteID:       item.AthleteID,
			Lift:            item.Lift,
			Number:          item.Number,
			RequestedWeight: item.RequestedWeight,
			Lot:             item.Lot,
		}
	}
	return out, nil
}

// TimerState returns a session's countdown snapshot.
func (s *Service) TimerState(sessionID string) (types.TimerView, error) {
	m, err := s.sessions.Machine(sessionID)
	if err != nil {
		return types.TimerView{}, err
	}
	t := m.TimerSnapshot()
	return types.TimerView{
		SessionID:    t.SessionID,
		Phase:        string(t.Phase),
		State:        string(t.State),
		DurationSec:  int(t.Duration / time.Second),
		RemainingSec: int(t.Remaining / time.Second),
	}, nil
}

// Leaderboard builds the standings for an event. An empty formula uses
// the configured default; limit is capped by the configured maximum.
func (s *Service) Leaderboard(ctx context.Context, eventID, categoryID, formulaName string, limit int) ([]types.LeaderboardRow, error) {
	var formula scoring.Formula
	if formulaName != "" {
		f, ok := scoring.ParseFormula(formulaName)
		if !ok {
			return nil, fmt.Errorf("unknown formula %q", formulaName)
		}
		formula = f
	}
	if limit <= 0 || limit > s.maxBoardLimit {
		limit = s.maxBoardLimit
	}
	return s.boards.Build(ctx, leaderboard.Query{
		EventID:    eventID,
		CategoryID: categoryID,
		Formula:    formula,
		Lifts:      s.requiredLifts(ctx, eventID),
		Limit:      limit,
	})
}

// requiredLifts resolves the lift set a total requires from the event's
// setup. No setup means no required set.
func (s *Service) requiredLifts(ctx context.Context, eventID string) []string {
	docs, err := s.store.List(ctx, repository.Setups, func(d repository.Document) bool {
		setup, ok := d.Data.(model.EventSetup)
		return ok && setup.EventID == eventID
	})
	if err != nil || len(docs) == 0 {
		return nil
	}
	setup := docs[0].Data.(model.EventSetup)
	return setup.Lifts
}

// CorrectAttempt voids a judged attempt and opens a replacement in the
// same slot. The original is never mutated beyond the void flag; an
// audit entry links the two.
func (s *Service) CorrectAttempt(ctx context.Context, attemptID, actorID, reason string) (model.Attempt, error) {
	if reason == "" || actorID == "" {
		return model.Attempt{}, fmt.Errorf("correction requires an actor and a reason")
	}
	doc, err := s.store.Get(ctx, repository.Attempts, attemptID)
	if err != nil {
		return model.Attempt{}, err
	}
	orig, ok := doc.Data.(model.Attempt)
	if !ok {
		return model.Attempt{}, fmt.Errorf("attempt %s has unexpected shape", attemptID)
	}
	if !orig.Judged() {
		return model.Attempt{}, fmt.Errorf("attempt %s is not judged; change the declaration instead", attemptID)
	}
	if orig.Voided {
		return model.Attempt{}, fmt.Errorf("attempt %s is already voided", attemptID)
	}

	now := s.clock.Now().UTC()
	replacement := model.Attempt{
		ID:              uuid.NewString(),
		EventID:         orig.EventID,
		AthleteID:       orig.AthleteID,
		CategoryID:      orig.CategoryID,
		Lift:            orig.Lift,
		Number:          orig.Number,
		RequestedWeight: orig.RequestedWeight,
		ActualWeight:    orig.ActualWeight,
		Result:          model.ResultPending,
		UpdatedAt:       now,
	}
	if _, err := s.store.Put(ctx, repository.Attempts, replacement.ID, replacement, repository.VersionNew); err != nil {
		return model.Attempt{}, err
	}

	orig.Voided = true
	orig.UpdatedAt = now
	if _, err := s.store.Put(ctx, repository.Attempts, orig.ID, orig, doc.Version); err != nil {
		return model.Attempt{}, err
	}

	entry := model.AuditEntry{
		ID:           uuid.NewString(),
		AttemptID:    orig.ID,
		SupersededBy: replacement.ID,
		Reason:       reason,
		ActorID:      actorID,
		CreatedAt:    now,
	}
	if _, err := s.store.Put(ctx, repository.Audit, entry.ID, entry, repository.VersionNew); err != nil {
		s.logger.Error(ctx, "audit write failed", logger.String("attempt_id", orig.ID), logger.Error(err))
	}
	s.logger.Info(ctx, "attempt corrected",
		logger.String("attempt_id", orig.ID),
		logger.String("superseded_by", replacement.ID),
		logger.String("actor_id", actorID),
	)
	return replacement, nil
}

// FlushOfflineQueue forces a replay pass and reports what it did.
func (s *Service) FlushOfflineQueue(ctx context.Context) (syncqueue.Report, error) {
	return s.queue.Flush(ctx)
}

// DeadLetters returns offline actions dropped after retry exhaustion.
func (s *Service) DeadLetters() []syncqueue.Action {
	return s.queue.DeadLetters()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"panelSize":      s.panelSize,
		"primaryFormula": string(s.primaryFormula),
	}
	if s.started {
		stats["syncQueueLength"] = s.queue.Len()
		stats["deadLetters"] = len(s.queue.DeadLetters())
		stats["dedupeSize"] = s.deduper.Size()
		metrics.UpdateSyncQueueSize(s.queue.Len())
	}
	return stats
}

func voteAck(out judging.Outcome) types.VoteAck {
	return types.VoteAck{
		Accepted:  true,
		Duplicate: out.Duplicate,
		Closed:    out.Closed || out.AlreadyClosed,
		Result:    string(out.Result),
	}
}
