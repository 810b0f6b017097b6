// Package session owns "what is happening now" for a running event: the
// live session state, the ordered up-next queue, and the attempt timer.
//
// All mutations of one session serialize on its Machine. Duplicate or
// out-of-order change notifications are absorbed by the idempotent
// no-op rule: judging an attempt that is no longer queued does nothing.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/timer"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	"github.com/g97iulio1609/a1lifter/pkg/metrics"
)

// Default session configuration constants.
const (
	defaultAttemptDuration = 60 * time.Second
	defaultBreakDuration   = 10 * time.Minute
	defaultChangeDuration  = 5 * time.Minute
)

// Machine drives one live session.
type Machine struct {
	mu    sync.Mutex
	store repository.Store
	clock clockwork.Clock
	timer *timer.Engine

	sessionID string
	eventID   string
	setup     model.EventSetup

	attemptDur time.Duration
	breakDur   time.Duration
	changeDur  time.Duration

	lastTimerState model.TimerState

	logger logger.Logger
}

// Option applies a configuration option to the Machine.
type Option func(*Machine)

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithAttemptDuration sets the per-attempt countdown.
func WithAttemptDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.attemptDur = d
		}
	}
}

// WithBreakDuration sets the break countdown.
func WithBreakDuration(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.breakDur = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMachine binds a Machine to an existing session document.
func NewMachine(store repository.Store, session model.LiveSession, setup model.EventSetup, opts ...Option) *Machine {
	m := &Machine{
		store:      store,
		clock:      clockwork.NewRealClock(),
		sessionID:  session.ID,
		eventID:    session.EventID,
		setup:      setup,
		attemptDur: defaultAttemptDuration,
		breakDur:   defaultBreakDuration,
		changeDur:  defaultChangeDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.timer = timer.New(session.ID, timer.WithClock(m.clock))
	if m.logger == nil {
		m.logger = logger.Get().Named("session")
	}
	return m
}

// SessionID returns the bound session id.
func (m *Machine) SessionID() string { return m.sessionID }

// EventID returns the bound event id.
func (m *Machine) EventID() string { return m.eventID }

// Start transitions SETUP to ACTIVE, builds the initial queue for the
// first lift and starts the attempt timer.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State != model.SessionSetup {
		return fmt.Errorf("%w: %s -> ACTIVE", ErrInvalidTransition, s.State)
	}
	s.State = model.SessionActive
	if len(m.setup.Lifts) > 0 {
		s.CurrentLift = m.setup.Lifts[0]
	}
	if err := m.rebuild(ctx, &s); err != nil {
		return err
	}
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	if s.CurrentAttemptID != "" {
		m.startAttemptTimer()
	}
	m.logger.Info(ctx, "session started",
		logger.String("session_id", s.ID),
		logger.String("lift", s.CurrentLift),
		logger.Int("queue", len(s.Queue)),
	)
	return nil
}

// Pause transitions ACTIVE to PAUSED and pauses the timer.
func (m *Machine) Pause(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State != model.SessionActive {
		return fmt.Errorf("%w: %s -> PAUSED", ErrInvalidTransition, s.State)
	}
	s.State = model.SessionPaused
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	m.timer.Pause()
	return nil
}

// Resume transitions PAUSED back to ACTIVE and resumes the timer.
func (m *Machine) Resume(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State != model.SessionPaused {
		return fmt.Errorf("%w: %s -> ACTIVE", ErrInvalidTransition, s.State)
	}
	s.State = model.SessionActive
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	m.timer.Resume()
	return nil
}

// RecordJudged advances the queue past a closed attempt. Invoking it
// for an attempt not in the current queue — a stale or duplicate
// notification — is a no-op, not an error.
func (m *Machine) RecordJudged(ctx context.Context, attemptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State.Terminal() {
		return nil
	}
	idx := -1
	for i, item := range s.Queue {
		if item.AttemptID == attemptID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.logger.Debug(ctx, "stale queue reference ignored",
			logger.String("session_id", s.ID),
			logger.String("attempt_id", attemptID),
		)
		return nil
	}
	s.Queue = append(s.Queue[:idx], s.Queue[idx+1:]...)
	s.CurrentAttemptID = ""
	if len(s.Queue) > 0 {
		s.CurrentAttemptID = s.Queue[0].AttemptID
	}
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	if s.State == model.SessionActive && s.CurrentAttemptID != "" {
		m.startAttemptTimer()
	} else {
		m.timer.Stop()
	}
	return nil
}

// Advance is the manual organizer override: it skips the current queue
// head without judging it. The skipped attempt stays pending and
// reappears on the next full rebuild.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State.Terminal() || len(s.Queue) == 0 {
		return nil
	}
	s.Queue = s.Queue[1:]
	s.CurrentAttemptID = ""
	if len(s.Queue) > 0 {
		s.CurrentAttemptID = s.Queue[0].AttemptID
	}
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	if s.State == model.SessionActive && s.CurrentAttemptID != "" {
		m.startAttemptTimer()
	} else {
		m.timer.Stop()
	}
	return nil
}

// DeclareWeight creates or updates a pending attempt for an athlete and
// rebuilds the queue from scratch. Closed attempts are immutable.
func (m *Machine) DeclareWeight(ctx context.Context, athleteID, lift string, number int, weight float64) (model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if number < 1 || (m.setup.AttemptsPerLift > 0 && number > m.setup.AttemptsPerLift) {
		return model.Attempt{}, fmt.Errorf("attempt number %d out of range", number)
	}

	attempt, err := m.upsertAttempt(ctx, athleteID, lift, number, weight)
	if err != nil {
		return model.Attempt{}, err
	}

	doc, s, err := m.load(ctx)
	if err != nil {
		return model.Attempt{}, err
	}
	if !s.State.Terminal() {
		hadCurrent := s.CurrentAttemptID != ""
		if err := m.rebuild(ctx, &s); err != nil {
			return model.Attempt{}, err
		}
		if err := m.persist(ctx, s, doc.Version); err != nil {
			return model.Attempt{}, err
		}
		// An empty ACTIVE session gets its countdown going as soon as
		// the declaration gives it a first queue head.
		if s.State == model.SessionActive && !hadCurrent && s.CurrentAttemptID != "" {
			m.startAttemptTimer()
		}
	}
	return attempt, nil
}

// NextLift moves the session to the next lift in the setup, starts a
// discipline-change countdown and rebuilds the queue.
func (m *Machine) NextLift(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State.Terminal() {
		return fmt.Errorf("%w: session %s", ErrInvalidTransition, s.State)
	}
	next := ""
	for i, lift := range m.setup.Lifts {
		if lift == s.CurrentLift && i+1 < len(m.setup.Lifts) {
			next = m.setup.Lifts[i+1]
			break
		}
	}
	if next == "" {
		return ErrNoMoreLifts
	}
	s.CurrentLift = next
	if err := m.rebuild(ctx, &s); err != nil {
		return err
	}
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	m.timer.Start(model.PhaseDisciplineChange, m.changeDur)
	metrics.RecordTimerStart(string(model.PhaseDisciplineChange))
	return nil
}

// StartBreak begins a break countdown without changing session state.
func (m *Machine) StartBreak(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		d = m.breakDur
	}
	m.timer.Start(model.PhaseBreak, d)
	metrics.RecordTimerStart(string(model.PhaseBreak))
}

// Complete transitions to COMPLETED. Only allowed once the queue is
// empty; COMPLETED is terminal.
func (m *Machine) Complete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State != model.SessionActive && s.State != model.SessionPaused {
		return fmt.Errorf("%w: %s -> COMPLETED", ErrInvalidTransition, s.State)
	}
	if len(s.Queue) > 0 {
		return ErrQueueNotEmpty
	}
	s.State = model.SessionCompleted
	s.CurrentAttemptID = ""
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	m.timer.Stop()
	m.logger.Info(ctx, "session completed", logger.String("session_id", s.ID))
	return nil
}

// Abort cancels the session from any non-terminal state. In-flight
// offline actions are deliberately left alone so judge input still
// flushes later.
func (m *Machine) Abort(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, s, err := m.load(ctx)
	if err != nil {
		return err
	}
	if s.State.Terminal() {
		return fmt.Errorf("%w: %s -> ABORTED", ErrInvalidTransition, s.State)
	}
	s.State = model.SessionAborted
	s.CurrentAttemptID = ""
	if err := m.persist(ctx, s, doc.Version); err != nil {
		return err
	}
	m.timer.Stop()
	m.logger.Warn(ctx, "session aborted", logger.String("session_id", s.ID))
	return nil
}

// Snapshot returns the current session document.
func (m *Machine) Snapshot(ctx context.Context) (model.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, s, err := m.load(ctx)
	return s, err
}

// TimerSnapshot returns the countdown view, recording the first
// observation of an expiry.
func (m *Machine) TimerSnapshot() model.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.timer.Snapshot()
	if t.State == model.TimerExpired && m.lastTimerState != model.TimerExpired {
		metrics.RecordTimerExpiry()
	}
	m.lastTimerState = t.State
	return t
}

// startAttemptTimer must be called with m.mu held.
func (m *Machine) startAttemptTimer() {
	m.timer.Start(model.PhaseAttempt, m.attemptDur)
	m.lastTimerState = model.TimerRunning
	metrics.RecordTimerStart(string(model.PhaseAttempt))
}

// rebuild recomputes the whole queue from pending attempts. Full
// recomputation avoids the cumulative drift an incremental patch would
// accumulate across weight changes.
func (m *Machine) rebuild(ctx context.Context, s *model.LiveSession) error {
	docs, err := m.store.List(ctx, repository.Attempts, func(d repository.Document) bool {
		a, ok := d.Data.(model.Attempt)
		return ok && a.EventID == m.eventID && a.Lift == s.CurrentLift && !a.Judged() && !a.Voided
	})
	if err != nil {
		return fmt.Errorf("list pending attempts: %w", err)
	}

	athletes, err := m.athleteIndex(ctx)
	if err != nil {
		return err
	}

	items := make([]model.QueueItem, 0, len(docs))
	for _, d := range docs {
		a := d.Data.(model.Attempt)
		ath := athletes[a.AthleteID]
		items = append(items, model.QueueItem{
			AttemptID:       a.ID,
			AthleteID:       a.AthleteID,
			Lift:            a.Lift,
			Number:          a.Number,
			RequestedWeight: a.RequestedWeight,
			Lot:             ath.Lot,
			RegisteredAt:    ath.RegisteredAt,
		})
	}
	orderQueue(items)
	s.Queue = items
	s.CurrentAttemptID = ""
	if len(items) > 0 {
		s.CurrentAttemptID = items[0].AttemptID
	}
	metrics.RecordQueueRebuild()
	return nil
}

func (m *Machine) athleteIndex(ctx context.Context) (map[string]model.Athlete, error) {
	docs, err := m.store.List(ctx, repository.Athletes, func(d repository.Document) bool {
		a, ok := d.Data.(model.Athlete)
		return ok && a.EventID == m.eventID
	})
	if err != nil {
		return nil, fmt.Errorf("list athletes: %w", err)
	}
	idx := make(map[string]model.Athlete, len(docs))
	for _, d := range docs {
		a := d.Data.(model.Athlete)
		idx[a.ID] = a
	}
	return idx, nil
}

// upsertAttempt enforces the one-attempt-per-slot invariant and the
// immutability of judged attempts.
func (m *Machine) upsertAttempt(ctx context.Context, athleteID, lift string, number int, weight float64) (model.Attempt, error) {
	existing, err := m.store.List(ctx, repository.Attempts, func(d repository.Document) bool {
		a, ok := d.Data.(model.Attempt)
		return ok && a.EventID == m.eventID && a.AthleteID == athleteID && a.Lift == lift && a.Number == number
	})
	if err != nil {
		return model.Attempt{}, err
	}

	now := m.clock.Now().UTC()
	if len(existing) > 0 {
		doc := existing[0]
		a := doc.Data.(model.Attempt)
		if a.Judged() {
			return model.Attempt{}, fmt.Errorf("%w: %s", ErrAttemptClosed, a.ID)
		}
		a.RequestedWeight = weight
		a.UpdatedAt = now
		if _, err := m.store.Put(ctx, repository.Attempts, a.ID, a, doc.Version); err != nil {
			return model.Attempt{}, err
		}
		return a, nil
	}

	athletes, err := m.athleteIndex(ctx)
	if err != nil {
		return model.Attempt{}, err
	}
	ath, ok := athletes[athleteID]
	if !ok {
		return model.Attempt{}, fmt.Errorf("athlete %s not registered: %w", athleteID, repository.ErrNotFound)
	}

	a := model.Attempt{
		ID:              uuid.NewString(),
		EventID:         m.eventID,
		AthleteID:       athleteID,
		CategoryID:      ath.CategoryID,
		Lift:            lift,
		Number:          number,
		RequestedWeight: weight,
		Result:          model.ResultPending,
		UpdatedAt:       now,
	}
	if _, err := m.store.Put(ctx, repository.Attempts, a.ID, a, repository.VersionNew); err != nil {
		return model.Attempt{}, err
	}
	return a, nil
}

func (m *Machine) load(ctx context.Context) (repository.Document, model.LiveSession, error) {
	doc, err := m.store.Get(ctx, repository.Sessions, m.sessionID)
	if err != nil {
		return repository.Document{}, model.LiveSession{}, fmt.Errorf("load session: %w", err)
	}
	s, ok := doc.Data.(model.LiveSession)
	if !ok {
		return repository.Document{}, model.LiveSession{}, fmt.Errorf("session %s has unexpected shape", m.sessionID)
	}
	return doc, s, nil
}

func (m *Machine) persist(ctx context.Context, s model.LiveSession, version int64) error {
	s.UpdatedAt = m.clock.Now().UTC()
	if _, err := m.store.Put(ctx, repository.Sessions, s.ID, s, version); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
