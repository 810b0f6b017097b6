package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	"github.com/g97iulio1609/a1lifter/pkg/metrics"
)

// Manager owns the live machines, one per running event, and feeds them
// store change notifications.
type Manager struct {
	mu       sync.RWMutex
	store    repository.Store
	clock    clockwork.Clock
	machines map[string]*Machine // session id -> machine
	byEvent  map[string]string   // event id -> session id
	cancel   func()
	opts     []Option
	logger   logger.Logger
}

// NewManager creates a Manager; opts are applied to every Machine it
// creates.
func NewManager(store repository.Store, clock clockwork.Clock, opts ...Option) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		store:    store,
		clock:    clock,
		machines: make(map[string]*Machine),
		byEvent:  make(map[string]string),
		opts:     opts,
		logger:   logger.Get().Named("sessions"),
	}
}

// Watch subscribes to attempt changes so judged attempts advance their
// session queue. The store delivers at-least-once and possibly out of
// order; RecordJudged's no-op rule makes duplicates harmless.
func (g *Manager) Watch(ctx context.Context) error {
	cancel, err := g.store.Subscribe(ctx, repository.Attempts,
		func(c repository.Change) bool {
			a, ok := c.Data.(model.Attempt)
			return ok && a.Judged()
		},
		func(c repository.Change) {
			a := c.Data.(model.Attempt)
			m, ok := g.machineForEvent(a.EventID)
			if !ok {
				return
			}
			if err := m.RecordJudged(ctx, a.ID); err != nil {
				g.logger.Error(ctx, "queue advance failed",
					logger.String("attempt_id", a.ID),
					logger.Error(err),
				)
			}
		},
	)
	if err != nil {
		return fmt.Errorf("subscribe attempts: %w", err)
	}
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()
	return nil
}

// Create persists a new session in SETUP and binds a machine to it.
// One live session per event: creating a second one for the same event
// fails unless the first is terminal.
func (g *Manager) Create(ctx context.Context, eventID, setupID string) (model.LiveSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prevID, ok := g.byEvent[eventID]; ok {
		if prev, err := g.machines[prevID].Snapshot(ctx); err == nil && !prev.State.Terminal() {
			return model.LiveSession{}, fmt.Errorf("event %s already has live session %s", eventID, prevID)
		}
	}

	setupDoc, err := g.store.Get(ctx, repository.Setups, setupID)
	if err != nil {
		return model.LiveSession{}, fmt.Errorf("load setup: %w", err)
	}
	setup, ok := setupDoc.Data.(model.EventSetup)
	if !ok {
		return model.LiveSession{}, fmt.Errorf("setup %s has unexpected shape", setupID)
	}

	now := g.clock.Now().UTC()
	s := model.LiveSession{
		ID:        uuid.NewString(),
		EventID:   eventID,
		SetupID:   setupID,
		State:     model.SessionSetup,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := g.store.Put(ctx, repository.Sessions, s.ID, s, repository.VersionNew); err != nil {
		return model.LiveSession{}, fmt.Errorf("persist session: %w", err)
	}

	opts := append([]Option{WithClock(g.clock)}, g.opts...)
	g.machines[s.ID] = NewMachine(g.store, s, setup, opts...)
	g.byEvent[eventID] = s.ID
	metrics.UpdateActiveSessions(g.countActiveLocked(ctx))
	return s, nil
}

// Machine returns the machine bound to a session id.
func (g *Manager) Machine(sessionID string) (*Machine, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.machines[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return m, nil
}

func (g *Manager) machineForEvent(eventID string) (*Machine, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byEvent[eventID]
	if !ok {
		return nil, false
	}
	m, ok := g.machines[id]
	return m, ok
}

func (g *Manager) countActiveLocked(ctx context.Context) int {
	n := 0
	for _, m := range g.machines {
		if s, err := m.Snapshot(ctx); err == nil && !s.State.Terminal() {
			n++
		}
	}
	return n
}

// Close cancels the store subscription.
func (g *Manager) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}
