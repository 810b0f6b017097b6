// Package timer implements the attempt countdown engine.
//
// The engine never ticks. Remaining time is recomputed from
// duration - (now - startTime) whenever asked, so a missed callback or a
// process restart cannot drift the clock. Pause caches the remaining
// duration; resume synthesizes a new start time so the elapsed-based
// computation continues seamlessly.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
)

// snapshot is the immutable state a reading goroutine computes from.
// Readers never lock: they load the current snapshot atomically and
// derive remaining time as a pure function of its fields plus the clock.
type snapshot struct {
	phase     model.TimerPhase
	duration  time.Duration
	startedAt time.Time
	remaining time.Duration // cached at pause
	running   bool
	paused    bool
	stopped   bool
}

// Engine is a per-session countdown with pause/resume/reset.
type Engine struct {
	sessionID string
	clock     clockwork.Clock

	// mu serializes writers only; readers go through snap.
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an idle engine for a session.
func New(sessionID string, opts ...Option) *Engine {
	e := &Engine{
		sessionID: sessionID,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.snap.Store(&snapshot{})
	return e
}

// Start begins a fresh countdown, replacing any previous one.
func (e *Engine) Start(phase model.TimerPhase, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap.Store(&snapshot{
		phase:     phase,
		duration:  duration,
		startedAt: e.clock.Now(),
		running:   true,
	})
}

// Pause caches the remaining time and halts the countdown. Pausing an
// engine that is not running is a no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.snap.Load()
	if !s.running || s.paused {
		return
	}
	rem := remainingOf(s, e.clock.Now())
	next := *s
	next.paused = true
	next.remaining = rem
	e.snap.Store(&next)
}

// Resume recomputes a synthetic start time from the cached remaining
// duration and continues the countdown.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.snap.Load()
	if !s.running || !s.paused {
		return
	}
	next := *s
	next.paused = false
	next.startedAt = e.clock.Now().Add(next.remaining - next.duration)
	next.remaining = 0
	e.snap.Store(&next)
}

// Stop halts the countdown without clearing phase or duration.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.snap.Load()
	if !s.running {
		return
	}
	next := *s
	next.running = false
	next.paused = false
	next.stopped = true
	e.snap.Store(&next)
}

// Reset returns the engine to idle.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap.Store(&snapshot{})
}

// Remaining reports the time left. It is never negative: once the
// deadline passes every caller deterministically observes zero, with no
// callback race involved.
func (e *Engine) Remaining() time.Duration {
	s := e.snap.Load()
	return remainingOf(s, e.clock.Now())
}

// State derives the reported state from the current snapshot.
func (e *Engine) State() model.TimerState {
	s := e.snap.Load()
	switch {
	case s.stopped:
		return model.TimerStopped
	case !s.running:
		return model.TimerIdle
	case s.paused:
		return model.TimerPaused
	case remainingOf(s, e.clock.Now()) <= 0:
		return model.TimerExpired
	default:
		return model.TimerRunning
	}
}

// Snapshot returns the full timer view for API consumers.
func (e *Engine) Snapshot() model.Timer {
	s := e.snap.Load()
	t := model.Timer{
		SessionID: e.sessionID,
		Phase:     s.phase,
		State:     e.State(),
		Duration:  s.duration,
		Remaining: remainingOf(s, e.clock.Now()),
	}
	if s.running {
		started := s.startedAt
		t.StartedAt = &started
	}
	return t
}

// remainingOf is the pure remaining-time function over a snapshot.
func remainingOf(s *snapshot, now time.Time) time.Duration {
	switch {
	case s.stopped, !s.running:
		return 0
	case s.paused:
		return s.remaining
	}
	rem := s.duration - now.Sub(s.startedAt)
	if rem < 0 {
		return 0
	}
	return rem
}
