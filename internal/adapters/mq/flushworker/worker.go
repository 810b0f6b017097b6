// Package flushworker drives offline queue replay: a periodic tick, a
// reconnect edge trigger, and an on-demand wake all funnel into Flush.
package flushworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/mq/syncqueue"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
)

// Default worker configuration constants.
const (
	defaultFlushInterval = 15 * time.Second
	shutdownTimeout      = 5 * time.Second
)

// Flusher is the queue surface the worker drives.
type Flusher interface {
	Flush(ctx context.Context) (syncqueue.Report, error)
	Len() int
}

// Worker replays the offline queue until stopped.
type Worker struct {
	queue    Flusher
	probe    syncqueue.Probe
	interval time.Duration
	clock    clockwork.Clock
	logger   logger.Logger

	wake     chan struct{}
	shutdown chan struct{}
	done     chan struct{}
}

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithInterval sets the periodic flush interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(w *Worker) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Worker for the given queue and connectivity probe.
func New(queue Flusher, probe syncqueue.Probe, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		probe:    probe,
		interval: defaultFlushInterval,
		clock:    clockwork.NewRealClock(),
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("flushworker")
	}
	return w
}

// Wake requests an immediate flush pass.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run loops until ctx is canceled or Shutdown is called. A transition
// from offline to online triggers an immediate flush so queued judge
// actions land as soon as connectivity returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	wasOnline := w.probe.Online(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case <-w.wake:
		case <-ticker.Chan():
		}

		online := w.probe.Online(ctx)
		if online && !wasOnline {
			w.logger.Info(ctx, "connectivity restored; flushing offline queue",
				logger.Int("pending", w.queue.Len()),
			)
		}
		wasOnline = online
		if !online || w.queue.Len() == 0 {
			continue
		}

		report, err := w.queue.Flush(ctx)
		if err != nil && !errors.Is(err, syncqueue.ErrRetryExhausted) {
			w.logger.Error(ctx, "flush pass failed", logger.Error(err))
			continue
		}
		if report.Applied > 0 || report.DeadLettered > 0 {
			w.logger.Info(ctx, "flush pass finished",
				logger.Int("applied", report.Applied),
				logger.Int("retained", report.Retained),
				logger.Int("dead_lettered", report.DeadLettered),
			)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	case <-w.clock.After(shutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}
}
