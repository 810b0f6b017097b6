package syncqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/g97iulio1609/a1lifter/internal/adapters/mq/syncqueue"
	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// recordingApplier counts applications per action and can be told to
// fail specific IDs.
type recordingApplier struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]bool
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{fail: make(map[string]bool)}
}

func (a *recordingApplier) Apply(_ context.Context, action syncqueue.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail[action.ID] {
		return errors.New("store unreachable")
	}
	a.applied = append(a.applied, action.ID)
	return nil
}

func (a *recordingApplier) appliedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.applied))
	copy(out, a.applied)
	return out
}

type flakyProbe struct {
	mu     sync.Mutex
	online bool
}

func (p *flakyProbe) Online(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *flakyProbe) set(v bool) {
	p.mu.Lock()
	p.online = v
	p.mu.Unlock()
}

func TestQueue(t *testing.T) {
	Convey("Given an offline sync queue", t, func() {
		ctx := context.Background()
		applier := newRecordingApplier()

		Convey("When actions are enqueued", func() {
			q := syncqueue.New(applier)
			for i := 0; i < 5; i++ {
				q.Enqueue(ctx, fmt.Sprintf("act-%d", i), syncqueue.KindJudgeDecision, json.RawMessage(`{}`))
			}

			So(q.Len(), ShouldEqual, 5)

			Convey("Then enqueueing an already-queued id is a no-op", func() {
				q.Enqueue(ctx, "act-0", syncqueue.KindJudgeDecision, json.RawMessage(`{}`))
				So(q.Len(), ShouldEqual, 5)
			})

			Convey("And a flush replays them in enqueue order", func() {
				report, err := q.Flush(ctx)

				So(err, ShouldBeNil)
				So(report.Applied, ShouldEqual, 5)
				So(report.Retained, ShouldEqual, 0)
				So(q.Len(), ShouldEqual, 0)
				So(applier.appliedIDs(), ShouldResemble,
					[]string{"act-0", "act-1", "act-2", "act-3", "act-4"})
			})
		})

		Convey("When two flushes run concurrently", func() {
			q := syncqueue.New(applier)
			for i := 0; i < 5; i++ {
				q.Enqueue(ctx, fmt.Sprintf("act-%d", i), syncqueue.KindJudgeDecision, json.RawMessage(`{}`))
			}

			var wg sync.WaitGroup
			reports := make([]syncqueue.Report, 2)
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					reports[n], _ = q.Flush(ctx)
				}(i)
			}
			wg.Wait()

			Convey("Then every action applies exactly once", func() {
				So(len(applier.appliedIDs()), ShouldEqual, 5)
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When an action keeps failing", func() {
			applier.fail["act-1"] = true
			q := syncqueue.New(applier, syncqueue.WithMaxRetries(3))
			q.Enqueue(ctx, "act-0", syncqueue.KindJudgeDecision, json.RawMessage(`{}`))
			q.Enqueue(ctx, "act-1", syncqueue.KindJudgeDecision, json.RawMessage(`{}`))

			Convey("Then it is retained while its retry budget lasts", func() {
				for i := 0; i < 3; i++ {
					report, err := q.Flush(ctx)
					So(err, ShouldBeNil)
					So(report.DeadLettered, ShouldEqual, 0)
				}
				So(q.Len(), ShouldEqual, 1)

				Convey("And dead-lettered once the budget is exhausted", func() {
					report, err := q.Flush(ctx)

					So(err, ShouldEqual, syncqueue.ErrRetryExhausted)
					So(report.DeadLettered, ShouldEqual, 1)
					So(q.Len(), ShouldEqual, 0)

					letters := q.DeadLetters()
					So(len(letters), ShouldEqual, 1)
					So(letters[0].ID, ShouldEqual, "act-1")
				})
			})

			Convey("Then the healthy action still applies on the first pass", func() {
				_, _ = q.Flush(ctx)
				So(applier.appliedIDs(), ShouldContain, "act-0")
			})
		})

		Convey("When the probe reports offline", func() {
			probe := &flakyProbe{}
			q := syncqueue.New(applier, syncqueue.WithProbe(probe))
			q.Enqueue(ctx, "act-0", syncqueue.KindJudgeDecision, json.RawMessage(`{}`))

			Convey("Then a flush retains everything untouched", func() {
				report, err := q.Flush(ctx)

				So(err, ShouldBeNil)
				So(report.Applied, ShouldEqual, 0)
				So(report.Retained, ShouldEqual, 1)
				So(len(applier.appliedIDs()), ShouldEqual, 0)
			})

			Convey("And a flush after reconnect drains the queue", func() {
				probe.set(true)
				report, err := q.Flush(ctx)

				So(err, ShouldBeNil)
				So(report.Applied, ShouldEqual, 1)
				So(q.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a journal store backs the queue", func() {
			store := repository.NewMemoryStore()
			q := syncqueue.New(applier, syncqueue.WithJournal(store))
			q.Enqueue(ctx, "act-0", syncqueue.KindJudgeDecision, json.RawMessage(`{}`))
			q.Enqueue(ctx, "act-1", syncqueue.KindJudgeDecision, json.RawMessage(`{}`))

			Convey("Then a restarted queue restores the pending actions in order", func() {
				restarted := syncqueue.New(applier, syncqueue.WithJournal(store))
				So(restarted.Restore(ctx), ShouldBeNil)
				So(restarted.Len(), ShouldEqual, 2)

				report, err := restarted.Flush(ctx)
				So(err, ShouldBeNil)
				So(report.Applied, ShouldEqual, 2)
				So(applier.appliedIDs(), ShouldResemble, []string{"act-0", "act-1"})
			})

			Convey("Then applied actions leave the journal", func() {
				_, err := q.Flush(ctx)
				So(err, ShouldBeNil)

				docs, err := store.List(ctx, repository.SyncActions, nil)
				So(err, ShouldBeNil)
				So(len(docs), ShouldEqual, 0)
			})
		})

		Convey("When the queue is closed", func() {
			q := syncqueue.New(applier)
			So(q.Close(), ShouldBeNil)

			_, err := q.Flush(ctx)
			So(err, ShouldEqual, syncqueue.ErrClosed)
		})
	})
}
