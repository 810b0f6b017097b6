package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/session"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fixture struct {
	ctx     context.Context
	store   *repository.MemoryStore
	clock   *clockwork.FakeClock
	machine *session.Machine
	session model.LiveSession
}

func newFixture() *fixture {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClock()

	setup := model.EventSetup{
		ID:              "setup-1",
		EventID:         "event-1",
		Lifts:           []string{"squat", "bench", "deadlift"},
		AttemptsPerLift: 3,
		JudgesPerPanel:  3,
	}
	if _, err := store.Put(ctx, repository.Setups, setup.ID, setup, repository.VersionNew); err != nil {
		panic(err)
	}

	s := model.LiveSession{
		ID:      "sess-1",
		EventID: "event-1",
		SetupID: setup.ID,
		State:   model.SessionSetup,
	}
	if _, err := store.Put(ctx, repository.Sessions, s.ID, s, repository.VersionNew); err != nil {
		panic(err)
	}

	m := session.NewMachine(store, s, setup,
		session.WithClock(clock),
		session.WithAttemptDuration(60*time.Second),
	)
	return &fixture{ctx: ctx, store: store, clock: clock, machine: m, session: s}
}

func (f *fixture) addAthlete(id string, lot int) {
	a := model.Athlete{
		ID:           id,
		EventID:      "event-1",
		CategoryID:   "cat-1",
		Name:         id,
		Gender:       model.GenderMale,
		Bodyweight:   93,
		Lot:          lot,
		RegisteredAt: f.clock.Now().UTC(),
	}
	if _, err := f.store.Put(f.ctx, repository.Athletes, a.ID, a, repository.VersionNew); err != nil {
		panic(err)
	}
}

func (f *fixture) addAttempt(athleteID, lift string, number int, weight float64) string {
	a := model.Attempt{
		ID:              uuid.NewString(),
		EventID:         "event-1",
		AthleteID:       athleteID,
		Lift:            lift,
		Number:          number,
		RequestedWeight: weight,
		Result:          model.ResultPending,
	}
	if _, err := f.store.Put(f.ctx, repository.Attempts, a.ID, a, repository.VersionNew); err != nil {
		panic(err)
	}
	return a.ID
}

func (f *fixture) judge(attemptID string) {
	doc, err := f.store.Get(f.ctx, repository.Attempts, attemptID)
	if err != nil {
		panic(err)
	}
	a := doc.Data.(model.Attempt)
	now := f.clock.Now().UTC()
	a.Result = model.ResultGood
	a.JudgedAt = &now
	if _, err := f.store.Put(f.ctx, repository.Attempts, a.ID, a, doc.Version); err != nil {
		panic(err)
	}
}

func TestMachineLifecycle(t *testing.T) {
	Convey("Given a session in SETUP", t, func() {
		f := newFixture()
		f.addAthlete("ath-1", 1)
		f.addAthlete("ath-2", 2)
		f.addAthlete("ath-3", 3)

		Convey("When the session starts", func() {
			a1 := f.addAttempt("ath-1", "squat", 1, 100)
			So(f.machine.Start(f.ctx), ShouldBeNil)

			snap, err := f.machine.Snapshot(f.ctx)
			So(err, ShouldBeNil)

			Convey("Then it is ACTIVE on the first lift with a built queue", func() {
				So(snap.State, ShouldEqual, model.SessionActive)
				So(snap.CurrentLift, ShouldEqual, "squat")
				So(snap.CurrentAttemptID, ShouldEqual, a1)
			})

			Convey("Then the attempt timer is running", func() {
				t := f.machine.TimerSnapshot()
				So(t.State, ShouldEqual, model.TimerRunning)
				So(t.Phase, ShouldEqual, model.PhaseAttempt)
				So(t.Remaining, ShouldEqual, 60*time.Second)
			})

			Convey("And starting again is an invalid transition", func() {
				So(f.machine.Start(f.ctx), ShouldNotBeNil)
			})
		})

		Convey("When pausing and resuming", func() {
			So(f.machine.Start(f.ctx), ShouldBeNil)
			So(f.machine.Pause(f.ctx), ShouldBeNil)

			snap, _ := f.machine.Snapshot(f.ctx)
			So(snap.State, ShouldEqual, model.SessionPaused)

			Convey("Then pausing twice fails but resume restores ACTIVE", func() {
				So(f.machine.Pause(f.ctx), ShouldNotBeNil)
				So(f.machine.Resume(f.ctx), ShouldBeNil)

				snap, _ := f.machine.Snapshot(f.ctx)
				So(snap.State, ShouldEqual, model.SessionActive)
			})
		})

		Convey("When attempts are queued at mixed weights and lots", func() {
			// ath-3 at 120kg, ath-1 and ath-2 tied at 100kg
			heavy := f.addAttempt("ath-3", "squat", 1, 120)
			second := f.addAttempt("ath-2", "squat", 1, 100)
			first := f.addAttempt("ath-1", "squat", 1, 100)
			So(f.machine.Start(f.ctx), ShouldBeNil)

			snap, _ := f.machine.Snapshot(f.ctx)

			Convey("Then order is weight ascending with lot breaking the tie", func() {
				So(len(snap.Queue), ShouldEqual, 3)
				So(snap.Queue[0].AttemptID, ShouldEqual, first)
				So(snap.Queue[1].AttemptID, ShouldEqual, second)
				So(snap.Queue[2].AttemptID, ShouldEqual, heavy)
				So(snap.CurrentAttemptID, ShouldEqual, first)
			})

			Convey("And judging the current attempt advances the queue", func() {
				f.judge(first)
				So(f.machine.RecordJudged(f.ctx, first), ShouldBeNil)

				snap, _ := f.machine.Snapshot(f.ctx)
				So(len(snap.Queue), ShouldEqual, 2)
				So(snap.CurrentAttemptID, ShouldEqual, second)

				Convey("And a duplicate notification is a no-op", func() {
					So(f.machine.RecordJudged(f.ctx, first), ShouldBeNil)

					again, _ := f.machine.Snapshot(f.ctx)
					So(again.Queue, ShouldResemble, snap.Queue)
				})
			})

			Convey("And an organizer advance skips without judging", func() {
				So(f.machine.Advance(f.ctx), ShouldBeNil)

				snap, _ := f.machine.Snapshot(f.ctx)
				So(snap.CurrentAttemptID, ShouldEqual, second)

				Convey("Then the skipped pending attempt reappears on rebuild", func() {
					_, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 2, 105)
					So(err, ShouldBeNil)

					snap, _ := f.machine.Snapshot(f.ctx)
					ids := make([]string, 0, len(snap.Queue))
					for _, item := range snap.Queue {
						ids = append(ids, item.AttemptID)
					}
					So(ids, ShouldContain, first)
				})
			})
		})

		Convey("When a weight is declared through the machine", func() {
			So(f.machine.Start(f.ctx), ShouldBeNil)
			attempt, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 1, 150)

			So(err, ShouldBeNil)
			So(attempt.RequestedWeight, ShouldEqual, 150)

			Convey("Then the first queue head starts the attempt countdown", func() {
				t := f.machine.TimerSnapshot()
				So(t.State, ShouldEqual, model.TimerRunning)
				So(t.Phase, ShouldEqual, model.PhaseAttempt)
				So(t.Remaining, ShouldEqual, 60*time.Second)
			})

			Convey("Then a later declaration leaves the running countdown alone", func() {
				f.clock.Advance(10 * time.Second)
				_, err := f.machine.DeclareWeight(f.ctx, "ath-2", "squat", 1, 170)
				So(err, ShouldBeNil)

				t := f.machine.TimerSnapshot()
				So(t.State, ShouldEqual, model.TimerRunning)
				So(t.Remaining, ShouldEqual, 50*time.Second)
			})

			Convey("Then redeclaring the same slot updates it in place", func() {
				updated, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 1, 155)
				So(err, ShouldBeNil)
				So(updated.ID, ShouldEqual, attempt.ID)
				So(updated.RequestedWeight, ShouldEqual, 155)

				snap, _ := f.machine.Snapshot(f.ctx)
				So(len(snap.Queue), ShouldEqual, 1)
			})

			Convey("Then a judged attempt refuses a new declaration", func() {
				f.judge(attempt.ID)
				_, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 1, 160)
				So(err, ShouldNotBeNil)
			})

			Convey("Then an out-of-range attempt number is rejected", func() {
				_, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 4, 150)
				So(err, ShouldNotBeNil)
			})

			Convey("Then an unregistered athlete is rejected", func() {
				_, err := f.machine.DeclareWeight(f.ctx, "ghost", "squat", 1, 150)
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When moving to the next lift", func() {
			So(f.machine.Start(f.ctx), ShouldBeNil)
			f.addAttempt("ath-1", "bench", 1, 90)
			So(f.machine.NextLift(f.ctx), ShouldBeNil)

			snap, _ := f.machine.Snapshot(f.ctx)

			Convey("Then the queue holds the new lift's attempts", func() {
				So(snap.CurrentLift, ShouldEqual, "bench")
				So(len(snap.Queue), ShouldEqual, 1)
			})

			Convey("Then a discipline-change countdown is running", func() {
				t := f.machine.TimerSnapshot()
				So(t.Phase, ShouldEqual, model.PhaseDisciplineChange)
				So(t.State, ShouldEqual, model.TimerRunning)
			})

			Convey("And the last lift refuses another advance", func() {
				So(f.machine.NextLift(f.ctx), ShouldBeNil)
				So(f.machine.NextLift(f.ctx), ShouldEqual, session.ErrNoMoreLifts)
			})
		})

		Convey("When completing a session", func() {
			So(f.machine.Start(f.ctx), ShouldBeNil)

			Convey("Then an empty queue completes cleanly", func() {
				So(f.machine.Complete(f.ctx), ShouldBeNil)

				snap, _ := f.machine.Snapshot(f.ctx)
				So(snap.State, ShouldEqual, model.SessionCompleted)

				Convey("And terminal states refuse further transitions", func() {
					So(f.machine.Pause(f.ctx), ShouldNotBeNil)
					So(f.machine.Abort(f.ctx), ShouldNotBeNil)
				})
			})

			Convey("Then a non-empty queue refuses completion", func() {
				_, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 1, 100)
				So(err, ShouldBeNil)
				So(f.machine.Complete(f.ctx), ShouldEqual, session.ErrQueueNotEmpty)
			})
		})

		Convey("When aborting a session", func() {
			So(f.machine.Start(f.ctx), ShouldBeNil)
			_, err := f.machine.DeclareWeight(f.ctx, "ath-1", "squat", 1, 100)
			So(err, ShouldBeNil)

			So(f.machine.Abort(f.ctx), ShouldBeNil)

			snap, _ := f.machine.Snapshot(f.ctx)
			So(snap.State, ShouldEqual, model.SessionAborted)
		})

		Convey("When the attempt timer expires", func() {
			f.addAttempt("ath-1", "squat", 1, 100)
			So(f.machine.Start(f.ctx), ShouldBeNil)
			f.clock.Advance(61 * time.Second)

			t := f.machine.TimerSnapshot()

			Convey("Then the expiry is observable but the attempt stays pending", func() {
				So(t.State, ShouldEqual, model.TimerExpired)

				snap, _ := f.machine.Snapshot(f.ctx)
				So(snap.CurrentAttemptID, ShouldNotBeEmpty)
			})
		})
	})
}

func TestManager(t *testing.T) {
	Convey("Given a session manager", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		clock := clockwork.NewFakeClock()
		mgr := session.NewManager(store, clock)
		defer mgr.Close()

		setup := model.EventSetup{
			ID:              "setup-1",
			EventID:         "event-1",
			Lifts:           []string{"squat"},
			AttemptsPerLift: 3,
		}
		_, err := store.Put(ctx, repository.Setups, setup.ID, setup, repository.VersionNew)
		So(err, ShouldBeNil)

		Convey("When creating a session", func() {
			s, err := mgr.Create(ctx, "event-1", "setup-1")

			So(err, ShouldBeNil)
			So(s.State, ShouldEqual, model.SessionSetup)

			Convey("Then the machine is reachable by session id", func() {
				m, err := mgr.Machine(s.ID)
				So(err, ShouldBeNil)
				So(m.SessionID(), ShouldEqual, s.ID)
			})

			Convey("Then a second live session for the same event is refused", func() {
				_, err := mgr.Create(ctx, "event-1", "setup-1")
				So(err, ShouldNotBeNil)
			})

			Convey("Then an aborted session frees the event slot", func() {
				m, _ := mgr.Machine(s.ID)
				So(m.Start(ctx), ShouldBeNil)
				So(m.Abort(ctx), ShouldBeNil)

				_, err := mgr.Create(ctx, "event-1", "setup-1")
				So(err, ShouldBeNil)
			})
		})

		Convey("When creating with an unknown setup", func() {
			_, err := mgr.Create(ctx, "event-1", "ghost")
			So(err, ShouldNotBeNil)
		})

		Convey("When looking up an unknown session", func() {
			_, err := mgr.Machine("ghost")
			So(err, ShouldNotBeNil)
		})
	})
}
