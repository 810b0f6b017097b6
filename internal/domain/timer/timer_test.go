package timer_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/timer"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEngine(t *testing.T) {
	Convey("Given a timer engine on a fake clock", t, func() {
		clock := clockwork.NewFakeClock()
		e := timer.New("session-1", timer.WithClock(clock))

		Convey("When the engine is idle", func() {
			So(e.State(), ShouldEqual, model.TimerIdle)
			So(e.Remaining(), ShouldEqual, 0)
		})

		Convey("When a 60s attempt countdown starts", func() {
			e.Start(model.PhaseAttempt, 60*time.Second)

			So(e.State(), ShouldEqual, model.TimerRunning)
			So(e.Remaining(), ShouldEqual, 60*time.Second)

			Convey("And 10 seconds pass", func() {
				clock.Advance(10 * time.Second)

				So(e.Remaining(), ShouldEqual, 50*time.Second)

				Convey("And the countdown is paused", func() {
					e.Pause()

					So(e.State(), ShouldEqual, model.TimerPaused)
					So(e.Remaining(), ShouldEqual, 50*time.Second)

					Convey("Then time passing while paused changes nothing", func() {
						clock.Advance(5 * time.Minute)
						So(e.Remaining(), ShouldEqual, 50*time.Second)
					})

					Convey("And resuming continues from the cached remaining", func() {
						clock.Advance(time.Minute)
						e.Resume()

						So(e.State(), ShouldEqual, model.TimerRunning)
						So(e.Remaining(), ShouldEqual, 50*time.Second)

						clock.Advance(10 * time.Second)
						So(e.Remaining(), ShouldEqual, 40*time.Second)
					})
				})
			})

			Convey("And the deadline passes", func() {
				clock.Advance(61 * time.Second)

				Convey("Then remaining is clamped to zero and the state is expired", func() {
					So(e.Remaining(), ShouldEqual, 0)
					So(e.State(), ShouldEqual, model.TimerExpired)
				})

				Convey("Then every subsequent read observes the same expiry", func() {
					clock.Advance(time.Hour)
					So(e.Remaining(), ShouldEqual, 0)
					So(e.State(), ShouldEqual, model.TimerExpired)
				})
			})

			Convey("And the countdown is stopped", func() {
				e.Stop()

				So(e.State(), ShouldEqual, model.TimerStopped)
				So(e.Remaining(), ShouldEqual, 0)
			})

			Convey("And a new countdown starts over the old one", func() {
				clock.Advance(30 * time.Second)
				e.Start(model.PhaseBreak, 10*time.Minute)

				So(e.Remaining(), ShouldEqual, 10*time.Minute)
				So(e.Snapshot().Phase, ShouldEqual, model.PhaseBreak)
			})
		})

		Convey("When pausing or resuming out of order", func() {
			e.Pause()
			So(e.State(), ShouldEqual, model.TimerIdle)

			e.Start(model.PhaseAttempt, 60*time.Second)
			e.Resume()
			So(e.State(), ShouldEqual, model.TimerRunning)
			So(e.Remaining(), ShouldEqual, 60*time.Second)
		})

		Convey("When taking a snapshot of a running countdown", func() {
			e.Start(model.PhaseAttempt, 60*time.Second)
			clock.Advance(15 * time.Second)
			snap := e.Snapshot()

			So(snap.SessionID, ShouldEqual, "session-1")
			So(snap.Phase, ShouldEqual, model.PhaseAttempt)
			So(snap.State, ShouldEqual, model.TimerRunning)
			So(snap.Duration, ShouldEqual, 60*time.Second)
			So(snap.Remaining, ShouldEqual, 45*time.Second)
			So(snap.StartedAt, ShouldNotBeNil)
		})

		Convey("When the engine is reset", func() {
			e.Start(model.PhaseAttempt, 60*time.Second)
			e.Reset()

			So(e.State(), ShouldEqual, model.TimerIdle)
			So(e.Remaining(), ShouldEqual, 0)
		})
	})
}
