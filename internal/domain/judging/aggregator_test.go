package judging_test

import (
	"context"
	"testing"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/judging"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func seedAttempt(ctx context.Context, store repository.Store, id string) model.Attempt {
	a := model.Attempt{
		ID:              id,
		EventID:         "event-1",
		AthleteID:       "ath-1",
		Lift:            "squat",
		Number:          1,
		RequestedWeight: 150,
		Result:          model.ResultPending,
	}
	if _, err := store.Put(ctx, repository.Attempts, a.ID, a, repository.VersionNew); err != nil {
		panic(err)
	}
	return a
}

func vote(judge, attempt string, d model.Decision) model.JudgeVote {
	return model.JudgeVote{
		JudgeID:        judge,
		AttemptID:      attempt,
		Decision:       d,
		IdempotencyKey: judge + "/" + attempt + "/" + string(d),
	}
}

func loadAttempt(ctx context.Context, store repository.Store, id string) model.Attempt {
	doc, err := store.Get(ctx, repository.Attempts, id)
	if err != nil {
		panic(err)
	}
	return doc.Data.(model.Attempt)
}

func TestAggregator(t *testing.T) {
	Convey("Given a three-judge panel over a pending attempt", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		agg := judging.New(store)
		seedAttempt(ctx, store, "att-1")

		Convey("When a single judge votes", func() {
			out, err := agg.Submit(ctx, vote("j1", "att-1", model.DecisionGood))

			So(err, ShouldBeNil)

			Convey("Then the attempt stays open", func() {
				So(out.Closed, ShouldBeFalse)
				So(loadAttempt(ctx, store, "att-1").Result, ShouldEqual, model.ResultPending)
			})
		})

		Convey("When two of three judges vote GOOD", func() {
			_, err := agg.Submit(ctx, vote("j1", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)
			out, err := agg.Submit(ctx, vote("j2", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)

			Convey("Then the attempt closes early as GOOD", func() {
				So(out.Closed, ShouldBeTrue)
				So(out.Result, ShouldEqual, model.ResultGood)

				a := loadAttempt(ctx, store, "att-1")
				So(a.Judged(), ShouldBeTrue)
				So(a.JudgedAt, ShouldNotBeNil)
				So(a.Overridden, ShouldBeFalse)
			})

			Convey("And a late third vote is refused without changing the result", func() {
				out, err := agg.Submit(ctx, vote("j3", "att-1", model.DecisionNoLift))

				So(err, ShouldEqual, judging.ErrAlreadyJudged)
				So(out.AlreadyClosed, ShouldBeTrue)
				So(out.Result, ShouldEqual, model.ResultGood)
				So(loadAttempt(ctx, store, "att-1").Result, ShouldEqual, model.ResultGood)
			})
		})

		Convey("When two of three judges vote NO_LIFT", func() {
			_, err := agg.Submit(ctx, vote("j1", "att-1", model.DecisionNoLift))
			So(err, ShouldBeNil)
			out, err := agg.Submit(ctx, vote("j2", "att-1", model.DecisionNoLift))
			So(err, ShouldBeNil)

			Convey("Then the attempt closes as NO_LIFT", func() {
				So(out.Closed, ShouldBeTrue)
				So(out.Result, ShouldEqual, model.ResultNoLift)
			})
		})

		Convey("When the same vote is replayed with its idempotency key", func() {
			v := vote("j1", "att-1", model.DecisionGood)
			_, err := agg.Submit(ctx, v)
			So(err, ShouldBeNil)
			out, err := agg.Submit(ctx, v)

			So(err, ShouldBeNil)

			Convey("Then the replay is a duplicate no-op", func() {
				So(out.Duplicate, ShouldBeTrue)
				So(out.Closed, ShouldBeFalse)

				a := loadAttempt(ctx, store, "att-1")
				So(len(a.Votes), ShouldEqual, 1)
			})
		})

		Convey("When a judge changes their mind before the close", func() {
			_, err := agg.Submit(ctx, vote("j1", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)
			_, err = agg.Submit(ctx, vote("j1", "att-1", model.DecisionNoLift))
			So(err, ShouldBeNil)

			Convey("Then the new vote replaces the pending one", func() {
				a := loadAttempt(ctx, store, "att-1")
				So(len(a.Votes), ShouldEqual, 1)
				So(a.Votes[0].Decision, ShouldEqual, model.DecisionNoLift)
			})
		})

		Convey("When the head judge votes against the lay majority", func() {
			_, err := agg.Submit(ctx, vote("j1", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)

			head := vote("head", "att-1", model.DecisionNoLift)
			head.HeadJudge = true
			out, err := agg.Submit(ctx, head)
			So(err, ShouldBeNil)

			Convey("Then the head decision closes the attempt and is marked as an override", func() {
				So(out.Closed, ShouldBeTrue)
				So(out.Overridden, ShouldBeTrue)
				So(out.Result, ShouldEqual, model.ResultNoLift)

				a := loadAttempt(ctx, store, "att-1")
				So(a.Overridden, ShouldBeTrue)
				So(len(a.Votes), ShouldEqual, 2)
			})
		})

		Convey("When the head judge calls a technical disqualification", func() {
			head := vote("head", "att-1", model.DecisionNoLift)
			head.HeadJudge = true
			head.ReasonCode = judging.ReasonTechnicalDQ
			out, err := agg.Submit(ctx, head)
			So(err, ShouldBeNil)

			Convey("Then the attempt closes as DISQUALIFIED", func() {
				So(out.Closed, ShouldBeTrue)
				So(out.Result, ShouldEqual, model.ResultDisqualified)
			})
		})

		Convey("When a full split panel has voted", func() {
			agg5 := judging.New(store, judging.WithPanelSize(5))
			_, err := agg5.Submit(ctx, vote("j1", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)
			_, err = agg5.Submit(ctx, vote("j2", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)
			_, err = agg5.Submit(ctx, vote("j3", "att-1", model.DecisionNoLift))
			So(err, ShouldBeNil)
			_, err = agg5.Submit(ctx, vote("j4", "att-1", model.DecisionNoLift))
			So(err, ShouldBeNil)
			out, err := agg5.Submit(ctx, vote("j5", "att-1", model.DecisionGood))
			So(err, ShouldBeNil)

			Convey("Then the plurality wins at panel completion", func() {
				So(out.Closed, ShouldBeTrue)
				So(out.Result, ShouldEqual, model.ResultGood)
			})
		})

		Convey("When a vote is malformed", func() {
			_, err := agg.Submit(ctx, model.JudgeVote{AttemptID: "att-1", JudgeID: "j1", IdempotencyKey: "k"})
			So(err, ShouldNotBeNil)

			_, err = agg.Submit(ctx, model.JudgeVote{JudgeID: "j1", Decision: model.DecisionGood, IdempotencyKey: "k"})
			So(err, ShouldNotBeNil)
		})

		Convey("When voting on an unknown attempt", func() {
			_, err := agg.Submit(ctx, vote("j1", "ghost", model.DecisionGood))

			Convey("Then the key is released so a later retry can land", func() {
				So(err, ShouldNotBeNil)

				seedAttempt(ctx, store, "ghost")
				out, err := agg.Submit(ctx, vote("j1", "ghost", model.DecisionGood))
				So(err, ShouldBeNil)
				So(out.Duplicate, ShouldBeFalse)
			})
		})
	})
}
