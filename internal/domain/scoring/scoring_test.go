package scoring_test

import (
	"testing"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScore(t *testing.T) {
	Convey("Given the scoring formulas", t, func() {
		Convey("When the total or bodyweight is invalid", func() {
			Convey("Then the score is zero", func() {
				So(scoring.Score(0, 93, model.GenderMale, scoring.Wilks), ShouldEqual, 0)
				So(scoring.Score(-10, 93, model.GenderMale, scoring.Wilks), ShouldEqual, 0)
				So(scoring.Score(600, 0, model.GenderMale, scoring.DOTS), ShouldEqual, 0)
				So(scoring.Score(600, -5, model.GenderFemale, scoring.IPF), ShouldEqual, 0)
			})
		})

		Convey("When the gender or formula is unknown", func() {
			Convey("Then the score is zero", func() {
				So(scoring.Score(600, 93, model.Gender("X"), scoring.Wilks), ShouldEqual, 0)
				So(scoring.Score(600, 93, model.GenderMale, scoring.Formula("robi")), ShouldEqual, 0)
			})
		})

		Convey("When scoring a valid male total", func() {
			wilks := scoring.Score(600, 93, model.GenderMale, scoring.Wilks)
			dots := scoring.Score(600, 93, model.GenderMale, scoring.DOTS)
			ipf := scoring.Score(600, 93, model.GenderMale, scoring.IPF)

			Convey("Then all scores are positive and plausible", func() {
				So(wilks, ShouldBeGreaterThan, 300)
				So(wilks, ShouldBeLessThan, 500)
				So(dots, ShouldBeGreaterThan, 300)
				So(dots, ShouldBeLessThan, 500)
				So(ipf, ShouldBeGreaterThan, 50)
				So(ipf, ShouldBeLessThan, 150)
			})

			Convey("Then repeated calls are bit-for-bit identical", func() {
				for i := 0; i < 100; i++ {
					So(scoring.Score(600, 93, model.GenderMale, scoring.Wilks), ShouldEqual, wilks)
				}
			})
		})

		Convey("When scoring at a heavier bodyweight with the same total", func() {
			light := scoring.Score(500, 74, model.GenderMale, scoring.Wilks)
			heavy := scoring.Score(500, 120, model.GenderMale, scoring.Wilks)

			Convey("Then the lighter lifter scores higher", func() {
				So(light, ShouldBeGreaterThan, heavy)
			})
		})

		Convey("When a weightlifter is at or above the reference bodyweight", func() {
			Convey("Then the Sinclair score equals the raw total", func() {
				So(scoring.Score(400, 193.609, model.GenderMale, scoring.Sinclair), ShouldEqual, 400)
				So(scoring.Score(400, 200, model.GenderMale, scoring.Sinclair), ShouldEqual, 400)
			})
		})

		Convey("When a weightlifter is below the reference bodyweight", func() {
			s := scoring.Score(300, 81, model.GenderMale, scoring.Sinclair)

			Convey("Then the Sinclair score exceeds the raw total", func() {
				So(s, ShouldBeGreaterThan, 300)
			})
		})

		Convey("When scoring female totals", func() {
			wilks := scoring.Score(400, 63, model.GenderFemale, scoring.Wilks)
			ipf := scoring.Score(400, 63, model.GenderFemale, scoring.IPF)

			Convey("Then the female coefficient sets are used", func() {
				So(wilks, ShouldBeGreaterThan, 0)
				So(ipf, ShouldBeGreaterThan, 0)
				So(wilks, ShouldNotEqual, scoring.Score(400, 63, model.GenderMale, scoring.Wilks))
			})
		})

		Convey("When results are rounded", func() {
			s := scoring.Score(600, 93, model.GenderMale, scoring.DOTS)

			Convey("Then they carry at most two decimal places", func() {
				So(s*100, ShouldEqual, float64(int64(s*100)))
			})
		})
	})
}

func TestAll(t *testing.T) {
	Convey("Given a valid total and bodyweight", t, func() {
		scores := scoring.All(600, 93, model.GenderMale)

		Convey("Then every formula yields a positive score", func() {
			So(scores.Wilks, ShouldBeGreaterThan, 0)
			So(scores.IPF, ShouldBeGreaterThan, 0)
			So(scores.DOTS, ShouldBeGreaterThan, 0)
			So(scores.Sinclair, ShouldBeGreaterThan, 0)
		})

		Convey("And each matches the single-formula path", func() {
			So(scores.Wilks, ShouldEqual, scoring.Score(600, 93, model.GenderMale, scoring.Wilks))
			So(scores.Sinclair, ShouldEqual, scoring.Score(600, 93, model.GenderMale, scoring.Sinclair))
		})
	})
}

func TestParseFormula(t *testing.T) {
	Convey("Given formula names from config or query input", t, func() {
		Convey("Then known names parse case-insensitively", func() {
			f, ok := scoring.ParseFormula("IPF")
			So(ok, ShouldBeTrue)
			So(f, ShouldEqual, scoring.IPF)

			f, ok = scoring.ParseFormula("  dots ")
			So(ok, ShouldBeTrue)
			So(f, ShouldEqual, scoring.DOTS)
		})

		Convey("Then unknown names are rejected", func() {
			_, ok := scoring.ParseFormula("glossbrenner")
			So(ok, ShouldBeFalse)
		})
	})
}
