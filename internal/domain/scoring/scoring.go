// Package scoring computes bodyweight-normalized competition scores.
//
// All functions are pure: no I/O, no state, and no error returns. Invalid
// input (non-positive total or bodyweight, unknown gender or formula)
// yields 0. Polynomial denominators are evaluated with a fixed Horner
// order so repeated calls are reproducible bit for bit.
package scoring

import (
	"math"
	"strings"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/types"
)

// Formula identifies one of the published scoring formulas.
type Formula string

// Supported formulas.
const (
	Wilks    Formula = "wilks"
	IPF      Formula = "ipf"
	DOTS     Formula = "dots"
	Sinclair Formula = "sinclair"
)

// ParseFormula normalizes a formula name from config or query input.
// Returns false for unknown names.
func ParseFormula(s string) (Formula, bool) {
	switch Formula(strings.ToLower(strings.TrimSpace(s))) {
	case Wilks:
		return Wilks, true
	case IPF:
		return IPF, true
	case DOTS:
		return DOTS, true
	case Sinclair:
		return Sinclair, true
	}
	return "", false
}

// Polynomial coefficient sets, ordered a..f for
// a + b*x + c*x^2 + d*x^3 + e*x^4 + f*x^5 with x = bodyweight in kg.
//
// Wilks uses the original 500-point coefficients; DOTS terminates at the
// 4th degree so its top coefficient is zero.
var (
	wilksMale   = [6]float64{-216.0475144, 16.2606339, -0.002388645, -0.00113732, 7.01863e-06, -1.291e-08}
	wilksFemale = [6]float64{594.31747775582, -27.23842536447, 0.82112226871, -0.00930733913, 4.731582e-05, -9.054e-08}

	dotsMale   = [6]float64{-307.75076, 24.0900756, -0.1918759221, 0.0007391293, -1.093e-06, 0}
	dotsFemale = [6]float64{-57.96288, 13.6175032, -0.1126655495, 0.0005158568, -1.0706e-06, 0}
)

// IPF GL coefficients: denominator A - B*e^(-C*x).
var (
	iPFGLMale   = [3]float64{1199.72839, 1025.18162, 0.00921}
	iPFGLFemale = [3]float64{610.32796, 1045.59282, 0.03048}
)

// Sinclair coefficients (current Olympic cycle): exponent A and the
// world-record bodyweight b the coefficient is referenced to. Lifters at
// or above b score their raw total.
var (
	sinclairMale   = [2]float64{0.722762521, 193.609}
	sinclairFemale = [2]float64{0.787004341, 153.757}
)

// Score computes the formula score for a lifted total at a bodyweight.
// Returns 0 for non-positive total or bodyweight and for unknown
// gender/formula values. The result is rounded half-up to 2 decimals.
func Score(total, bodyweight float64, gender model.Gender, formula Formula) float64 {
	if total <= 0 || bodyweight <= 0 {
		return 0
	}

	var raw float64
	switch formula {
	case Wilks:
		raw = polyScore(total, bodyweight, gender, wilksMale, wilksFemale, 500)
	case DOTS:
		raw = polyScore(total, bodyweight, gender, dotsMale, dotsFemale, 500)
	case IPF:
		raw = iPFGLScore(total, bodyweight, gender)
	case Sinclair:
		raw = sinclairScore(total, bodyweight, gender)
	default:
		return 0
	}
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return round2(raw)
}

// All computes every supported formula for one total/bodyweight pair.
func All(total, bodyweight float64, gender model.Gender) types.FormulaScores {
	return types.FormulaScores{
		Wilks:    Score(total, bodyweight, gender, Wilks),
		IPF:      Score(total, bodyweight, gender, IPF),
		DOTS:     Score(total, bodyweight, gender, DOTS),
		Sinclair: Score(total, bodyweight, gender, Sinclair),
	}
}

func polyScore(total, x float64, gender model.Gender, male, female [6]float64, points float64) float64 {
	var c [6]float64
	switch gender {
	case model.GenderMale:
		c = male
	case model.GenderFemale:
		c = female
	default:
		return 0
	}
	denom := horner(c, x)
	if denom == 0 {
		return 0
	}
	return total * points / denom
}

// horner evaluates a + b*x + ... + f*x^5 with a fixed evaluation order.
func horner(c [6]float64, x float64) float64 {
	r := c[5]
	for i := 4; i >= 0; i-- {
		r = r*x + c[i]
	}
	return r
}

func iPFGLScore(total, x float64, gender model.Gender) float64 {
	var c [3]float64
	switch gender {
	case model.GenderMale:
		c = iPFGLMale
	case model.GenderFemale:
		c = iPFGLFemale
	default:
		return 0
	}
	denom := c[0] - c[1]*math.Exp(-c[2]*x)
	if denom <= 0 {
		return 0
	}
	return total * 100 / denom
}

func sinclairScore(total, x float64, gender model.Gender) float64 {
	var c [2]float64
	switch gender {
	case model.GenderMale:
		c = sinclairMale
	case model.GenderFemale:
		c = sinclairFemale
	default:
		return 0
	}
	a, b := c[0], c[1]
	if x >= b {
		return total
	}
	l := math.Log10(x / b)
	return total * math.Pow(10, a*l*l)
}

// round2 rounds half-up to 2 decimal places.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
