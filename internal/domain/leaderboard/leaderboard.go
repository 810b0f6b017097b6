// Package leaderboard turns judged attempts into ranked standings.
//
// A build is a pure recomputation from stored attempts: best successful
// weight per lift, summed into a total, normalized through every scoring
// formula and sorted by the configured primary one. Athletes missing a
// successful attempt in any required lift have no total yet and are left
// off the board entirely.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/g97iulio1609/a1lifter/internal/adapters/repository"
	"github.com/g97iulio1609/a1lifter/internal/domain/model"
	"github.com/g97iulio1609/a1lifter/internal/domain/scoring"
	"github.com/g97iulio1609/a1lifter/internal/domain/types"
	"github.com/g97iulio1609/a1lifter/pkg/metrics"
)

// Builder recomputes leaderboards from the store.
type Builder struct {
	store   repository.Store
	primary scoring.Formula
	clock   clockwork.Clock
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithPrimaryFormula sets the formula standings are sorted by.
func WithPrimaryFormula(f scoring.Formula) Option {
	return func(b *Builder) {
		if f != "" {
			b.primary = f
		}
	}
}

// WithClock injects the clock, primarily for tests.
func WithClock(c clockwork.Clock) Option {
	return func(b *Builder) {
		if c != nil {
			b.clock = c
		}
	}
}

// New creates a Builder. The primary formula defaults to IPF.
func New(store repository.Store, opts ...Option) *Builder {
	b := &Builder{
		store:   store,
		primary: scoring.IPF,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Query scopes one leaderboard build.
type Query struct {
	EventID string
	// CategoryID narrows the board to one category; empty means all.
	CategoryID string
	// Formula overrides the primary sort for this build; empty keeps the
	// configured default.
	Formula scoring.Formula
	// Lifts is the set of lifts a total requires; athletes missing a
	// successful attempt in any of them are excluded from the board.
	Lifts []string
	// Limit caps the number of rows; 0 means no cap.
	Limit int
}

// Build computes the standings for a query.
func (b *Builder) Build(ctx context.Context, q Query) ([]types.LeaderboardRow, error) {
	if q.EventID == "" {
		return nil, fmt.Errorf("leaderboard query requires an event id")
	}
	formula := b.primary
	if q.Formula != "" {
		formula = q.Formula
	}
	started := b.clock.Now()

	athletes, err := b.athletes(ctx, q)
	if err != nil {
		return nil, err
	}
	best, err := b.bestLifts(ctx, q.EventID)
	if err != nil {
		return nil, err
	}

	rows := make([]types.LeaderboardRow, 0, len(athletes))
	for _, ath := range athletes {
		lifts := best[ath.ID]
		if lifts == nil {
			lifts = map[string]float64{}
		}
		total := totalOf(lifts, q.Lifts)
		if total == 0 && len(q.Lifts) > 0 {
			// An incomplete required set is not a zero-total placing.
			continue
		}
		row := types.LeaderboardRow{
			AthleteID:  ath.ID,
			CategoryID: ath.CategoryID,
			BestLifts:  lifts,
			Total:      total,
		}
		if total > 0 {
			row.Scores = scoring.All(total, ath.Bodyweight, ath.Gender)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		si, sj := primaryScore(rows[i].Scores, formula), primaryScore(rows[j].Scores, formula)
		if si != sj {
			return si > sj
		}
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].AthleteID < rows[j].AthleteID
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	metrics.RecordLeaderboardBuild(float64(b.clock.Since(started)) / float64(time.Millisecond))
	return rows, nil
}

func (b *Builder) athletes(ctx context.Context, q Query) ([]model.Athlete, error) {
	docs, err := b.store.List(ctx, repository.Athletes, func(d repository.Document) bool {
		a, ok := d.Data.(model.Athlete)
		if !ok || a.EventID != q.EventID {
			return false
		}
		return q.CategoryID == "" || a.CategoryID == q.CategoryID
	})
	if err != nil {
		return nil, fmt.Errorf("list athletes: %w", err)
	}
	out := make([]model.Athlete, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Data.(model.Athlete))
	}
	return out, nil
}

// bestLifts maps athlete id to the heaviest successful weight per lift.
// Only GOOD attempts count; the lifted weight is the actual weight when
// recorded, the requested weight otherwise.
func (b *Builder) bestLifts(ctx context.Context, eventID string) (map[string]map[string]float64, error) {
	docs, err := b.store.List(ctx, repository.Attempts, func(d repository.Document) bool {
		a, ok := d.Data.(model.Attempt)
		return ok && a.EventID == eventID && a.Result == model.ResultGood && !a.Voided
	})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	best := make(map[string]map[string]float64)
	for _, d := range docs {
		a := d.Data.(model.Attempt)
		w := a.RequestedWeight
		if a.ActualWeight > 0 {
			w = a.ActualWeight
		}
		lifts := best[a.AthleteID]
		if lifts == nil {
			lifts = make(map[string]float64)
			best[a.AthleteID] = lifts
		}
		if w > lifts[a.Lift] {
			lifts[a.Lift] = w
		}
	}
	return best, nil
}

// totalOf sums the best lifts across the required set. Any missing lift
// zeroes the total. With no required set the total is the sum of every
// lift the athlete succeeded at.
func totalOf(best map[string]float64, required []string) float64 {
	if len(required) == 0 {
		var sum float64
		for _, w := range best {
			sum += w
		}
		return sum
	}
	var sum float64
	for _, lift := range required {
		w, ok := best[lift]
		if !ok || w <= 0 {
			return 0
		}
		sum += w
	}
	return sum
}

func primaryScore(s types.FormulaScores, f scoring.Formula) float64 {
	switch f {
	case scoring.Wilks:
		return s.Wilks
	case scoring.DOTS:
		return s.DOTS
	case scoring.Sinclair:
		return s.Sinclair
	default:
		return s.IPF
	}
}
