package session

import (
	"sort"

	"github.com/g97iulio1609/a1lifter/internal/domain/model"
)

// orderQueue sorts queue items into the authoritative lifting order:
// ascending requested weight, then lot number, then registration time.
// Attempt id is the final fallback so the order is total even with
// corrupt lot data — no two items ever compare equal.
func orderQueue(items []model.QueueItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.RequestedWeight != b.RequestedWeight {
			return a.RequestedWeight < b.RequestedWeight
		}
		if a.Lot != b.Lot {
			return a.Lot < b.Lot
		}
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return a.AttemptID < b.AttemptID
	})
}
