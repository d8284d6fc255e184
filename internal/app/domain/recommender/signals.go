package recommender

import (
	"math"
	"sort"

	"github.com/trailmates/trailmates/internal/app/models"
)

// rankedEntry pairs an adventure with its comparison key under one signal.
type rankedEntry struct {
	id  int64
	key float64
}

// rankAscending sorts entries ascending on key and assigns 1-based rank
// positions. The sort is stable, so ties resolve to input order and rank
// output is deterministic for a fixed candidate set.
func rankAscending(entries []rankedEntry) map[int64]int {
	sorted := make([]rankedEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].key < sorted[j].key
	})

	ranks := make(map[int64]int, len(sorted))
	for i, e := range sorted {
		ranks[e.id] = i + 1
	}
	return ranks
}

// averageRouteDistance computes the mean Euclidean lat/lng distance from a
// position to each coordinate of a route. The planar approximation matches
// how the rest of the product measures route proximity.
//
// An adventure with no coordinates averages to 0, the best possible
// proximity. Arguably a route-less adventure should be penalized instead,
// but ranking output has been tuned around this behavior, so it stays.
func averageRouteDistance(position models.Position, coordinates []*models.Coordinate) float64 {
	if len(coordinates) == 0 {
		return 0
	}
	var sum float64
	for _, c := range coordinates {
		dLat := position.Latitude - c.Latitude
		dLng := position.Longitude - c.Longitude
		sum += math.Sqrt(dLat*dLat + dLng*dLng)
	}
	return sum / float64(len(coordinates))
}

// friendOverlapFraction computes |active participants ∩ friends| / |active
// participants|, defining the zero-participant case as 0 rather than a
// division error.
func friendOverlapFraction(activeParticipantIDs []int64, friendIDs map[int64]struct{}) float64 {
	if len(activeParticipantIDs) == 0 {
		return 0
	}
	var inCommon int
	for _, id := range activeParticipantIDs {
		if _, ok := friendIDs[id]; ok {
			inCommon++
		}
	}
	return float64(inCommon) / float64(len(activeParticipantIDs))
}

// neutralTerm is the score contribution of an adventure that a computed
// signal never ranked.
const neutralTerm = 1.0

// rankTerm converts a rank position into its score contribution,
// exp(1/rank) - 1, which concentrates mass on rank 1 and decays quickly.
func rankTerm(rank int) float64 {
	return math.Expm1(1 / float64(rank))
}

// signalTerm resolves one signal's contribution for an adventure: the
// weighted rank-derived term when the adventure was ranked, the neutral
// constant otherwise.
func signalTerm(ranks map[int64]int, id int64, weight float64) float64 {
	rank, ok := ranks[id]
	if !ok {
		return neutralTerm
	}
	return weight * rankTerm(rank)
}
