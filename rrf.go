package vesper

import "sort"

// rrfK is the Reciprocal Rank Fusion rank constant used throughout (§4.3,
// §4.7): contribution of a rank-r appearance is 1/(rrfK+r).
const rrfK = 60

// RankedItem pairs an opaque key with its 1-based rank in some ranking.
type RankedItem struct {
	Key  string
	Rank int
}

// FuseRankings combines one or more independent rankings of the same key
// space with Reciprocal Rank Fusion and returns keys sorted by fused score
// descending. An item absent from a ranking simply contributes nothing
// from that ranking. Ties are broken by the order keys first appear
// across the input rankings, for deterministic output.
func FuseRankings(rankings ...[]RankedItem) []string {
	scores := make(map[string]float64)
	order := make([]string, 0)
	seen := make(map[string]bool)
	for _, ranking := range rankings {
		for _, item := range ranking {
			scores[item.Key] += 1.0 / float64(rrfK+item.Rank)
			if !seen[item.Key] {
				seen[item.Key] = true
				order = append(order, item.Key)
			}
		}
	}
	keys := make([]string, len(order))
	copy(keys, order)
	sort.SliceStable(keys, func(i, j int) bool {
		return scores[keys[i]] > scores[keys[j]]
	})
	return keys
}

// ToRankedItems converts an already-sorted-descending list of keys into
// 1-based RankedItems, the form FuseRankings expects.
func ToRankedItems(orderedKeys []string) []RankedItem {
	items := make([]RankedItem, len(orderedKeys))
	for i, k := range orderedKeys {
		items[i] = RankedItem{Key: k, Rank: i + 1}
	}
	return items
}
