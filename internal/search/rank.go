package search

import (
	"sort"

	"github.com/roach88/swapchain/internal/barter"
)

// Rank orders candidates shortest first, then by higher fairness score,
// then by higher total value. Fingerprints break any remaining tie.
func Rank(cs []barter.ChainCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Len() != cs[j].Len() {
			return cs[i].Len() < cs[j].Len()
		}
		return better(cs[i], cs[j])
	})
}

// better reports whether a beats b among candidates of equal length.
func better(a, b barter.ChainCandidate) bool {
	if a.FairnessScore != b.FairnessScore {
		return a.FairnessScore > b.FairnessScore
	}
	if c := a.TotalValue.Cmp(b.TotalValue); c != 0 {
		return c > 0
	}
	return a.Fingerprint < b.Fingerprint
}
