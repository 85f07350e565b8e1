package directory

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
)

// RankItems orders items by distance from target, then by id, and
// truncates to limit (limit <= 0 keeps all).
func RankItems(items []barter.Item, target decimal.Decimal, limit int) []barter.Item {
	sort.SliceStable(items, func(i, j int) bool {
		di := items[i].EstimatedValue.Sub(target).Abs()
		dj := items[j].EstimatedValue.Sub(target).Abs()
		if c := di.Cmp(dj); c != 0 {
			return c < 0
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// RankWants orders criteria by proximity to it, then by owner and id, and
// truncates to limit.
func RankWants(wants []barter.WantCriteria, it barter.Item, limit int) []barter.WantCriteria {
	sort.SliceStable(wants, func(i, j int) bool {
		if c := wants[i].Proximity(it).Cmp(wants[j].Proximity(it)); c != 0 {
			return c < 0
		}
		if wants[i].OwnerID != wants[j].OwnerID {
			return wants[i].OwnerID < wants[j].OwnerID
		}
		return wants[i].ID < wants[j].ID
	})
	if limit > 0 && len(wants) > limit {
		wants = wants[:limit]
	}
	return wants
}
