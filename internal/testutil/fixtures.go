package testutil

import (
	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

// Dec is decimal.NewFromInt, shortened for fixtures.
func Dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Item returns an AVAILABLE, barter-eligible item.
func Item(id, owner, category string, value int64) barter.Item {
	return barter.Item{
		ID:             id,
		OwnerID:        owner,
		CategoryID:     category,
		EstimatedValue: Dec(value),
		Status:         barter.ItemAvailable,
		BarterEligible: true,
	}
}

// Want returns a category criteria over [min, max].
func Want(owner, category string, min, max int64) barter.WantCriteria {
	return barter.WantCriteria{
		OwnerID:           owner,
		DesiredCategoryID: category,
		MinValue:          Dec(min),
		MaxValue:          Dec(max),
	}
}

// SeedThreeWay loads the canonical three-party cycle A -> C -> B -> A:
//
//	A offers a-item (electronics, 1000) and wants books 900-1000
//	B offers b-book (books, 950)        and wants tools 1000-1100
//	C offers c-tool (tools, 1050)       and wants a-item itself
//
// No pair of the three can swap directly. Every wallet starts at 1000.
func SeedThreeWay(m *directory.Memory) {
	m.PutItem(Item("a-item", "A", "electronics", 1000))
	m.PutItem(Item("b-book", "B", "books", 950))
	m.PutItem(Item("c-tool", "C", "tools", 1050))

	m.AddWant(Want("A", "books", 900, 1000))
	m.AddWant(Want("B", "tools", 1000, 1100))
	m.AddWant(barter.WantCriteria{OwnerID: "C", DesiredItemID: "a-item"})

	for _, u := range []string{"A", "B", "C"} {
		m.SetBalance(u, Dec(1000))
	}
}

// SeedTwoWay loads a direct swap: A's a-item for B's b-item at equal value.
func SeedTwoWay(m *directory.Memory) {
	m.PutItem(Item("a-item", "A", "cameras", 500))
	m.PutItem(Item("b-item", "B", "bikes", 500))

	m.AddWant(Want("A", "bikes", 400, 600))
	m.AddWant(Want("B", "cameras", 400, 600))

	m.SetBalance("A", Dec(1000))
	m.SetBalance("B", Dec(1000))
}
