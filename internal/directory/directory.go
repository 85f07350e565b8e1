// Package directory declares the collaborators the engine consumes: the
// Item Directory, the User Directory and the Wallet/Escrow Service.
//
// The engine owns none of this state. Every read returns a snapshot;
// every write is an explicit, guarded request (compare-and-swap on item
// status, tagged ownership transfer, zero-sum ledger batch).
//
// Memory is an in-process implementation used by tests and the scenario
// harness. The store package provides a SQLite-backed one for the CLI.
package directory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
)

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("not found")

	// ErrStatusMismatch is returned when a compare-and-swap or a tagged
	// transfer finds the item in an unexpected state.
	ErrStatusMismatch = errors.New("item status mismatch")

	// ErrUnbalanced is returned for ledger batches that do not sum to zero.
	ErrUnbalanced = errors.New("ledger entries do not sum to zero")

	// ErrInsufficientFunds is returned when a debit would overdraw an account.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ItemQuery is a ranked item search. Results are ordered by distance of
// the item value from Target, then by id.
type ItemQuery struct {
	CategoryID     string
	ExactItemID    string
	MinValue       decimal.Decimal
	MaxValue       decimal.Decimal
	Target         decimal.Decimal
	ExcludeOwnerID string
	Region         string
	Limit          int
}

// QueryFor builds the search that finds items satisfying w.
func QueryFor(w barter.WantCriteria, region string, limit int) ItemQuery {
	return ItemQuery{
		CategoryID:     w.DesiredCategoryID,
		ExactItemID:    w.DesiredItemID,
		MinValue:       w.MinValue,
		MaxValue:       w.MaxValue,
		Target:         w.Target(),
		ExcludeOwnerID: w.OwnerID,
		Region:         region,
		Limit:          limit,
	}
}

// Matches reports whether it satisfies the query filters (not the limit).
// Only tradable items match.
func (q ItemQuery) Matches(it barter.Item) bool {
	if !it.Tradable() {
		return false
	}
	if q.ExcludeOwnerID != "" && it.OwnerID == q.ExcludeOwnerID {
		return false
	}
	if q.Region != "" && it.Region != "" && it.Region != q.Region {
		return false
	}
	if q.ExactItemID != "" {
		return it.ID == q.ExactItemID
	}
	w := barter.WantCriteria{
		DesiredCategoryID: q.CategoryID,
		MinValue:          q.MinValue,
		MaxValue:          q.MaxValue,
	}
	return w.Accepts(it)
}

// ItemDirectory supplies item records and guarded status changes.
type ItemDirectory interface {
	GetItem(ctx context.Context, id string) (barter.Item, error)

	// CompareAndSwapStatus moves an item from expected to next. Unless
	// expected is AVAILABLE the item must carry tag. Moving to AVAILABLE
	// clears the tag; any other target sets it.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next barter.ItemStatus, tag string) (barter.Item, error)

	// TransferOwnership reassigns an item that is LOCKED under tag and
	// currently owned by fromUserID.
	TransferOwnership(ctx context.Context, id, fromUserID, toUserID, tag string) error

	SearchItems(ctx context.Context, q ItemQuery) ([]barter.Item, error)
}

// UserDirectory supplies each participant's items and wants.
type UserDirectory interface {
	GetWantCriteria(ctx context.Context, userID string) ([]barter.WantCriteria, error)
	GetUserItems(ctx context.Context, userID string) ([]barter.Item, error)

	// FindWanters returns up to limit criteria accepting it, ranked by
	// value proximity.
	FindWanters(ctx context.Context, it barter.Item, region string, limit int) ([]barter.WantCriteria, error)
}

// Directory is the combined Item/User Directory.
type Directory interface {
	ItemDirectory
	UserDirectory
}

// Wallet applies zero-sum cash batches. Positive amounts credit.
type Wallet interface {
	ApplyLedgerEntries(ctx context.Context, entries []barter.LedgerEntry) error
	ReverseLedgerEntries(ctx context.Context, entries []barter.LedgerEntry) error
}

// SumEntries returns the total of all entry amounts.
func SumEntries(entries []barter.LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}
