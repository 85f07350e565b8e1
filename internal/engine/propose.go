package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/chain"
	"github.com/roach88/swapchain/internal/directory"
	"github.com/roach88/swapchain/internal/settlement"
	"github.com/roach88/swapchain/internal/store"
)

// ProposeChain persists cand as a PROPOSED chain on behalf of initiatorID
// and reserves every item it hands over.
//
// The candidate is re-priced under the engine cash cap and every slot
// value is checked against the directory, so a tampered settlement never
// reaches the store. Reservations are taken one item at a time by compare-and-swap;
// losing any of them releases the ones already held and fails with
// ITEM_UNAVAILABLE. The caller should search again.
func (e *Engine) ProposeChain(ctx context.Context, cand barter.ChainCandidate, initiatorID string) (*barter.BarterChain, error) {
	priced, err := settlement.Verify(cand, e.limits.MaxCashDifference)
	if err != nil {
		return nil, err
	}
	if err := e.checkOwners(ctx, priced); err != nil {
		return nil, err
	}

	now := e.now()
	c, err := chain.New(e.ids.NewID(), priced, initiatorID, now, e.limits.ProposalTTL)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(c.ID)
	defer unlock()

	if err := e.reserve(ctx, c); err != nil {
		return nil, err
	}

	w := store.ChainWrite{Events: []barter.ChainEvent{event(c, "", initiatorID, "proposed", now)}}
	if err := e.chains.CreateChain(ctx, c, w); err != nil {
		e.release(ctx, c.ID, c.GivingItemIDs())
		return nil, err
	}

	e.log.Info().
		Str("chain_id", c.ID).
		Str("initiator", initiatorID).
		Str("type", string(c.Type)).
		Int("participants", len(c.Participants)).
		Float64("fairness", c.FairnessScore).
		Msg("chain proposed")
	return c, nil
}

// checkOwners confirms every slot still owns the item it offers, at the
// value the candidate was priced with.
func (e *Engine) checkOwners(ctx context.Context, cand barter.ChainCandidate) error {
	n := len(cand.Slots)
	for i, s := range cand.Slots {
		if s.GivingItemID == "" {
			continue
		}
		it, err := e.dir.GetItem(ctx, s.GivingItemID)
		if err != nil {
			return itemError(err, s.GivingItemID)
		}
		if it.OwnerID != s.UserID {
			return barter.NewError(barter.ErrCodeItemUnavailable, "item is owned by %s", it.OwnerID).
				WithItem(it.ID).WithUser(s.UserID)
		}
		if !it.Tradable() {
			return barter.NewError(barter.ErrCodeItemUnavailable, "item is %s", it.Status).WithItem(it.ID)
		}

		value := barter.Money(it.EstimatedValue)
		priced := []decimal.Decimal{s.GivingValue}
		if r := barter.Recipient(cand.Type, i, n); r >= 0 {
			priced = append(priced, cand.Slots[r].ReceivingValue)
		}
		for _, v := range priced {
			if !barter.Money(v).Equal(value) {
				return barter.NewError(barter.ErrCodeInvalidCandidate,
					"item is valued at %s, candidate prices it at %s",
					value.StringFixed(barter.MoneyPlaces), barter.Money(v).StringFixed(barter.MoneyPlaces)).
					WithItem(it.ID).WithUser(s.UserID)
			}
		}
	}
	return nil
}

// reserve moves every giving item of c from AVAILABLE to RESERVED under
// the chain id. It holds all of them or none.
func (e *Engine) reserve(ctx context.Context, c *barter.BarterChain) error {
	held := make([]string, 0, len(c.Participants))
	for _, id := range c.GivingItemIDs() {
		if _, err := e.dir.CompareAndSwapStatus(ctx, id, barter.ItemAvailable, barter.ItemReserved, c.ID); err != nil {
			e.release(ctx, c.ID, held)
			e.log.Debug().Err(err).Str("chain_id", c.ID).Str("item_id", id).Msg("reservation lost")
			return itemError(err, id).WithChain(c.ID)
		}
		held = append(held, id)
	}
	return nil
}

// release returns items reserved under chainID to AVAILABLE. Failures are
// logged, not returned: the chain transition that triggered the release
// has already been committed.
func (e *Engine) release(ctx context.Context, chainID string, itemIDs []string) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range itemIDs {
		if _, err := e.dir.CompareAndSwapStatus(ctx, id, barter.ItemReserved, barter.ItemAvailable, chainID); err != nil {
			e.log.Warn().Err(err).Str("chain_id", chainID).Str("item_id", id).Msg("release reservation")
		}
	}
}

// itemError maps a directory failure onto the engine taxonomy.
func itemError(err error, itemID string) *barter.Error {
	if errors.Is(err, directory.ErrNotFound) {
		return barter.NewError(barter.ErrCodeNotFound, "unknown item").WithItem(itemID).Wrap(err)
	}
	return barter.NewError(barter.ErrCodeItemUnavailable, "item is not available").WithItem(itemID).Wrap(err)
}
