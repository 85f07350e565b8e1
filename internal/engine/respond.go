package engine

import (
	"context"
	"time"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/chain"
	"github.com/roach88/swapchain/internal/store"
)

// transitionFunc applies one operation to a private copy of a chain and
// returns the audit events it produced.
type transitionFunc func(c *barter.BarterChain, now time.Time) ([]barter.ChainEvent, error)

// mutate is the single-writer path shared by every lifecycle operation:
// lock the chain id, load, transition, commit with a version check, then
// release reservations if the new status frees them. A failed transition
// or commit leaves the stored chain unchanged.
func (e *Engine) mutate(ctx context.Context, chainID string, fn transitionFunc) (*barter.BarterChain, error) {
	unlock := e.locks.Lock(chainID)
	defer unlock()

	c, err := e.load(ctx, chainID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	events, err := fn(c, now)
	if err != nil {
		return nil, err
	}
	if err := e.chains.UpdateChain(ctx, c, store.ChainWrite{Events: events}); err != nil {
		return nil, err
	}
	if chain.ReleasesReservations(c.Status) {
		e.release(ctx, c.ID, c.GivingItemIDs())
	}
	for _, ev := range events {
		e.log.Info().
			Str("chain_id", c.ID).
			Str("from", string(ev.From)).
			Str("to", string(ev.To)).
			Str("actor", ev.Actor).
			Msg("chain transition")
	}
	return c, nil
}

// MarkNotified records that every participant has been told about a
// PROPOSED chain, moving it to PENDING.
func (e *Engine) MarkNotified(ctx context.Context, chainID string) (*barter.BarterChain, error) {
	return e.mutate(ctx, chainID, func(c *barter.BarterChain, now time.Time) ([]barter.ChainEvent, error) {
		from := c.Status
		if err := chain.Notify(c, now); err != nil {
			return nil, err
		}
		return []barter.ChainEvent{event(c, from, "", "notified", now)}, nil
	})
}

// RespondToProposal records userID's decision on a chain. A rejection
// ends the chain and releases every reservation regardless of how many
// participants had accepted; the last acceptance moves it to ACCEPTED.
func (e *Engine) RespondToProposal(ctx context.Context, chainID, userID string, accept bool, message string) (*barter.BarterChain, error) {
	return e.mutate(ctx, chainID, func(c *barter.BarterChain, now time.Time) ([]barter.ChainEvent, error) {
		from := c.Status
		if err := chain.Respond(c, userID, accept, message, now); err != nil {
			return nil, err
		}

		var events []barter.ChainEvent
		if from == barter.ChainProposed {
			events = append(events, barter.ChainEvent{
				ChainID: c.ID, From: barter.ChainProposed, To: barter.ChainPending, Note: "notified", At: now,
			})
			from = barter.ChainPending
		}
		note := "accepted"
		if !accept {
			note = "rejected"
		}
		return append(events, event(c, from, userID, note, now)), nil
	})
}

// CancelChain ends a chain on userID's request. Any participant may
// cancel before acceptance; once ACCEPTED only the initiator may, and an
// EXECUTING chain cannot be cancelled at all.
func (e *Engine) CancelChain(ctx context.Context, chainID, userID string) (*barter.BarterChain, error) {
	return e.mutate(ctx, chainID, func(c *barter.BarterChain, now time.Time) ([]barter.ChainEvent, error) {
		from := c.Status
		if err := chain.Cancel(c, userID, now); err != nil {
			return nil, err
		}
		return []barter.ChainEvent{event(c, from, userID, "cancelled", now)}, nil
	})
}

// ExpireChain moves a chain whose expiry has elapsed to EXPIRED and
// releases its reservations.
func (e *Engine) ExpireChain(ctx context.Context, chainID string) (*barter.BarterChain, error) {
	return e.mutate(ctx, chainID, func(c *barter.BarterChain, now time.Time) ([]barter.ChainEvent, error) {
		from := c.Status
		if err := chain.Expire(c, now); err != nil {
			return nil, err
		}
		return []barter.ChainEvent{event(c, from, "", "expired", now)}, nil
	})
}

// ExpireDue is the sweep an external scheduler runs: it expires every
// chain whose expiry has elapsed. Chains that moved on concurrently are
// skipped.
func (e *Engine) ExpireDue(ctx context.Context) ([]*barter.BarterChain, error) {
	open, err := e.chains.ListChains(ctx, barter.ChainProposed, barter.ChainPending, barter.ChainAccepted)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var expired []*barter.BarterChain
	for _, c := range open {
		if !chain.IsExpired(c, now) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		done, err := e.ExpireChain(ctx, c.ID)
		switch {
		case err == nil:
			expired = append(expired, done)
		case barter.IsConcurrencyConflict(err), barter.Is(err, barter.ErrCodeInvalidTransition):
			e.log.Debug().Err(err).Str("chain_id", c.ID).Msg("skip expiry")
		default:
			return expired, err
		}
	}
	return expired, nil
}
