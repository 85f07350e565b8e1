// Package execution commits an accepted chain as a saga over the item
// directory and the wallet service.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

// Step names recorded in failure reasons.
const (
	StepLock     = "lock"
	StepLedger   = "ledger"
	StepTransfer = "transfer"
	StepTrade    = "trade"
	StepCommit   = "commit"
)

// Commit durably records a successful result. It runs as the final step,
// so a failed commit rolls the whole transfer back.
type Commit func(ctx context.Context, res barter.ExecutionResult) error

// Coordinator performs the multi-party transfer. It does not change chain
// status; the caller applies the returned outcome to the chain record.
type Coordinator struct {
	items  directory.ItemDirectory
	wallet directory.Wallet
	log    zerolog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(items directory.ItemDirectory, wallet directory.Wallet, log zerolog.Logger) *Coordinator {
	return &Coordinator{items: items, wallet: wallet, log: log}
}

// Execute commits c under attemptID.
//
// Forward steps, each recording its compensation first:
//  1. Lock every giving item: RESERVED -> LOCKED under the chain id. This
//     re-confirms the reservation against last-instant directory changes.
//  2. Apply the cash settlement as one zero-sum ledger batch.
//  3. Hand each giving item to the slot that receives it.
//  4. Mark every item TRADED.
//  5. Run commit, if given, with the completed result.
//
// Cash is applied before any ownership moves. Compensations run in
// strict reverse order, so ownership is restored before cash is reversed
// and items end RESERVED under the chain id. The
// returned result then carries the failure reason and the error is an
// EXECUTION_FAILURE.
func (co *Coordinator) Execute(ctx context.Context, c *barter.BarterChain, attemptID string, now time.Time, commit Commit) (barter.ExecutionResult, error) {
	log := co.log.With().Str("chain_id", c.ID).Str("attempt_id", attemptID).Logger()
	s := &saga{log: log}

	res := barter.ExecutionResult{
		AttemptID: attemptID,
		ChainID:   c.ID,
		Transfers: Transfers(c),
		Entries:   Entries(c, attemptID),
	}

	fail := func(step, itemID string, err error) (barter.ExecutionResult, error) {
		failed := s.rollback(context.WithoutCancel(ctx))
		msg := err.Error()
		if failed > 0 {
			msg = fmt.Sprintf("%s (%d compensations failed)", msg, failed)
		}
		res.Status = barter.ChainAccepted
		res.Failure = &barter.FailureReason{
			Code:      barter.ErrCodeExecutionFailure,
			Step:      step,
			Message:   msg,
			ItemID:    itemID,
			AttemptID: attemptID,
			At:        now,
		}
		log.Warn().Err(err).Str("step", step).Str("item_id", itemID).Int("compensation_failures", failed).Msg("execution rolled back")
		return res, barter.NewError(barter.ErrCodeExecutionFailure, "%s step failed", step).WithChain(c.ID).WithItem(itemID).Wrap(err)
	}

	// 1. lock
	for _, id := range c.GivingItemIDs() {
		id := id
		err := s.run(ctx, StepLock, id,
			func(ctx context.Context) error {
				_, err := co.items.CompareAndSwapStatus(ctx, id, barter.ItemReserved, barter.ItemLocked, c.ID)
				return err
			},
			func(ctx context.Context) error {
				_, err := co.items.CompareAndSwapStatus(ctx, id, barter.ItemLocked, barter.ItemReserved, c.ID)
				return err
			})
		if err != nil {
			return fail(StepLock, id, err)
		}
	}

	// 2. ledger
	if sum := directory.SumEntries(res.Entries); !sum.IsZero() {
		return fail(StepLedger, "", fmt.Errorf("settlement sums to %s: %w", sum, directory.ErrUnbalanced))
	}
	if len(res.Entries) > 0 {
		err := s.run(ctx, StepLedger, c.ID,
			func(ctx context.Context) error { return co.wallet.ApplyLedgerEntries(ctx, res.Entries) },
			func(ctx context.Context) error { return co.wallet.ReverseLedgerEntries(ctx, res.Entries) })
		if err != nil {
			return fail(StepLedger, "", err)
		}
	}

	// 3. transfer
	for _, t := range res.Transfers {
		t := t
		err := s.run(ctx, StepTransfer, t.ItemID,
			func(ctx context.Context) error {
				return co.items.TransferOwnership(ctx, t.ItemID, t.FromUserID, t.ToUserID, c.ID)
			},
			func(ctx context.Context) error {
				return co.items.TransferOwnership(ctx, t.ItemID, t.ToUserID, t.FromUserID, c.ID)
			})
		if err != nil {
			return fail(StepTransfer, t.ItemID, err)
		}
	}

	// 4. trade
	for _, id := range c.GivingItemIDs() {
		id := id
		err := s.run(ctx, StepTrade, id,
			func(ctx context.Context) error {
				_, err := co.items.CompareAndSwapStatus(ctx, id, barter.ItemLocked, barter.ItemTraded, c.ID)
				return err
			},
			func(ctx context.Context) error {
				_, err := co.items.CompareAndSwapStatus(ctx, id, barter.ItemTraded, barter.ItemLocked, c.ID)
				return err
			})
		if err != nil {
			return fail(StepTrade, id, err)
		}
	}

	res.Status = barter.ChainCompleted
	res.CompletedAt = now

	// 5. commit
	if commit != nil {
		if err := commit(ctx, res); err != nil {
			res.CompletedAt = time.Time{}
			return fail(StepCommit, "", err)
		}
	}

	log.Info().Int("transfers", len(res.Transfers)).Int("entries", len(res.Entries)).Msg("chain executed")
	return res, nil
}

// Transfers lists the ownership changes c implies, in slot order.
func Transfers(c *barter.BarterChain) []barter.OwnershipTransfer {
	out := make([]barter.OwnershipTransfer, 0, len(c.Participants))
	for i, p := range c.Participants {
		r := c.RecipientOf(i)
		if p.GivingItemID == "" || r < 0 {
			continue
		}
		out = append(out, barter.OwnershipTransfer{
			ItemID:     p.GivingItemID,
			FromUserID: p.UserID,
			ToUserID:   c.Participants[r].UserID,
		})
	}
	return out
}

// Entries builds the settlement batch: one entry per participant with a
// non-zero cash balance. Entry ids are derived from the attempt id so a
// retried batch is recognised by the wallet.
func Entries(c *barter.BarterChain, attemptID string) []barter.LedgerEntry {
	out := make([]barter.LedgerEntry, 0, len(c.Participants))
	for _, p := range c.Participants {
		amt := barter.Money(p.CashBalance)
		if amt.IsZero() {
			continue
		}
		out = append(out, barter.LedgerEntry{
			ID:        fmt.Sprintf("%s/%d", attemptID, p.Position),
			AttemptID: attemptID,
			ChainID:   c.ID,
			AccountID: p.UserID,
			Amount:    amt,
		})
	}
	return out
}
