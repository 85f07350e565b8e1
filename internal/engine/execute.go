package engine

import (
	"context"
	"errors"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/chain"
	"github.com/roach88/swapchain/internal/store"
	"github.com/roach88/swapchain/internal/validate"
)

// ValidateChain re-checks a chain against the live directory. It changes
// nothing.
func (e *Engine) ValidateChain(ctx context.Context, chainID string) (barter.ValidationResult, error) {
	c, err := e.chains.GetChain(ctx, chainID)
	if err != nil {
		return barter.ValidationResult{}, err
	}
	return e.validator.Validate(ctx, c)
}

// ExecuteChain commits an ACCEPTED chain under attemptID. An empty
// attemptID is replaced by a generated one.
//
// Repeating a completed attempt returns the stored result without
// touching the directory or the wallet. Before anything moves the chain
// must be executable and pass the validator; otherwise the call fails
// with no state change. Once EXECUTING, the transfer either completes
// together with the chain record or is rolled back, and the chain returns
// to ACCEPTED with the failure attached.
func (e *Engine) ExecuteChain(ctx context.Context, chainID, attemptID string) (barter.ExecutionResult, error) {
	if attemptID == "" {
		attemptID = e.ids.NewID()
	}

	unlock := e.locks.Lock(chainID)
	defer unlock()

	prior, ok, err := e.chains.GetExecution(ctx, attemptID)
	if err != nil {
		return barter.ExecutionResult{}, err
	}
	if ok {
		if prior.ChainID != chainID {
			return barter.ExecutionResult{}, barter.NewError(barter.ErrCodeInvalidTransition,
				"attempt %s belongs to chain %s", attemptID, prior.ChainID).WithChain(chainID)
		}
		e.log.Debug().Str("chain_id", chainID).Str("attempt_id", attemptID).Msg("execution replayed")
		return prior, nil
	}

	c, err := e.load(ctx, chainID)
	if err != nil {
		return barter.ExecutionResult{}, err
	}
	if c.Status == barter.ChainCompleted {
		return barter.ExecutionResult{}, barter.NewError(barter.ErrCodeInvalidTransition,
			"chain already completed under attempt %s", c.ExecutionAttemptID).WithChain(c.ID)
	}

	now := e.now()
	if err := chain.CheckExecutable(c, now); err != nil {
		return barter.ExecutionResult{}, err
	}
	vr, err := e.validator.Validate(ctx, c)
	if err != nil {
		return barter.ExecutionResult{}, err
	}
	if err := validate.AsError(vr); err != nil {
		return barter.ExecutionResult{}, err
	}
	for _, w := range vr.Warnings {
		e.log.Warn().Str("chain_id", c.ID).Str("code", w.Code).Str("item_id", w.ItemID).Msg(w.Message)
	}

	if err := chain.BeginExecution(c, now); err != nil {
		return barter.ExecutionResult{}, err
	}
	begin := store.ChainWrite{Events: []barter.ChainEvent{event(c, barter.ChainAccepted, "", "attempt "+attemptID, now)}}
	if err := e.chains.UpdateChain(ctx, c, begin); err != nil {
		return barter.ExecutionResult{}, err
	}

	commit := func(ctx context.Context, res barter.ExecutionResult) error {
		done := c.Clone()
		if err := chain.Complete(&done, attemptID, res.CompletedAt); err != nil {
			return err
		}
		w := store.ChainWrite{
			Events:    []barter.ChainEvent{event(&done, barter.ChainExecuting, "", "attempt "+attemptID, res.CompletedAt)},
			Execution: &res,
		}
		if err := e.chains.UpdateChain(ctx, &done, w); err != nil {
			return err
		}
		*c = done
		return nil
	}

	res, err := e.exec.Execute(ctx, c, attemptID, now, commit)
	if err == nil {
		return res, nil
	}

	// The saga has already undone the transfer; put the record back.
	if res.Failure == nil {
		return res, err
	}
	rctx := context.WithoutCancel(ctx)
	at := e.now()
	if rerr := chain.Revert(c, *res.Failure, at); rerr != nil {
		return res, errors.Join(err, rerr)
	}
	revert := store.ChainWrite{Events: []barter.ChainEvent{event(c, barter.ChainExecuting, "", res.Failure.Step+" failed", at)}}
	if uerr := e.chains.UpdateChain(rctx, c, revert); uerr != nil {
		e.log.Error().Err(uerr).Str("chain_id", c.ID).Str("attempt_id", attemptID).Msg("chain left EXECUTING after rollback")
		return res, errors.Join(err, uerr)
	}
	return res, err
}
