package engine

import (
	"context"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/graph"
	"github.com/roach88/swapchain/internal/search"
)

// resolve fills zero constraint fields from the engine limits. A cash cap
// may only tighten the engine's, since ProposeChain enforces the latter.
func (e *Engine) resolve(cons barter.Constraints) (barter.Constraints, error) {
	if cons.MaxChainLength == 0 {
		cons.MaxChainLength = e.limits.MaxChainLength
	}
	if cons.MaxChainLength < barter.MinChainLength {
		return cons, barter.NewError(barter.ErrCodeInvalidCandidate,
			"max chain length %d is below %d", cons.MaxChainLength, barter.MinChainLength)
	}
	if cons.MaxCashDifference.IsNegative() {
		return cons, barter.NewError(barter.ErrCodeInvalidCandidate,
			"max cash difference %s is negative", cons.MaxCashDifference.String())
	}
	if cons.MaxCashDifference.IsZero() || cons.MaxCashDifference.GreaterThan(e.limits.MaxCashDifference) {
		cons.MaxCashDifference = e.limits.MaxCashDifference
	}
	if cons.TopK <= 0 {
		cons.TopK = e.limits.TopK
	}
	if cons.MaxCandidates <= 0 {
		cons.MaxCandidates = e.limits.MaxCandidates
	}
	return cons, nil
}

// FindChains searches for barter chains that move focalItemID away from
// its owner. Every returned candidate is priced and within the cash cap.
// The search is read-only.
func (e *Engine) FindChains(ctx context.Context, focalItemID string, cons barter.Constraints) ([]barter.ChainCandidate, error) {
	cons, err := e.resolve(cons)
	if err != nil {
		return nil, err
	}

	g, err := e.builder.Build(ctx, focalItemID, graph.Options{
		MaxChainLength: cons.MaxChainLength,
		TopK:           cons.TopK,
		MaxNodes:       e.limits.MaxNodes,
		Region:         cons.Region,
		Concurrency:    e.limits.Concurrency,
	})
	if err != nil {
		return nil, err
	}

	out, stats, err := e.search.Enumerate(ctx, g, search.Options{
		MaxChainLength:    cons.MaxChainLength,
		MaxCashDifference: cons.MaxCashDifference,
		MaxCandidates:     cons.MaxCandidates,
		StepBudget:        e.limits.StepBudget,
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Str("item_id", focalItemID).
		Int("nodes", g.Len()).
		Int("steps", stats.Steps).
		Int("paths", stats.Paths).
		Int("rejected", stats.Rejected).
		Int("candidates", len(out)).
		Msg("chains found")
	return out, nil
}
