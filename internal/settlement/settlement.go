// Package settlement prices chain candidates: per-slot value deltas, the
// cash transfers that cancel them, and a normalized fairness score.
//
// The cash cap is a hard filter applied before scoring. A candidate that
// fails any check is returned as an INVALID_CANDIDATE error and must
// never reach persistence.
package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/canonical"
)

var two = decimal.NewFromInt(2)

// Settle computes deltas, cash flows, total value, fairness score and
// fingerprint for c. The input is not modified.
//
// For each slot: delta = received value - given value, and
// cashFlow = -delta, so a participant who receives more value pays the
// difference and one who gives more is paid it.
func Settle(c barter.ChainCandidate, maxCash decimal.Decimal) (barter.ChainCandidate, error) {
	if err := CheckShape(c); err != nil {
		return c, err
	}

	out := c
	out.Slots = make([]barter.Slot, len(c.Slots))

	total := decimal.Zero
	absSum := decimal.Zero
	for i, s := range c.Slots {
		s.GivingValue = barter.Money(s.GivingValue)
		s.ReceivingValue = barter.Money(s.ReceivingValue)
		if s.GivingItemID == "" {
			s.GivingValue = decimal.Zero
		}
		if s.ReceivingItemID == "" {
			s.ReceivingValue = decimal.Zero
		}
		s.Delta = s.ReceivingValue.Sub(s.GivingValue)
		s.CashFlow = s.Delta.Neg()

		if s.CashFlow.Abs().GreaterThan(maxCash) {
			return c, barter.NewError(barter.ErrCodeInvalidCandidate,
				"cash flow %s for %s exceeds max cash difference %s",
				s.CashFlow.StringFixed(barter.MoneyPlaces), s.UserID, maxCash.StringFixed(barter.MoneyPlaces)).WithUser(s.UserID)
		}

		total = total.Add(s.GivingValue)
		absSum = absSum.Add(s.Delta.Abs())
		out.Slots[i] = s
	}

	if sum := out.CashSum(); sum.Abs().GreaterThan(barter.Epsilon) {
		return c, barter.NewError(barter.ErrCodeInvalidCandidate,
			"cash flows sum to %s, not zero", sum.String())
	}

	out.TotalValue = total
	out.FairnessScore = Score(absSum, total)
	out.Fingerprint = Fingerprint(out)
	return out, nil
}

// Verify re-prices a candidate supplied from outside the search under
// maxCash and reports whether its settlement, score and fingerprint are
// the ones Settle would produce. Slot values are taken as given; callers
// check them against the directory.
func Verify(c barter.ChainCandidate, maxCash decimal.Decimal) (barter.ChainCandidate, error) {
	priced, err := Settle(c, maxCash)
	if err != nil {
		return c, err
	}
	for i, s := range priced.Slots {
		if !s.CashFlow.Equal(c.Slots[i].CashFlow) {
			return c, barter.NewError(barter.ErrCodeInvalidCandidate,
				"slot %d cash flow is %s, settlement requires %s",
				i, c.Slots[i].CashFlow.String(), s.CashFlow.StringFixed(barter.MoneyPlaces)).WithUser(s.UserID)
		}
	}
	if c.Fingerprint != "" && c.Fingerprint != priced.Fingerprint {
		return c, barter.NewError(barter.ErrCodeInvalidCandidate, "fingerprint does not match slots")
	}
	return priced, nil
}

// Score returns 1 - absDeltaSum / (2 * totalValue), clamped to [0, 1].
// A zero-value chain scores 1 only if nothing is out of balance.
func Score(absDeltaSum, totalValue decimal.Decimal) float64 {
	if !totalValue.IsPositive() {
		if absDeltaSum.IsZero() {
			return 1
		}
		return 0
	}
	score := decimal.NewFromInt(1).Sub(absDeltaSum.Div(totalValue.Mul(two)))
	if score.IsNegative() {
		return 0
	}
	if score.GreaterThan(decimal.NewFromInt(1)) {
		return 1
	}
	return score.Round(6).InexactFloat64()
}

// CheckShape verifies that slots hand items along the chain consistently.
func CheckShape(c barter.ChainCandidate) error {
	n := len(c.Slots)
	if n < barter.MinChainLength {
		return barter.NewError(barter.ErrCodeInvalidCandidate, "chain has %d participants, need at least %d", n, barter.MinChainLength)
	}
	seen := make(map[string]bool, n)
	items := make(map[string]bool, n)
	for i, s := range c.Slots {
		if s.UserID == "" {
			return barter.NewError(barter.ErrCodeInvalidCandidate, "slot %d has no participant", i)
		}
		if seen[s.UserID] {
			return barter.NewError(barter.ErrCodeInvalidCandidate, "participant %s appears twice", s.UserID).WithUser(s.UserID)
		}
		seen[s.UserID] = true
		if s.GivingItemID != "" {
			if items[s.GivingItemID] {
				return barter.NewError(barter.ErrCodeInvalidCandidate, "item %s given twice", s.GivingItemID).WithItem(s.GivingItemID)
			}
			items[s.GivingItemID] = true
		}
	}

	switch c.Type {
	case barter.ChainCycle:
		for i, s := range c.Slots {
			if s.GivingItemID == "" || s.ReceivingItemID == "" {
				return barter.NewError(barter.ErrCodeInvalidCandidate, "cycle slot %d must give and receive an item", i)
			}
		}
	case barter.ChainLinear:
		if c.Slots[0].GivingItemID != "" {
			return barter.NewError(barter.ErrCodeInvalidCandidate, "linear origin must not give an item")
		}
		if c.Slots[n-1].ReceivingItemID != "" {
			return barter.NewError(barter.ErrCodeInvalidCandidate, "linear tail must not receive an item")
		}
		if c.Slots[n-1].GivingItemID == "" {
			return barter.NewError(barter.ErrCodeInvalidCandidate, "linear tail must give an item")
		}
		for i := 1; i < n-1; i++ {
			if c.Slots[i].GivingItemID == "" || c.Slots[i].ReceivingItemID == "" {
				return barter.NewError(barter.ErrCodeInvalidCandidate, "linear slot %d must give and receive an item", i)
			}
		}
	default:
		return barter.NewError(barter.ErrCodeInvalidCandidate, "unknown chain type %q", c.Type)
	}

	for i, s := range c.Slots {
		r := barter.Recipient(c.Type, i, n)
		if r < 0 {
			continue
		}
		if c.Slots[r].ReceivingItemID != s.GivingItemID {
			return barter.NewError(barter.ErrCodeInvalidCandidate,
				"slot %d receives %q but slot %d gives %q", r, c.Slots[r].ReceivingItemID, i, s.GivingItemID)
		}
	}
	return nil
}

// Fingerprint is the content hash of a candidate's type and item routing.
// Values are excluded so a re-priced candidate keeps its identity.
func Fingerprint(c barter.ChainCandidate) string {
	slots := make([]any, len(c.Slots))
	for i, s := range c.Slots {
		slots[i] = map[string]any{
			"user":      s.UserID,
			"giving":    s.GivingItemID,
			"receiving": s.ReceivingItemID,
		}
	}
	return canonical.MustHash(canonical.DomainCandidate, map[string]any{
		"type":  string(c.Type),
		"slots": slots,
	})
}

// Describe renders a candidate in the direction goods move, as
// "a -> b -> c -> a (CYCLE)" or "a <- b <- c (LINEAR)".
func Describe(c barter.ChainCandidate) string {
	arrow := " -> "
	if c.Type == barter.ChainLinear {
		arrow = " <- "
	}
	s := ""
	for i, slot := range c.Slots {
		if i > 0 {
			s += arrow
		}
		s += slot.UserID
	}
	if c.Type == barter.ChainCycle && len(c.Slots) > 0 {
		s += " -> " + c.Slots[0].UserID
	}
	return fmt.Sprintf("%s (%s)", s, c.Type)
}
