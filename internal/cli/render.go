package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/settlement"
)

// Text renderers for human-readable output. JSON output encodes the
// engine types directly.

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}

func score(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderCandidates(focal string, cands []barter.ChainCandidate) string {
	if len(cands) == 0 {
		return fmt.Sprintf("No chains found for %s.", focal)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d chain(s) for %s:\n", len(cands), focal)
	for i, c := range cands {
		fmt.Fprintf(&b, "  [%d] %s  fairness %s  value %s  fp %s\n",
			i, settlement.Describe(c), score(c.FairnessScore), c.TotalValue, shortFingerprint(c.Fingerprint))
		for _, s := range c.Slots {
			fmt.Fprintf(&b, "      %-10s gives %-12s receives %-12s cash %s\n",
				s.UserID, orNone(s.GivingItemID), orNone(s.ReceivingItemID), signed(s.CashFlow))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderChain(c *barter.BarterChain) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chain %s (%s) %s\n", c.ID, c.Type, c.Status)
	fmt.Fprintf(&b, "  created by %s at %s, expires %s\n",
		c.CreatedBy, c.CreatedAt.UTC().Format(time.RFC3339), c.ExpiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  fairness %s  value %s  version %d\n", score(c.FairnessScore), c.TotalValue, c.Version)
	for _, p := range c.Participants {
		fmt.Fprintf(&b, "  %d. %-10s gives %-12s receives %-12s cash %-8s %s",
			p.Position, p.UserID, orNone(p.GivingItemID), orNone(p.ReceivingItemID), signed(p.CashBalance), p.Status)
		if p.Message != "" {
			fmt.Fprintf(&b, " %q", p.Message)
		}
		b.WriteString("\n")
	}
	if f := c.LastFailure; f != nil {
		fmt.Fprintf(&b, "  last failure: %s at %s step (attempt %s): %s\n", f.Code, f.Step, f.AttemptID, f.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEvents(events []barter.ChainEvent) string {
	var b strings.Builder
	b.WriteString("Events:\n")
	for _, ev := range events {
		from := string(ev.From)
		if from == "" {
			from = "(new)"
		}
		fmt.Fprintf(&b, "  %3d %s %s -> %s", ev.Seq, ev.At.UTC().Format(time.RFC3339), from, ev.To)
		if ev.Actor != "" {
			fmt.Fprintf(&b, " by %s", ev.Actor)
		}
		if ev.Note != "" {
			fmt.Fprintf(&b, " (%s)", ev.Note)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderValidation(v barter.ValidationResult) string {
	var b strings.Builder
	if v.IsValid {
		fmt.Fprintf(&b, "Chain %s is valid", v.ChainID)
	} else {
		fmt.Fprintf(&b, "Chain %s is invalid", v.ChainID)
	}
	for _, is := range v.Errors {
		fmt.Fprintf(&b, "\n  error   %s: %s", is.Code, is.Message)
	}
	for _, is := range v.Warnings {
		fmt.Fprintf(&b, "\n  warning %s: %s", is.Code, is.Message)
	}
	return b.String()
}

func renderExecution(r barter.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chain %s %s (attempt %s)", r.ChainID, r.Status, r.AttemptID)
	for _, t := range r.Transfers {
		fmt.Fprintf(&b, "\n  %s: %s -> %s", t.ItemID, t.FromUserID, t.ToUserID)
	}
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "\n  %s %s", e.AccountID, signed(e.Amount))
	}
	return b.String()
}

func renderChainList(chains []*barter.BarterChain) string {
	if len(chains) == 0 {
		return "No chains."
	}
	var b strings.Builder
	for _, c := range chains {
		fmt.Fprintf(&b, "%-14s %-8s %-10s %d participants, created by %s\n",
			c.ID, c.Type, c.Status, len(c.Participants), c.CreatedBy)
	}
	return strings.TrimRight(b.String(), "\n")
}
