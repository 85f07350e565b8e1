package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/swapchain/internal/directory"
	"github.com/roach88/swapchain/internal/engine"
)

// AssertionContext provides access to final state for assertions.
type AssertionContext struct {
	Ctx       context.Context
	Engine    *engine.Engine
	Directory *directory.Memory

	// Chain is the default chain for chain assertions.
	Chain string
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s) failed: %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertItem:
		return assertItem(a, actx)
	case AssertBalance:
		return assertBalance(a, actx)
	case AssertChainStatus:
		return assertChainStatus(a, actx)
	case AssertEventOrder:
		return assertEventOrder(a, actx)
	case AssertJournal:
		return assertJournal(a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertItem(a Assertion, actx *AssertionContext) error {
	it, err := actx.Directory.GetItem(actx.Ctx, a.Item)
	if err != nil {
		return err
	}
	if a.Owner != "" && it.OwnerID != a.Owner {
		return fmt.Errorf("item %s: expected owner %s, got %s", a.Item, a.Owner, it.OwnerID)
	}
	if a.Status != "" && string(it.Status) != a.Status {
		return fmt.Errorf("item %s: expected status %s, got %s", a.Item, a.Status, it.Status)
	}
	return nil
}

func assertBalance(a Assertion, actx *AssertionContext) error {
	want, err := amount(a.Amount)
	if err != nil {
		return err
	}
	got := actx.Directory.Balance(a.User)
	if !got.Equal(want) {
		return fmt.Errorf("user %s: expected balance %s, got %s", a.User, want, got)
	}
	return nil
}

func chainID(a Assertion, actx *AssertionContext) (string, error) {
	if a.Chain != "" {
		return a.Chain, nil
	}
	if actx.Chain == "" {
		return "", fmt.Errorf("no chain was proposed")
	}
	return actx.Chain, nil
}

func assertChainStatus(a Assertion, actx *AssertionContext) error {
	id, err := chainID(a, actx)
	if err != nil {
		return err
	}
	c, err := actx.Engine.GetChain(actx.Ctx, id)
	if err != nil {
		return err
	}
	if string(c.Status) != a.Status {
		return fmt.Errorf("chain %s: expected status %s, got %s", id, a.Status, c.Status)
	}
	return nil
}

// assertEventOrder requires Statuses to appear, in order, among the target
// statuses of the chain's events. Other events may be interleaved.
func assertEventOrder(a Assertion, actx *AssertionContext) error {
	id, err := chainID(a, actx)
	if err != nil {
		return err
	}
	events, err := actx.Engine.ChainEvents(actx.Ctx, id)
	if err != nil {
		return err
	}

	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = string(ev.To)
	}
	next := 0
	for _, s := range got {
		if next < len(a.Statuses) && s == a.Statuses[next] {
			next++
		}
	}
	if next < len(a.Statuses) {
		return fmt.Errorf("chain %s: expected %s in order, got %s; missing %s",
			id, strings.Join(a.Statuses, ", "), strings.Join(got, ", "), a.Statuses[next])
	}
	return nil
}

func assertJournal(a Assertion, actx *AssertionContext) error {
	j := actx.Directory.Journal()
	if a.Count != nil && len(j) != *a.Count {
		return fmt.Errorf("expected %d journal entries, got %d", *a.Count, len(j))
	}
	if a.Sum != "" {
		want, err := amount(a.Sum)
		if err != nil {
			return err
		}
		if got := directory.SumEntries(j); !got.Equal(want) {
			return fmt.Errorf("expected journal sum %s, got %s", want, got)
		}
	}
	return nil
}
