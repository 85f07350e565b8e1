// Package validate re-checks a chain against live directory state right
// before execution.
package validate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

// Issue codes.
const (
	IssueNotAccepted  = "NOT_ACCEPTED"
	IssueItemMissing  = "ITEM_MISSING"
	IssueNotReserved  = "ITEM_NOT_RESERVED"
	IssueOwnerChanged = "ITEM_OWNER_CHANGED"
	IssueNotEligible  = "ITEM_NOT_ELIGIBLE"
	IssueValueDrift   = "VALUE_DRIFT"
)

// DefaultTolerance is the relative value drift accepted without blocking.
var DefaultTolerance = decimal.NewFromFloat(0.05)

// Validator checks reservations, acceptances and value freshness.
type Validator struct {
	items     directory.ItemDirectory
	tolerance decimal.Decimal
	log       zerolog.Logger
}

// New creates a Validator. A non-positive tolerance means DefaultTolerance.
func New(items directory.ItemDirectory, tolerance decimal.Decimal, log zerolog.Logger) *Validator {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Validator{items: items, tolerance: tolerance, log: log}
}

// Tolerance returns the configured drift tolerance.
func (v *Validator) Tolerance() decimal.Decimal {
	return v.tolerance
}

// Validate inspects every participant of c. Findings are reported in the
// result; the error is non-nil only when the directory could not be read.
func (v *Validator) Validate(ctx context.Context, c *barter.BarterChain) (barter.ValidationResult, error) {
	res := barter.ValidationResult{
		ChainID:  c.ID,
		Errors:   []barter.ValidationIssue{},
		Warnings: []barter.ValidationIssue{},
	}

	for _, p := range c.Participants {
		if p.Status != barter.ParticipantAccepted {
			res.Errors = append(res.Errors, barter.ValidationIssue{
				Code:    IssueNotAccepted,
				UserID:  p.UserID,
				Message: fmt.Sprintf("participant is %s", p.Status),
			})
		}
		if p.GivingItemID == "" {
			continue
		}

		errs, warns, err := v.checkItem(ctx, c.ID, p)
		if err != nil {
			return res, err
		}
		res.Errors = append(res.Errors, errs...)
		res.Warnings = append(res.Warnings, warns...)
	}

	res.IsValid = len(res.Errors) == 0
	v.log.Debug().
		Str("chain_id", c.ID).
		Bool("valid", res.IsValid).
		Int("errors", len(res.Errors)).
		Int("warnings", len(res.Warnings)).
		Msg("chain validated")
	return res, nil
}

func (v *Validator) checkItem(ctx context.Context, chainID string, p barter.ChainParticipant) (errs, warns []barter.ValidationIssue, err error) {
	issue := func(code, format string, args ...any) barter.ValidationIssue {
		return barter.ValidationIssue{Code: code, UserID: p.UserID, ItemID: p.GivingItemID, Message: fmt.Sprintf(format, args...)}
	}

	it, err := v.items.GetItem(ctx, p.GivingItemID)
	if errors.Is(err, directory.ErrNotFound) {
		return []barter.ValidationIssue{issue(IssueItemMissing, "item no longer listed")}, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("validate item %s: %w", p.GivingItemID, err)
	}

	if it.Status != barter.ItemReserved || it.ReservationTag != chainID {
		errs = append(errs, issue(IssueNotReserved, "item is %s under %q", it.Status, it.ReservationTag))
	}
	if it.OwnerID != p.UserID {
		errs = append(errs, issue(IssueOwnerChanged, "item now owned by %s", it.OwnerID))
	}
	if !it.BarterEligible {
		errs = append(errs, issue(IssueNotEligible, "item withdrawn from barter"))
	}

	drift := Drift(p.GivingValue, it.EstimatedValue)
	switch {
	case drift.GreaterThan(v.tolerance):
		errs = append(errs, issue(IssueValueDrift, "value moved from %s to %s, beyond tolerance %s",
			p.GivingValue.StringFixed(barter.MoneyPlaces), it.EstimatedValue.StringFixed(barter.MoneyPlaces), v.tolerance.String()))
	case drift.IsPositive():
		warns = append(warns, issue(IssueValueDrift, "value moved from %s to %s",
			p.GivingValue.StringFixed(barter.MoneyPlaces), it.EstimatedValue.StringFixed(barter.MoneyPlaces)))
	}
	return errs, warns, nil
}

// Drift is the relative change from proposed to current. Any change away
// from a zero proposed value is at least 1.
func Drift(proposed, current decimal.Decimal) decimal.Decimal {
	diff := barter.Money(current).Sub(barter.Money(proposed)).Abs()
	if diff.IsZero() {
		return decimal.Zero
	}
	if !proposed.IsPositive() {
		return decimal.NewFromInt(1).Add(diff)
	}
	return diff.Div(proposed)
}

// AsError converts a failed result into a VALIDATION_FAILED error.
func AsError(res barter.ValidationResult) error {
	if res.IsValid {
		return nil
	}
	err := barter.NewError(barter.ErrCodeValidationFailed, "%d blocking validation errors", len(res.Errors)).WithChain(res.ChainID)
	err.Details = res.Errors
	return err
}
