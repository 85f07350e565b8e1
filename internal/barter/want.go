package barter

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// WantCriteria describes what a participant will accept in exchange.
//
// A criteria with DesiredItemID set matches that item only. Otherwise the
// item must be in DesiredCategoryID and its value within [MinValue, MaxValue].
// A zero MaxValue means no upper bound.
type WantCriteria struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	DesiredItemID     string          `json:"desired_item_id,omitempty"`
	DesiredCategoryID string          `json:"desired_category_id,omitempty"`
	MinValue          decimal.Decimal `json:"min_value"`
	MaxValue          decimal.Decimal `json:"max_value"`
	Region            string          `json:"region,omitempty"`
}

// Accepts reports whether it satisfies the criteria. A participant never
// wants their own item.
func (w WantCriteria) Accepts(it Item) bool {
	if it.OwnerID == w.OwnerID {
		return false
	}
	if w.DesiredItemID != "" {
		return it.ID == w.DesiredItemID
	}
	if w.DesiredCategoryID == "" || !SameCategory(w.DesiredCategoryID, it.CategoryID) {
		return false
	}
	return w.InRange(it.EstimatedValue)
}

// InRange reports whether v falls within the value range.
func (w WantCriteria) InRange(v decimal.Decimal) bool {
	if v.LessThan(w.MinValue) {
		return false
	}
	if !w.MaxValue.IsZero() && v.GreaterThan(w.MaxValue) {
		return false
	}
	return true
}

// Target is the value the criteria is centred on: the midpoint of a
// bounded range, otherwise the minimum.
func (w WantCriteria) Target() decimal.Decimal {
	if w.MaxValue.IsZero() {
		return w.MinValue
	}
	return w.MinValue.Add(w.MaxValue).Div(decimal.NewFromInt(2))
}

// Proximity ranks how well it fits the criteria. Lower is better; an
// exact item match is always 0.
func (w WantCriteria) Proximity(it Item) decimal.Decimal {
	if w.DesiredItemID != "" && w.DesiredItemID == it.ID {
		return decimal.Zero
	}
	return it.EstimatedValue.Sub(w.Target()).Abs()
}

// NormalizeCategory returns the comparison form of a category id.
// A Caser is not safe for concurrent use, so one is built per call.
func NormalizeCategory(id string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(id)))
}

// SameCategory compares category ids after NFC normalization and case folding.
func SameCategory(a, b string) bool {
	return NormalizeCategory(a) == NormalizeCategory(b)
}

// AcceptsAny reports whether any of wants accepts it.
func AcceptsAny(wants []WantCriteria, it Item) bool {
	for _, w := range wants {
		if w.Accepts(it) {
			return true
		}
	}
	return false
}
