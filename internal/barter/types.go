package barter

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the fixed-point scale for all monetary values.
const MoneyPlaces = 2

// Epsilon is the tolerance for the cash conservation check.
var Epsilon = decimal.New(1, -MoneyPlaces)

// Money rounds a decimal to the fixed-point scale.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// ItemStatus is the availability state of an item.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemReserved  ItemStatus = "RESERVED"
	ItemLocked    ItemStatus = "LOCKED"
	ItemTraded    ItemStatus = "TRADED"
)

// Item is a snapshot of a directory item record.
type Item struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	CategoryID     string          `json:"category_id"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Status         ItemStatus      `json:"status"`
	ReservationTag string          `json:"reservation_tag,omitempty"`
	BarterEligible bool            `json:"barter_eligible"`
	Region         string          `json:"region,omitempty"`
}

// Tradable reports whether the item may enter a new chain.
func (it Item) Tradable() bool {
	return it.BarterEligible && it.Status == ItemAvailable
}

// ChainType distinguishes closed cycles from cash-terminated lines.
type ChainType string

const (
	ChainCycle  ChainType = "CYCLE"
	ChainLinear ChainType = "LINEAR"
)

// Constraints bound a single search.
type Constraints struct {
	MaxChainLength    int             `json:"max_chain_length"`
	MaxCashDifference decimal.Decimal `json:"max_cash_difference"`
	Region            string          `json:"region,omitempty"`
	TopK              int             `json:"top_k,omitempty"`
	MaxCandidates     int             `json:"max_candidates,omitempty"`
}

// MinChainLength is the smallest chain the engine will consider.
const MinChainLength = 2

// Slot is one participant's position in a candidate.
type Slot struct {
	UserID          string          `json:"user_id"`
	GivingItemID    string          `json:"giving_item_id,omitempty"`
	GivingValue     decimal.Decimal `json:"giving_value"`
	ReceivingItemID string          `json:"receiving_item_id,omitempty"`
	ReceivingValue  decimal.Decimal `json:"receiving_value"`

	// Delta is received value minus given value.
	Delta decimal.Decimal `json:"delta"`

	// CashFlow is positive when the participant receives cash.
	CashFlow decimal.Decimal `json:"cash_flow"`
}

// ChainCandidate is an ephemeral search result.
type ChainCandidate struct {
	Fingerprint   string          `json:"fingerprint"`
	Type          ChainType       `json:"chain_type"`
	Slots         []Slot          `json:"slots"`
	TotalValue    decimal.Decimal `json:"total_value"`
	FairnessScore float64         `json:"fairness_score"`
}

// Len returns the number of participants.
func (c ChainCandidate) Len() int {
	return len(c.Slots)
}

// ParticipantIDs returns user ids in slot order.
func (c ChainCandidate) ParticipantIDs() []string {
	ids := make([]string, len(c.Slots))
	for i, s := range c.Slots {
		ids[i] = s.UserID
	}
	return ids
}

// CashSum returns the sum of all cash flows. Zero for a valid candidate.
func (c ChainCandidate) CashSum() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range c.Slots {
		sum = sum.Add(s.CashFlow)
	}
	return sum
}

// ChainStatus is the lifecycle state of a persisted chain.
type ChainStatus string

const (
	ChainProposed  ChainStatus = "PROPOSED"
	ChainPending   ChainStatus = "PENDING"
	ChainAccepted  ChainStatus = "ACCEPTED"
	ChainExecuting ChainStatus = "EXECUTING"
	ChainCompleted ChainStatus = "COMPLETED"
	ChainRejected  ChainStatus = "REJECTED"
	ChainCancelled ChainStatus = "CANCELLED"
	ChainExpired   ChainStatus = "EXPIRED"
)

// IsTerminal reports whether no further transition is possible.
func (s ChainStatus) IsTerminal() bool {
	switch s {
	case ChainCompleted, ChainRejected, ChainCancelled, ChainExpired:
		return true
	}
	return false
}

// ParticipantStatus is a participant's acceptance sub-state.
type ParticipantStatus string

const (
	ParticipantPending   ParticipantStatus = "PENDING"
	ParticipantAccepted  ParticipantStatus = "ACCEPTED"
	ParticipantRejected  ParticipantStatus = "REJECTED"
	ParticipantCompleted ParticipantStatus = "COMPLETED"
)

// ChainParticipant is one slot of a persisted chain.
type ChainParticipant struct {
	Position        int               `json:"position"`
	UserID          string            `json:"user_id"`
	GivingItemID    string            `json:"giving_item_id,omitempty"`
	GivingValue     decimal.Decimal   `json:"giving_value"`
	ReceivingItemID string            `json:"receiving_item_id,omitempty"`
	ReceivingValue  decimal.Decimal   `json:"receiving_value"`
	CashBalance     decimal.Decimal   `json:"cash_balance"`
	Status          ParticipantStatus `json:"status"`
	Message         string            `json:"message,omitempty"`
	RespondedAt     *time.Time        `json:"responded_at,omitempty"`
}

// FailureReason records why the last execution attempt was rolled back.
type FailureReason struct {
	Code      ErrorCode `json:"code"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	ItemID    string    `json:"item_id,omitempty"`
	AttemptID string    `json:"attempt_id"`
	At        time.Time `json:"at"`
}

// BarterChain is the persisted chain aggregate.
type BarterChain struct {
	ID            string             `json:"id"`
	Type          ChainType          `json:"chain_type"`
	Status        ChainStatus        `json:"status"`
	CreatedBy     string             `json:"created_by"`
	Fingerprint   string             `json:"fingerprint"`
	TotalValue    decimal.Decimal    `json:"total_value"`
	FairnessScore float64            `json:"fairness_score"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	ExpiresAt     time.Time          `json:"expires_at"`
	Version       int64              `json:"version"`
	Participants  []ChainParticipant `json:"participants"`
	LastFailure   *FailureReason     `json:"last_failure,omitempty"`

	// ExecutionAttemptID is set once the chain completes.
	ExecutionAttemptID string `json:"execution_attempt_id,omitempty"`
}

// Participant returns the index of userID's slot.
func (c *BarterChain) Participant(userID string) (int, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return i, true
		}
	}
	return -1, false
}

// AllAccepted reports whether every participant has accepted.
func (c *BarterChain) AllAccepted() bool {
	for _, p := range c.Participants {
		if p.Status != ParticipantAccepted {
			return false
		}
	}
	return len(c.Participants) > 0
}

// GivingItemIDs returns every item this chain holds a reservation on.
func (c *BarterChain) GivingItemIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.GivingItemID != "" {
			ids = append(ids, p.GivingItemID)
		}
	}
	return ids
}

// RecipientOf returns the position that receives slot i's item, or -1.
func (c *BarterChain) RecipientOf(i int) int {
	return Recipient(c.Type, i, len(c.Participants))
}

// Clone returns a deep copy, so transitions never alias stored state.
func (c BarterChain) Clone() BarterChain {
	out := c
	out.Participants = make([]ChainParticipant, len(c.Participants))
	for i, p := range c.Participants {
		if p.RespondedAt != nil {
			t := *p.RespondedAt
			p.RespondedAt = &t
		}
		out.Participants[i] = p
	}
	if c.LastFailure != nil {
		f := *c.LastFailure
		out.LastFailure = &f
	}
	return out
}

// Recipient returns the slot that receives slot i's item in a chain of
// length n, or -1 when slot i hands over nothing.
func Recipient(t ChainType, i, n int) int {
	if i < 0 || i >= n {
		return -1
	}
	if t == ChainCycle {
		return (i + 1) % n
	}
	return i - 1
}

// LedgerEntry is one leg of a cash settlement. Positive amounts credit
// the account.
type LedgerEntry struct {
	ID        string          `json:"id"`
	AttemptID string          `json:"attempt_id"`
	ChainID   string          `json:"chain_id"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// OwnershipTransfer records one item changing hands.
type OwnershipTransfer struct {
	ItemID     string `json:"item_id"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

// ExecutionResult is the stored outcome of an execution attempt.
type ExecutionResult struct {
	AttemptID   string              `json:"attempt_id"`
	ChainID     string              `json:"chain_id"`
	Status      ChainStatus         `json:"status"`
	Transfers   []OwnershipTransfer `json:"transfers"`
	Entries     []LedgerEntry       `json:"entries"`
	CompletedAt time.Time           `json:"completed_at"`
	Failure     *FailureReason      `json:"failure,omitempty"`
}

// ValidationIssue is one finding of the pre-execution validator.
type ValidationIssue struct {
	Code    string `json:"code"`
	UserID  string `json:"user_id,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is the output of the pre-execution validator.
type ValidationResult struct {
	ChainID  string            `json:"chain_id"`
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

// ChainEvent is an audit record of a status transition.
type ChainEvent struct {
	Seq     int64       `json:"seq"`
	ChainID string      `json:"chain_id"`
	From    ChainStatus `json:"from"`
	To      ChainStatus `json:"to"`
	Actor   string      `json:"actor,omitempty"`
	Note    string      `json:"note,omitempty"`
	At      time.Time   `json:"at"`
}
