// Package chain implements the barter chain lifecycle.
//
// The functions here are pure: they check a transition against the table
// below and mutate the chain aggregate in place. Durability, locking and
// item reservations belong to the engine.
//
//	PROPOSED  -> PENDING                  all participants notified
//	PENDING   -> REJECTED                 any participant rejects
//	PENDING   -> ACCEPTED                 all participants accept
//	PROPOSED, PENDING, ACCEPTED -> EXPIRED
//	PROPOSED, PENDING, ACCEPTED -> CANCELLED
//	ACCEPTED  -> EXECUTING                validator passed
//	EXECUTING -> COMPLETED                all transfers committed
//	EXECUTING -> ACCEPTED                 rolled back, failure attached
package chain

import (
	"time"

	"github.com/roach88/swapchain/internal/barter"
)

var transitions = map[barter.ChainStatus][]barter.ChainStatus{
	barter.ChainProposed:  {barter.ChainPending, barter.ChainExpired, barter.ChainCancelled},
	barter.ChainPending:   {barter.ChainRejected, barter.ChainAccepted, barter.ChainExpired, barter.ChainCancelled},
	barter.ChainAccepted:  {barter.ChainExecuting, barter.ChainExpired, barter.ChainCancelled},
	barter.ChainExecuting: {barter.ChainCompleted, barter.ChainAccepted},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to barter.ChainStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ReleasesReservations reports whether entering to frees the chain's items.
func ReleasesReservations(to barter.ChainStatus) bool {
	switch to {
	case barter.ChainRejected, barter.ChainExpired, barter.ChainCancelled:
		return true
	}
	return false
}

// IsExpired reports whether the chain's expiry has elapsed at now. Only
// chains still awaiting execution can expire.
func IsExpired(c *barter.BarterChain, now time.Time) bool {
	switch c.Status {
	case barter.ChainProposed, barter.ChainPending, barter.ChainAccepted:
		return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
	}
	return false
}

func transition(c *barter.BarterChain, to barter.ChainStatus, now time.Time) error {
	if !CanTransition(c.Status, to) {
		return barter.NewError(barter.ErrCodeInvalidTransition, "cannot move chain from %s to %s", c.Status, to).WithChain(c.ID)
	}
	c.Status = to
	c.UpdatedAt = now
	return nil
}

// New builds a PROPOSED chain from a priced candidate. The initiator must
// be one of the participants and is recorded as having accepted.
func New(id string, cand barter.ChainCandidate, initiatorID string, now time.Time, ttl time.Duration) (*barter.BarterChain, error) {
	c := &barter.BarterChain{
		ID:            id,
		Type:          cand.Type,
		Status:        barter.ChainProposed,
		CreatedBy:     initiatorID,
		Fingerprint:   cand.Fingerprint,
		TotalValue:    cand.TotalValue,
		FairnessScore: cand.FairnessScore,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(ttl),
		Participants:  make([]barter.ChainParticipant, len(cand.Slots)),
	}
	for i, s := range cand.Slots {
		c.Participants[i] = barter.ChainParticipant{
			Position:        i,
			UserID:          s.UserID,
			GivingItemID:    s.GivingItemID,
			GivingValue:     s.GivingValue,
			ReceivingItemID: s.ReceivingItemID,
			ReceivingValue:  s.ReceivingValue,
			CashBalance:     s.CashFlow,
			Status:          barter.ParticipantPending,
		}
	}

	i, ok := c.Participant(initiatorID)
	if !ok {
		return nil, barter.NewError(barter.ErrCodeUnauthorizedAction, "initiator is not a participant").WithUser(initiatorID)
	}
	responded := now
	c.Participants[i].Status = barter.ParticipantAccepted
	c.Participants[i].RespondedAt = &responded
	return c, nil
}

// Notify records that every participant has been told about the chain.
func Notify(c *barter.BarterChain, now time.Time) error {
	return transition(c, barter.ChainPending, now)
}

// Respond records userID's decision. A rejection ends the chain; the last
// acceptance moves it to ACCEPTED. A PROPOSED chain is notified first.
func Respond(c *barter.BarterChain, userID string, accept bool, message string, now time.Time) error {
	i, ok := c.Participant(userID)
	if !ok {
		return barter.NewError(barter.ErrCodeUnauthorizedAction, "user is not a participant").WithChain(c.ID).WithUser(userID)
	}
	if IsExpired(c, now) {
		return barter.NewError(barter.ErrCodeExpiredChain, "chain expired at %s", c.ExpiresAt.Format(time.RFC3339)).WithChain(c.ID)
	}
	if c.Status == barter.ChainProposed {
		if err := Notify(c, now); err != nil {
			return err
		}
	}
	if c.Status != barter.ChainPending {
		return barter.NewError(barter.ErrCodeInvalidTransition, "chain is %s, not accepting responses", c.Status).WithChain(c.ID)
	}

	p := &c.Participants[i]
	if p.Status != barter.ParticipantPending {
		return barter.NewError(barter.ErrCodeInvalidTransition, "participant already %s", p.Status).WithChain(c.ID).WithUser(userID)
	}

	responded := now
	p.RespondedAt = &responded
	p.Message = message
	if !accept {
		p.Status = barter.ParticipantRejected
		return transition(c, barter.ChainRejected, now)
	}

	p.Status = barter.ParticipantAccepted
	c.UpdatedAt = now
	if c.AllAccepted() {
		return transition(c, barter.ChainAccepted, now)
	}
	return nil
}

// Cancel ends the chain on userID's request. Any participant may cancel
// before acceptance; once ACCEPTED only the initiator may.
func Cancel(c *barter.BarterChain, userID string, now time.Time) error {
	if _, ok := c.Participant(userID); !ok {
		return barter.NewError(barter.ErrCodeUnauthorizedAction, "user is not a participant").WithChain(c.ID).WithUser(userID)
	}
	if c.Status == barter.ChainAccepted && userID != c.CreatedBy {
		return barter.NewError(barter.ErrCodeUnauthorizedAction, "only the initiator may cancel an accepted chain").WithChain(c.ID).WithUser(userID)
	}
	return transition(c, barter.ChainCancelled, now)
}

// Expire ends a chain whose expiry has elapsed.
func Expire(c *barter.BarterChain, now time.Time) error {
	if !IsExpired(c, now) {
		return barter.NewError(barter.ErrCodeInvalidTransition, "chain is %s and not expired", c.Status).WithChain(c.ID)
	}
	return transition(c, barter.ChainExpired, now)
}

// CheckExecutable reports why c cannot start executing, if it cannot.
func CheckExecutable(c *barter.BarterChain, now time.Time) error {
	if IsExpired(c, now) {
		return barter.NewError(barter.ErrCodeExpiredChain, "chain expired at %s", c.ExpiresAt.Format(time.RFC3339)).WithChain(c.ID)
	}
	switch c.Status {
	case barter.ChainProposed, barter.ChainPending, barter.ChainAccepted:
	default:
		return barter.NewError(barter.ErrCodeInvalidTransition, "cannot execute a %s chain", c.Status).WithChain(c.ID)
	}
	if !c.AllAccepted() {
		return barter.NewError(barter.ErrCodePartialAcceptance, "not every participant has accepted").WithChain(c.ID)
	}
	if c.Status != barter.ChainAccepted {
		return barter.NewError(barter.ErrCodeInvalidTransition, "cannot execute a %s chain", c.Status).WithChain(c.ID)
	}
	return nil
}

// BeginExecution moves an ACCEPTED chain to EXECUTING.
func BeginExecution(c *barter.BarterChain, now time.Time) error {
	if err := CheckExecutable(c, now); err != nil {
		return err
	}
	return transition(c, barter.ChainExecuting, now)
}

// Complete records a committed execution.
func Complete(c *barter.BarterChain, attemptID string, now time.Time) error {
	if err := transition(c, barter.ChainCompleted, now); err != nil {
		return err
	}
	for i := range c.Participants {
		c.Participants[i].Status = barter.ParticipantCompleted
	}
	c.ExecutionAttemptID = attemptID
	c.LastFailure = nil
	return nil
}

// Revert returns a rolled-back chain to ACCEPTED with the failure attached.
func Revert(c *barter.BarterChain, failure barter.FailureReason, now time.Time) error {
	if err := transition(c, barter.ChainAccepted, now); err != nil {
		return err
	}
	c.LastFailure = &failure
	return nil
}
