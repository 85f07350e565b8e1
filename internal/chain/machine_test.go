package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/testutil"
)

var t0 = testutil.Epoch

func candidate() barter.ChainCandidate {
	return barter.ChainCandidate{
		Fingerprint: "fp",
		Type:        barter.ChainCycle,
		TotalValue:  testutil.Dec(3000),
		Slots: []barter.Slot{
			{UserID: "A", GivingItemID: "a-item", ReceivingItemID: "b-book", CashFlow: testutil.Dec(50)},
			{UserID: "C", GivingItemID: "c-tool", ReceivingItemID: "a-item", CashFlow: testutil.Dec(50)},
			{UserID: "B", GivingItemID: "b-book", ReceivingItemID: "c-tool", CashFlow: testutil.Dec(-100)},
		},
	}
}

func newChain(t *testing.T) *barter.BarterChain {
	t.Helper()
	c, err := New("chain-1", candidate(), "A", t0, time.Hour)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c := newChain(t)

	assert.Equal(t, barter.ChainProposed, c.Status)
	assert.Equal(t, "A", c.CreatedBy)
	assert.Equal(t, t0.Add(time.Hour), c.ExpiresAt)
	require.Len(t, c.Participants, 3)
	assert.Equal(t, barter.ParticipantAccepted, c.Participants[0].Status)
	assert.NotNil(t, c.Participants[0].RespondedAt)
	assert.Equal(t, barter.ParticipantPending, c.Participants[1].Status)
	assert.True(t, c.Participants[2].CashBalance.Equal(testutil.Dec(-100)))
	assert.Equal(t, 2, c.Participants[2].Position)
}

func TestNew_InitiatorMustParticipate(t *testing.T) {
	_, err := New("chain-1", candidate(), "Z", t0, time.Hour)
	assert.True(t, barter.Is(err, barter.ErrCodeUnauthorizedAction))
}

func TestRespond_AllAcceptMovesToAccepted(t *testing.T) {
	c := newChain(t)

	require.NoError(t, Respond(c, "C", true, "", t0))
	assert.Equal(t, barter.ChainPending, c.Status, "implicitly notified, still waiting on B")

	require.NoError(t, Respond(c, "B", true, "deal", t0))
	assert.Equal(t, barter.ChainAccepted, c.Status)
	assert.True(t, c.AllAccepted())
	assert.Equal(t, "deal", c.Participants[2].Message)
}

func TestRespond_RejectionEndsChain(t *testing.T) {
	c := newChain(t)
	require.NoError(t, Respond(c, "C", true, "", t0))
	require.NoError(t, Respond(c, "B", false, "no thanks", t0))

	assert.Equal(t, barter.ChainRejected, c.Status)
	assert.Equal(t, barter.ParticipantRejected, c.Participants[2].Status)
	assert.True(t, ReleasesReservations(c.Status))
}

func TestRespond_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *barter.BarterChain)
		user  string
		at    time.Time
		code  barter.ErrorCode
	}{
		{name: "non participant", user: "Z", at: t0, code: barter.ErrCodeUnauthorizedAction},
		{name: "initiator already accepted", user: "A", at: t0, code: barter.ErrCodeInvalidTransition},
		{name: "expired", user: "B", at: t0.Add(time.Hour), code: barter.ErrCodeExpiredChain},
		{
			name:  "responding twice",
			setup: func(c *barter.BarterChain) { require.NoError(t, Respond(c, "B", true, "", t0)) },
			user:  "B", at: t0, code: barter.ErrCodeInvalidTransition,
		},
		{
			name:  "terminal chain",
			setup: func(c *barter.BarterChain) { require.NoError(t, Cancel(c, "A", t0)) },
			user:  "B", at: t0, code: barter.ErrCodeInvalidTransition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChain(t)
			if tt.setup != nil {
				tt.setup(c)
			}
			before := c.Clone()
			err := Respond(c, tt.user, true, "", tt.at)
			assert.Equal(t, tt.code, barter.CodeOf(err))
			if tt.code != barter.ErrCodeInvalidTransition {
				assert.Equal(t, before, *c)
			}
		})
	}
}

func TestCancel(t *testing.T) {
	t.Run("any participant before acceptance", func(t *testing.T) {
		c := newChain(t)
		require.NoError(t, Cancel(c, "B", t0))
		assert.Equal(t, barter.ChainCancelled, c.Status)
	})

	t.Run("only initiator once accepted", func(t *testing.T) {
		c := newChain(t)
		require.NoError(t, Respond(c, "B", true, "", t0))
		require.NoError(t, Respond(c, "C", true, "", t0))

		err := Cancel(c, "B", t0)
		assert.True(t, barter.Is(err, barter.ErrCodeUnauthorizedAction))
		assert.Equal(t, barter.ChainAccepted, c.Status)

		require.NoError(t, Cancel(c, "A", t0))
		assert.Equal(t, barter.ChainCancelled, c.Status)
	})

	t.Run("never while executing", func(t *testing.T) {
		c := newChain(t)
		require.NoError(t, Respond(c, "B", true, "", t0))
		require.NoError(t, Respond(c, "C", true, "", t0))
		require.NoError(t, BeginExecution(c, t0))

		err := Cancel(c, "A", t0)
		assert.True(t, barter.Is(err, barter.ErrCodeInvalidTransition))
		assert.Equal(t, barter.ChainExecuting, c.Status)
	})

	t.Run("non participant", func(t *testing.T) {
		c := newChain(t)
		assert.True(t, barter.Is(Cancel(c, "Z", t0), barter.ErrCodeUnauthorizedAction))
	})
}

func TestIsExpired(t *testing.T) {
	c := newChain(t)
	assert.False(t, IsExpired(c, t0.Add(59*time.Minute)))
	assert.True(t, IsExpired(c, t0.Add(time.Hour)))

	c.Status = barter.ChainExecuting
	assert.False(t, IsExpired(c, t0.Add(2*time.Hour)), "executing chains never expire")

	c.Status = barter.ChainCompleted
	assert.False(t, IsExpired(c, t0.Add(2*time.Hour)))
}

func TestExpire(t *testing.T) {
	c := newChain(t)
	assert.True(t, barter.Is(Expire(c, t0), barter.ErrCodeInvalidTransition))

	require.NoError(t, Expire(c, t0.Add(time.Hour)))
	assert.Equal(t, barter.ChainExpired, c.Status)
	assert.True(t, c.Status.IsTerminal())
}

func TestExecutionLifecycle(t *testing.T) {
	c := newChain(t)
	require.NoError(t, Notify(c, t0))
	require.NoError(t, Respond(c, "C", true, "", t0))

	err := BeginExecution(c, t0)
	assert.True(t, barter.Is(err, barter.ErrCodePartialAcceptance))
	assert.Equal(t, barter.ChainPending, c.Status)

	require.NoError(t, Respond(c, "B", true, "", t0))
	require.NoError(t, BeginExecution(c, t0))
	assert.Equal(t, barter.ChainExecuting, c.Status)

	require.NoError(t, Revert(c, barter.FailureReason{Code: barter.ErrCodeExecutionFailure, Step: "transfer"}, t0))
	assert.Equal(t, barter.ChainAccepted, c.Status)
	require.NotNil(t, c.LastFailure)

	require.NoError(t, BeginExecution(c, t0))
	require.NoError(t, Complete(c, "attempt-2", t0))
	assert.Equal(t, barter.ChainCompleted, c.Status)
	assert.Nil(t, c.LastFailure)
	assert.Equal(t, "attempt-2", c.ExecutionAttemptID)
	for _, p := range c.Participants {
		assert.Equal(t, barter.ParticipantCompleted, p.Status)
	}

	assert.True(t, barter.Is(BeginExecution(c, t0), barter.ErrCodeInvalidTransition))
}

func TestCheckExecutable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*barter.BarterChain)
		at    time.Time
		want  barter.ErrorCode
	}{
		{"proposed", func(c *barter.BarterChain) {}, t0, barter.ErrCodePartialAcceptance},
		{"pending", func(c *barter.BarterChain) { c.Status = barter.ChainPending }, t0, barter.ErrCodePartialAcceptance},
		{"cancelled", func(c *barter.BarterChain) { c.Status = barter.ChainCancelled }, t0, barter.ErrCodeInvalidTransition},
		{"expired", func(c *barter.BarterChain) {}, t0.Add(time.Hour), barter.ErrCodeExpiredChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChain(t)
			tt.setup(c)
			assert.Equal(t, tt.want, barter.CodeOf(CheckExecutable(c, tt.at)))
		})
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(barter.ChainProposed, barter.ChainPending))
	assert.True(t, CanTransition(barter.ChainExecuting, barter.ChainAccepted))
	assert.False(t, CanTransition(barter.ChainProposed, barter.ChainAccepted))
	assert.False(t, CanTransition(barter.ChainCompleted, barter.ChainAccepted))
	assert.False(t, CanTransition(barter.ChainExecuting, barter.ChainCancelled))
}
