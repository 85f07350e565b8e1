package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/testutil"
)

func TestCreateChain_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestChain("chain-1")
	require.NoError(t, s.CreateChain(ctx, c, ChainWrite{}))
	assert.Equal(t, int64(1), c.Version)

	got, err := s.GetChain(ctx, "chain-1")
	require.NoError(t, err)

	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, barter.ChainProposed, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, c.TotalValue.Equal(got.TotalValue))
	assert.True(t, c.ExpiresAt.Equal(got.ExpiresAt))
	require.Len(t, got.Participants, 2)
	assert.Equal(t, "B", got.Participants[1].UserID)
	assert.NotNil(t, got.Participants[0].RespondedAt)
	assert.Nil(t, got.Participants[1].RespondedAt)
	assert.True(t, got.Participants[0].GivingValue.Equal(testutil.Dec(500)))
	assert.Nil(t, got.LastFailure)
}

func TestCreateChain_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateChain(ctx, createTestChain("chain-1"), ChainWrite{}))
	err := s.CreateChain(ctx, createTestChain("chain-1"), ChainWrite{})
	assert.True(t, barter.IsConcurrencyConflict(err))
}

func TestGetChain_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetChain(context.Background(), "missing")
	assert.True(t, barter.IsNotFound(err))
}

func TestUpdateChain_VersionCheck(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestChain("chain-1")
	require.NoError(t, s.CreateChain(ctx, c, ChainWrite{}))

	stale, err := s.GetChain(ctx, "chain-1")
	require.NoError(t, err)

	now := testutil.Epoch.Add(time.Minute)
	c.Status = barter.ChainPending
	c.UpdatedAt = now
	c.Participants[1].Status = barter.ParticipantAccepted
	c.Participants[1].Message = "ok"
	c.Participants[1].RespondedAt = &now
	require.NoError(t, s.UpdateChain(ctx, c, ChainWrite{}))
	assert.Equal(t, int64(2), c.Version)

	stale.Status = barter.ChainCancelled
	err = s.UpdateChain(ctx, stale, ChainWrite{})
	assert.True(t, barter.IsConcurrencyConflict(err))
	assert.Equal(t, int64(1), stale.Version, "failed write must not bump the version")

	got, err := s.GetChain(ctx, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, barter.ChainPending, got.Status)
	assert.Equal(t, "ok", got.Participants[1].Message)
	assert.Equal(t, barter.ParticipantAccepted, got.Participants[1].Status)
}

func TestUpdateChain_NotFound(t *testing.T) {
	s := createTestStore(t)
	c := createTestChain("ghost")
	c.Version = 1
	err := s.UpdateChain(context.Background(), c, ChainWrite{})
	assert.True(t, barter.IsNotFound(err))
}

func TestUpdateChain_ConcurrentWritersOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateChain(ctx, createTestChain("chain-1"), ChainWrite{}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		c, err := s.GetChain(ctx, "chain-1")
		require.NoError(t, err)
		wg.Add(1)
		go func(c *barter.BarterChain) {
			defer wg.Done()
			c.Status = barter.ChainPending
			err := s.UpdateChain(ctx, c, ChainWrite{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if barter.IsConcurrencyConflict(err) {
				conflicts++
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
}

func TestChainWrite_EventsAndExecution(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestChain("chain-1")
	require.NoError(t, s.CreateChain(ctx, c, ChainWrite{
		Events: []barter.ChainEvent{{To: barter.ChainProposed, Actor: "A", At: testutil.Epoch}},
	}))

	res := barter.ExecutionResult{
		AttemptID:   "att-1",
		ChainID:     c.ID,
		Status:      barter.ChainCompleted,
		Entries:     []barter.LedgerEntry{{ID: "att-1/0", AccountID: "A", Amount: testutil.Dec(10)}, {ID: "att-1/1", AccountID: "B", Amount: testutil.Dec(-10)}},
		CompletedAt: testutil.Epoch,
	}
	c.Status = barter.ChainPending
	require.NoError(t, s.UpdateChain(ctx, c, ChainWrite{
		Events:    []barter.ChainEvent{{From: barter.ChainProposed, To: barter.ChainPending, At: testutil.Epoch}},
		Execution: &res,
	}))

	events, err := s.ListEvents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, barter.ChainProposed, events[0].To)
	assert.Equal(t, "A", events[0].Actor)
	assert.Equal(t, barter.ChainPending, events[1].To)
	assert.Less(t, events[0].Seq, events[1].Seq)

	got, ok, err := s.GetExecution(ctx, "att-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, barter.ChainCompleted, got.Status)
	require.Len(t, got.Entries, 2)
	assert.True(t, got.Entries[1].Amount.Equal(testutil.Dec(-10)))

	_, ok, err = s.GetExecution(ctx, "att-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChainWrite_DuplicateAttemptIsConflict(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := createTestChain("chain-1")
	second := createTestChain("chain-2")
	require.NoError(t, s.CreateChain(ctx, first, ChainWrite{}))
	require.NoError(t, s.CreateChain(ctx, second, ChainWrite{}))

	complete := func(c *barter.BarterChain) error {
		c.Status = barter.ChainCompleted
		c.ExecutionAttemptID = "att-1"
		return s.UpdateChain(ctx, c, ChainWrite{
			Events: []barter.ChainEvent{{From: barter.ChainProposed, To: barter.ChainCompleted, At: testutil.Epoch}},
			Execution: &barter.ExecutionResult{
				AttemptID:   "att-1",
				ChainID:     c.ID,
				Status:      barter.ChainCompleted,
				CompletedAt: testutil.Epoch,
			},
		})
	}
	require.NoError(t, complete(first))

	err := complete(second)
	require.Error(t, err)
	assert.Equal(t, barter.ErrCodeConcurrencyConflict, barter.CodeOf(err))

	got, err := s.GetChain(ctx, "chain-2")
	require.NoError(t, err)
	assert.Equal(t, barter.ChainProposed, got.Status)
	assert.Equal(t, int64(1), got.Version)

	events, err := s.ListEvents(ctx, "chain-2")
	require.NoError(t, err)
	assert.Empty(t, events)

	res, ok, err := s.GetExecution(ctx, "att-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chain-1", res.ChainID)
}

func TestChainWrite_FailedUpdateWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestChain("chain-1")
	require.NoError(t, s.CreateChain(ctx, c, ChainWrite{}))

	stale := createTestChain("chain-1")
	stale.Version = 7
	err := s.UpdateChain(ctx, stale, ChainWrite{
		Events: []barter.ChainEvent{{From: barter.ChainProposed, To: barter.ChainCancelled, At: testutil.Epoch}},
	})
	require.Error(t, err)

	events, err := s.ListEvents(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestListChains_FiltersByStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, st := range []barter.ChainStatus{barter.ChainProposed, barter.ChainPending, barter.ChainCompleted} {
		c := createTestChain(string(rune('a' + i)))
		c.Status = st
		c.CreatedAt = testutil.Epoch.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.CreateChain(ctx, c, ChainWrite{}))
	}

	open, err := s.ListChains(ctx, barter.ChainProposed, barter.ChainPending)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].ID)
	assert.Equal(t, "b", open[1].ID)
	assert.Len(t, open[1].Participants, 2)

	all, err := s.ListChains(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLastFailure_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	c := createTestChain("chain-1")
	require.NoError(t, s.CreateChain(ctx, c, ChainWrite{}))

	c.LastFailure = &barter.FailureReason{Code: barter.ErrCodeExecutionFailure, Step: "transfer", ItemID: "b-item", AttemptID: "att", At: testutil.Epoch}
	require.NoError(t, s.UpdateChain(ctx, c, ChainWrite{}))

	got, err := s.GetChain(ctx, "chain-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastFailure)
	assert.Equal(t, "transfer", got.LastFailure.Step)
	assert.Equal(t, "b-item", got.LastFailure.ItemID)
}
