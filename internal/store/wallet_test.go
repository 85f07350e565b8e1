package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
	"github.com/roach88/swapchain/internal/testutil"
)

func TestWallet_ApplyAndReverse(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetBalance(ctx, "A", testutil.Dec(100)))

	batch := []barter.LedgerEntry{
		{ID: "att/0", AttemptID: "att", ChainID: "c", AccountID: "A", Amount: testutil.Dec(40)},
		{ID: "att/1", AttemptID: "att", ChainID: "c", AccountID: "B", Amount: testutil.Dec(-40)},
	}
	require.NoError(t, s.ApplyLedgerEntries(ctx, batch))
	require.NoError(t, s.ApplyLedgerEntries(ctx, batch), "retry is a no-op")

	a, err := s.Balance(ctx, "A")
	require.NoError(t, err)
	b, err := s.Balance(ctx, "B")
	require.NoError(t, err)
	assert.True(t, a.Equal(testutil.Dec(140)))
	assert.True(t, b.Equal(testutil.Dec(-40)))

	require.NoError(t, s.ReverseLedgerEntries(ctx, batch))
	require.NoError(t, s.ReverseLedgerEntries(ctx, batch), "second reverse is a no-op")

	a, err = s.Balance(ctx, "A")
	require.NoError(t, err)
	assert.True(t, a.Equal(testutil.Dec(100)))

	journal, err := s.Journal(ctx)
	require.NoError(t, err)
	require.Len(t, journal, 4)
	assert.Equal(t, "att/1", journal[2].ID, "reversal runs in opposite order")
	assert.True(t, journal[2].Amount.Equal(testutil.Dec(40)))
}

func TestWallet_RejectsUnbalanced(t *testing.T) {
	s := createTestStore(t)
	err := s.ApplyLedgerEntries(context.Background(), []barter.LedgerEntry{
		{ID: "x", AccountID: "A", Amount: testutil.Dec(1)},
	})
	assert.ErrorIs(t, err, directory.ErrUnbalanced)
}

func TestWallet_UnknownAccountIsZero(t *testing.T) {
	s := createTestStore(t)
	bal, err := s.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}
