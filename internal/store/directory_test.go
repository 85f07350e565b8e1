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

func seedThreeWay(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	m := directory.NewMemory()
	testutil.SeedThreeWay(m)
	for _, u := range []string{"A", "B", "C"} {
		items, err := m.GetUserItems(ctx, u)
		require.NoError(t, err)
		for _, it := range items {
			require.NoError(t, s.PutItem(ctx, it))
		}
		wants, err := m.GetWantCriteria(ctx, u)
		require.NoError(t, err)
		for _, w := range wants {
			_, err := s.PutWant(ctx, w)
			require.NoError(t, err)
		}
	}
}

func TestDirectory_GetItem(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedThreeWay(t, s)

	it, err := s.GetItem(ctx, "b-book")
	require.NoError(t, err)
	assert.Equal(t, "B", it.OwnerID)
	assert.True(t, it.EstimatedValue.Equal(testutil.Dec(950)))
	assert.True(t, it.BarterEligible)
	assert.Equal(t, barter.ItemAvailable, it.Status)

	_, err = s.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDirectory_CompareAndSwapStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedThreeWay(t, s)

	it, err := s.CompareAndSwapStatus(ctx, "a-item", barter.ItemAvailable, barter.ItemReserved, "chain-1")
	require.NoError(t, err)
	assert.Equal(t, "chain-1", it.ReservationTag)

	_, err = s.CompareAndSwapStatus(ctx, "a-item", barter.ItemAvailable, barter.ItemReserved, "chain-2")
	assert.ErrorIs(t, err, directory.ErrStatusMismatch)

	_, err = s.CompareAndSwapStatus(ctx, "a-item", barter.ItemReserved, barter.ItemLocked, "chain-2")
	assert.ErrorIs(t, err, directory.ErrStatusMismatch, "wrong tag")

	_, err = s.CompareAndSwapStatus(ctx, "a-item", barter.ItemReserved, barter.ItemLocked, "chain-1")
	require.NoError(t, err)

	require.NoError(t, s.TransferOwnership(ctx, "a-item", "A", "C", "chain-1"))
	assert.ErrorIs(t, s.TransferOwnership(ctx, "a-item", "A", "C", "chain-1"), directory.ErrStatusMismatch)

	it, err = s.CompareAndSwapStatus(ctx, "a-item", barter.ItemLocked, barter.ItemAvailable, "chain-1")
	require.NoError(t, err)
	assert.Empty(t, it.ReservationTag)
	assert.Equal(t, "C", it.OwnerID)

	_, err = s.CompareAndSwapStatus(ctx, "missing", barter.ItemAvailable, barter.ItemReserved, "t")
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestDirectory_SearchAndWanters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedThreeWay(t, s)

	wants, err := s.GetWantCriteria(ctx, "A")
	require.NoError(t, err)
	require.Len(t, wants, 1)
	assert.Equal(t, "A-want-1", wants[0].ID)

	items, err := s.SearchItems(ctx, directory.QueryFor(wants[0], "", 8))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b-book", items[0].ID)

	focal, err := s.GetItem(ctx, "a-item")
	require.NoError(t, err)
	wanters, err := s.FindWanters(ctx, focal, "", 8)
	require.NoError(t, err)
	require.Len(t, wanters, 1)
	assert.Equal(t, "C", wanters[0].OwnerID)

	// Reserved items drop out of search.
	_, err = s.CompareAndSwapStatus(ctx, "b-book", barter.ItemAvailable, barter.ItemReserved, "chain-1")
	require.NoError(t, err)
	items, err = s.SearchItems(ctx, directory.QueryFor(wants[0], "", 8))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDirectory_CategoryMatchIsNormalized(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutItem(ctx, testutil.Item("x", "B", "  BOOKS ", 100)))
	_, err := s.PutWant(ctx, testutil.Want("A", "books", 50, 150))
	require.NoError(t, err)

	x, err := s.GetItem(ctx, "x")
	require.NoError(t, err)
	wanters, err := s.FindWanters(ctx, x, "", 8)
	require.NoError(t, err)
	assert.Len(t, wanters, 1)
}

func TestDirectory_GetUserItemsOrdered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutItem(ctx, testutil.Item("z", "A", "c", 1)))
	require.NoError(t, s.PutItem(ctx, testutil.Item("m", "A", "c", 1)))

	items, err := s.GetUserItems(ctx, "A")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "m", items[0].ID)

	none, err := s.GetUserItems(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
