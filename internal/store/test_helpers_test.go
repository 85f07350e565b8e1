package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/testutil"
)

// createTestStore creates a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestChain returns a PROPOSED two-party chain with minimal fields.
func createTestChain(id string) *barter.BarterChain {
	now := testutil.Epoch
	accepted := now
	return &barter.BarterChain{
		ID:            id,
		Type:          barter.ChainCycle,
		Status:        barter.ChainProposed,
		CreatedBy:     "A",
		Fingerprint:   "fp-" + id,
		TotalValue:    testutil.Dec(1000),
		FairnessScore: 1,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(72 * time.Hour),
		Participants: []barter.ChainParticipant{
			{Position: 0, UserID: "A", GivingItemID: "a-item", GivingValue: testutil.Dec(500), ReceivingItemID: "b-item", ReceivingValue: testutil.Dec(500), CashBalance: testutil.Dec(0), Status: barter.ParticipantAccepted, RespondedAt: &accepted},
			{Position: 1, UserID: "B", GivingItemID: "b-item", GivingValue: testutil.Dec(500), ReceivingItemID: "a-item", ReceivingValue: testutil.Dec(500), CashBalance: testutil.Dec(0), Status: barter.ParticipantPending},
		},
	}
}
