package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
)

// Memory is an in-process Directory and Wallet.
//
// Thread-safety: all methods are safe for concurrent use. Compare-and-swap
// and ledger batches are atomic under a single mutex.
//
// The Fail* hooks inject failures for saga tests. They are called with the
// mutex held and must not call back into Memory.
type Memory struct {
	mu       sync.Mutex
	items    map[string]barter.Item
	wants    map[string][]barter.WantCriteria
	balances map[string]decimal.Decimal
	applied  map[string]barter.LedgerEntry
	journal  []barter.LedgerEntry

	// RequireFunds rejects batches that would overdraw an account.
	RequireFunds bool

	FailTransfer func(itemID string) error
	FailLedger   func(entries []barter.LedgerEntry) error
	FailCAS      func(itemID string, next barter.ItemStatus) error
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{
		items:    make(map[string]barter.Item),
		wants:    make(map[string][]barter.WantCriteria),
		balances: make(map[string]decimal.Decimal),
		applied:  make(map[string]barter.LedgerEntry),
	}
}

// PutItem inserts or replaces an item.
func (m *Memory) PutItem(it barter.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
}

// AddWant appends a criteria to its owner's list.
func (m *Memory) AddWant(w barter.WantCriteria) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.ID == "" {
		w.ID = fmt.Sprintf("%s-want-%d", w.OwnerID, len(m.wants[w.OwnerID])+1)
	}
	m.wants[w.OwnerID] = append(m.wants[w.OwnerID], w)
}

// SetBalance sets an account balance.
func (m *Memory) SetBalance(account string, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = amount
}

// Balance returns an account balance (zero for unknown accounts).
func (m *Memory) Balance(account string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

// Journal returns every applied and reversed entry in order. Reversals
// appear as negated entries.
func (m *Memory) Journal() []barter.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]barter.LedgerEntry, len(m.journal))
	copy(out, m.journal)
	return out
}

// GetItem implements ItemDirectory.
func (m *Memory) GetItem(_ context.Context, id string) (barter.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return barter.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return it, nil
}

// CompareAndSwapStatus implements ItemDirectory.
func (m *Memory) CompareAndSwapStatus(_ context.Context, id string, expected, next barter.ItemStatus, tag string) (barter.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return barter.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if m.FailCAS != nil {
		if err := m.FailCAS(id, next); err != nil {
			return it, err
		}
	}
	if it.Status != expected {
		return it, fmt.Errorf("item %s is %s, expected %s: %w", id, it.Status, expected, ErrStatusMismatch)
	}
	if expected != barter.ItemAvailable && it.ReservationTag != tag {
		return it, fmt.Errorf("item %s held by %q, not %q: %w", id, it.ReservationTag, tag, ErrStatusMismatch)
	}
	it.Status = next
	if next == barter.ItemAvailable {
		it.ReservationTag = ""
	} else {
		it.ReservationTag = tag
	}
	m.items[id] = it
	return it, nil
}

// TransferOwnership implements ItemDirectory.
func (m *Memory) TransferOwnership(_ context.Context, id, fromUserID, toUserID, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if m.FailTransfer != nil {
		if err := m.FailTransfer(id); err != nil {
			return err
		}
	}
	if it.Status != barter.ItemLocked || it.ReservationTag != tag {
		return fmt.Errorf("item %s is %s/%q, expected LOCKED/%q: %w", id, it.Status, it.ReservationTag, tag, ErrStatusMismatch)
	}
	if it.OwnerID != fromUserID {
		return fmt.Errorf("item %s owned by %s, not %s: %w", id, it.OwnerID, fromUserID, ErrStatusMismatch)
	}
	it.OwnerID = toUserID
	m.items[id] = it
	return nil
}

// SearchItems implements ItemDirectory.
func (m *Memory) SearchItems(_ context.Context, q ItemQuery) ([]barter.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []barter.Item
	for _, it := range m.items {
		if q.Matches(it) {
			out = append(out, it)
		}
	}
	return RankItems(out, q.Target, q.Limit), nil
}

// GetWantCriteria implements UserDirectory.
func (m *Memory) GetWantCriteria(_ context.Context, userID string) ([]barter.WantCriteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]barter.WantCriteria, len(m.wants[userID]))
	copy(out, m.wants[userID])
	return out, nil
}

// GetUserItems implements UserDirectory. Items are ordered by id.
func (m *Memory) GetUserItems(_ context.Context, userID string) ([]barter.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []barter.Item
	for _, it := range m.items {
		if it.OwnerID == userID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindWanters implements UserDirectory.
func (m *Memory) FindWanters(_ context.Context, it barter.Item, region string, limit int) ([]barter.WantCriteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []barter.WantCriteria
	for _, ws := range m.wants {
		for _, w := range ws {
			if region != "" && w.Region != "" && w.Region != region {
				continue
			}
			if w.Accepts(it) {
				out = append(out, w)
			}
		}
	}
	return RankWants(out, it, limit), nil
}

// ApplyLedgerEntries implements Wallet. The batch is applied atomically;
// entries already applied are skipped so retries are safe.
func (m *Memory) ApplyLedgerEntries(_ context.Context, entries []barter.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !SumEntries(entries).IsZero() {
		return ErrUnbalanced
	}
	if m.FailLedger != nil {
		if err := m.FailLedger(entries); err != nil {
			return err
		}
	}
	pending := make([]barter.LedgerEntry, 0, len(entries))
	next := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if _, done := m.applied[e.ID]; done {
			continue
		}
		bal, ok := next[e.AccountID]
		if !ok {
			bal = m.balances[e.AccountID]
		}
		bal = bal.Add(e.Amount)
		if m.RequireFunds && bal.IsNegative() {
			return fmt.Errorf("account %s: %w", e.AccountID, ErrInsufficientFunds)
		}
		next[e.AccountID] = bal
		pending = append(pending, e)
	}
	for acct, bal := range next {
		m.balances[acct] = bal
	}
	for _, e := range pending {
		m.applied[e.ID] = e
		m.journal = append(m.journal, e)
	}
	return nil
}

// ReverseLedgerEntries implements Wallet. Entries never applied are skipped.
func (m *Memory) ReverseLedgerEntries(_ context.Context, entries []barter.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if _, done := m.applied[e.ID]; !done {
			continue
		}
		m.balances[e.AccountID] = m.balances[e.AccountID].Sub(e.Amount)
		delete(m.applied, e.ID)
		rev := e
		rev.Amount = e.Amount.Neg()
		m.journal = append(m.journal, rev)
	}
	return nil
}
