package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

// SetBalance sets an account balance, creating the account if needed.
func (s *Store) SetBalance(ctx context.Context, account string, amount decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (account_id, balance) VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET balance = excluded.balance
	`, account, amount.String())
	if err != nil {
		return fmt.Errorf("set balance %s: %w", account, err)
	}
	return nil
}

// Balance returns an account balance (zero for unknown accounts).
func (s *Store) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	return balance(ctx, s.db, account)
}

func balance(ctx context.Context, q queryer, account string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := q.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE account_id = ?`, account).Scan(&bal)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance %s: %w", account, err)
	}
	return bal, nil
}

// ApplyLedgerEntries implements directory.Wallet. The batch commits in one
// transaction; entries already recorded are skipped so retries are safe.
// Balances may go negative; funding checks belong to the payment service.
func (s *Store) ApplyLedgerEntries(ctx context.Context, entries []barter.LedgerEntry) error {
	if !directory.SumEntries(entries).IsZero() {
		return directory.ErrUnbalanced
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO ledger_entries (id, attempt_id, chain_id, account_id, amount)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`, e.ID, e.AttemptID, e.ChainID, e.AccountID, e.Amount.String())
			if err != nil {
				return fmt.Errorf("record entry %s: %w", e.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("record entry %s: %w", e.ID, err)
			} else if n == 0 {
				continue
			}
			if err := post(ctx, tx, e.ID, e.AccountID, e.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReverseLedgerEntries implements directory.Wallet. Entries are reversed in
// opposite order; entries never applied are skipped.
func (s *Store) ReverseLedgerEntries(ctx context.Context, entries []barter.LedgerEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			res, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, e.ID)
			if err != nil {
				return fmt.Errorf("remove entry %s: %w", e.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return fmt.Errorf("remove entry %s: %w", e.ID, err)
			} else if n == 0 {
				continue
			}
			if err := post(ctx, tx, e.ID, e.AccountID, e.Amount.Neg()); err != nil {
				return err
			}
		}
		return nil
	})
}

// post adds amount to an account and journals the movement.
func post(ctx context.Context, tx *sql.Tx, entryID, account string, amount decimal.Decimal) error {
	bal, err := balance(ctx, tx, account)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (account_id, balance) VALUES (?, ?)
		ON CONFLICT(account_id) DO UPDATE SET balance = excluded.balance
	`, account, bal.Add(amount).String()); err != nil {
		return fmt.Errorf("post %s: %w", account, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_journal (entry_id, account_id, amount) VALUES (?, ?, ?)
	`, entryID, account, amount.String()); err != nil {
		return fmt.Errorf("journal %s: %w", entryID, err)
	}
	return nil
}

// Journal returns every balance movement in order. Reversals appear as
// negated amounts.
func (s *Store) Journal(ctx context.Context) ([]barter.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, account_id, amount FROM ledger_journal ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	out := []barter.LedgerEntry{}
	for rows.Next() {
		var e barter.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Amount); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return out, nil
}
