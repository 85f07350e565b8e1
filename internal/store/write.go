package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/swapchain/internal/barter"
)

// ChainWrite carries the records committed together with a chain update.
type ChainWrite struct {
	// Events are appended to the audit log in order.
	Events []barter.ChainEvent

	// Execution, when set, is stored under its attempt id.
	Execution *barter.ExecutionResult
}

// CreateChain inserts a new chain and its participants. The chain's
// Version is set to 1.
//
// Returns a CONCURRENCY_CONFLICT error if the id already exists.
func (s *Store) CreateChain(ctx context.Context, c *barter.BarterChain, w ChainWrite) error {
	failure, err := marshalFailure(c.LastFailure)
	if err != nil {
		return fmt.Errorf("create chain: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chains
			(id, chain_type, status, created_by, fingerprint, total_value, fairness_score,
			 created_at, updated_at, expires_at, version, last_failure, execution_attempt_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`,
			c.ID,
			string(c.Type),
			string(c.Status),
			c.CreatedBy,
			c.Fingerprint,
			c.TotalValue.String(),
			c.FairnessScore,
			formatTime(c.CreatedAt),
			formatTime(c.UpdatedAt),
			formatTime(c.ExpiresAt),
			failure,
			c.ExecutionAttemptID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return barter.NewError(barter.ErrCodeConcurrencyConflict, "chain already exists").WithChain(c.ID).Wrap(err)
			}
			return fmt.Errorf("insert chain: %w", err)
		}

		for _, p := range c.Participants {
			if err := insertParticipant(ctx, tx, c.ID, p); err != nil {
				return err
			}
		}
		return writeExtras(ctx, tx, c.ID, w)
	})
	if err != nil {
		return fmt.Errorf("create chain %s: %w", c.ID, err)
	}

	c.Version = 1
	return nil
}

// UpdateChain writes c if the stored version still equals c.Version, then
// increments c.Version.
//
// Returns NOT_FOUND for an unknown chain and CONCURRENCY_CONFLICT when the
// stored version has moved on. Nothing is written in either case.
func (s *Store) UpdateChain(ctx context.Context, c *barter.BarterChain, w ChainWrite) error {
	failure, err := marshalFailure(c.LastFailure)
	if err != nil {
		return fmt.Errorf("update chain: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE chains
			SET status = ?, updated_at = ?, expires_at = ?, last_failure = ?,
			    execution_attempt_id = ?, version = version + 1
			WHERE id = ? AND version = ?
		`,
			string(c.Status),
			formatTime(c.UpdatedAt),
			formatTime(c.ExpiresAt),
			failure,
			c.ExecutionAttemptID,
			c.ID,
			c.Version,
		)
		if err != nil {
			return fmt.Errorf("update chain: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update chain: rows affected: %w", err)
		}
		if n == 0 {
			return missOrConflict(ctx, tx, c.ID, c.Version)
		}

		for _, p := range c.Participants {
			if _, err := tx.ExecContext(ctx, `
				UPDATE chain_participants
				SET status = ?, message = ?, responded_at = ?
				WHERE chain_id = ? AND position = ?
			`,
				string(p.Status),
				p.Message,
				formatNullTime(p.RespondedAt),
				c.ID,
				p.Position,
			); err != nil {
				return fmt.Errorf("update participant %d: %w", p.Position, err)
			}
		}
		return writeExtras(ctx, tx, c.ID, w)
	})
	if err != nil {
		return fmt.Errorf("update chain %s: %w", c.ID, err)
	}

	c.Version++
	return nil
}

// missOrConflict explains a zero-row chain update.
func missOrConflict(ctx context.Context, tx *sql.Tx, id string, expected int64) error {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT version FROM chains WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return barter.NewError(barter.ErrCodeNotFound, "chain not found").WithChain(id)
	}
	if err != nil {
		return fmt.Errorf("read chain version: %w", err)
	}
	return barter.NewError(barter.ErrCodeConcurrencyConflict, "chain version is %d, expected %d", current, expected).WithChain(id)
}

func insertParticipant(ctx context.Context, tx *sql.Tx, chainID string, p barter.ChainParticipant) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chain_participants
		(chain_id, position, user_id, giving_item_id, giving_value, receiving_item_id,
		 receiving_value, cash_balance, status, message, responded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		chainID,
		p.Position,
		p.UserID,
		p.GivingItemID,
		p.GivingValue.String(),
		p.ReceivingItemID,
		p.ReceivingValue.String(),
		p.CashBalance.String(),
		string(p.Status),
		p.Message,
		formatNullTime(p.RespondedAt),
	)
	if err != nil {
		return fmt.Errorf("insert participant %d: %w", p.Position, err)
	}
	return nil
}

// writeExtras appends events and the optional execution result.
func writeExtras(ctx context.Context, tx *sql.Tx, chainID string, w ChainWrite) error {
	for _, ev := range w.Events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chain_events (chain_id, from_status, to_status, actor, note, at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			chainID,
			string(ev.From),
			string(ev.To),
			ev.Actor,
			ev.Note,
			formatTime(ev.At),
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if w.Execution != nil {
		data, err := marshalResult(*w.Execution)
		if err != nil {
			return err
		}
		// A stored attempt is immutable. A second result under the same id,
		// possibly for another chain, fails the whole write.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO executions (attempt_id, chain_id, status, result)
			VALUES (?, ?, ?, ?)
		`,
			w.Execution.AttemptID,
			chainID,
			string(w.Execution.Status),
			data,
		); err != nil {
			if isUniqueViolation(err) {
				return barter.NewError(barter.ErrCodeConcurrencyConflict,
					"attempt %s is already recorded", w.Execution.AttemptID).WithChain(chainID).Wrap(err)
			}
			return fmt.Errorf("insert execution: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
