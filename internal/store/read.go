package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
)

const chainColumns = `id, chain_type, status, created_by, fingerprint, total_value, fairness_score,
	created_at, updated_at, expires_at, version, last_failure, execution_attempt_id`

// GetChain returns the chain with its participants in position order.
// Returns a NOT_FOUND error for unknown ids.
func (s *Store) GetChain(ctx context.Context, id string) (*barter.BarterChain, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chainColumns+` FROM chains WHERE id = ?`, id)
	c, err := scanChain(row)
	if err == sql.ErrNoRows {
		return nil, barter.NewError(barter.ErrCodeNotFound, "chain not found").WithChain(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get chain %s: %w", id, err)
	}
	if err := s.loadParticipants(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListChains returns chains in any of the given statuses (all chains when
// none are given), ordered by creation time then id.
func (s *Store) ListChains(ctx context.Context, statuses ...barter.ChainStatus) ([]*barter.BarterChain, error) {
	query := `SELECT ` + chainColumns + ` FROM chains`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, st := range statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chains: %w", err)
	}
	defer rows.Close()

	chains := []*barter.BarterChain{}
	for rows.Next() {
		c, err := scanChain(rows)
		if err != nil {
			return nil, err
		}
		chains = append(chains, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chains: %w", err)
	}

	for _, c := range chains {
		if err := s.loadParticipants(ctx, c); err != nil {
			return nil, err
		}
	}
	return chains, nil
}

// GetExecution returns the stored result for attemptID.
func (s *Store) GetExecution(ctx context.Context, attemptID string) (barter.ExecutionResult, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM executions WHERE attempt_id = ?`, attemptID).Scan(&data)
	if err == sql.ErrNoRows {
		return barter.ExecutionResult{}, false, nil
	}
	if err != nil {
		return barter.ExecutionResult{}, false, fmt.Errorf("get execution %s: %w", attemptID, err)
	}
	res, err := unmarshalResult(data)
	if err != nil {
		return barter.ExecutionResult{}, false, err
	}
	return res, true, nil
}

// ListEvents returns a chain's audit log in append order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListEvents(ctx context.Context, chainID string) ([]barter.ChainEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, chain_id, from_status, to_status, actor, note, at
		FROM chain_events
		WHERE chain_id = ?
		ORDER BY seq ASC
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []barter.ChainEvent{}
	for rows.Next() {
		var (
			ev       barter.ChainEvent
			from, to string
			at       string
		)
		if err := rows.Scan(&ev.Seq, &ev.ChainID, &from, &to, &ev.Actor, &ev.Note, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.From = barter.ChainStatus(from)
		ev.To = barter.ChainStatus(to)
		if ev.At, err = parseTime(at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChain(r rowScanner) (*barter.BarterChain, error) {
	var (
		c                         barter.BarterChain
		chainType, status         string
		total                     decimal.Decimal
		created, updated, expires string
		failure                   sql.NullString
	)
	err := r.Scan(
		&c.ID,
		&chainType,
		&status,
		&c.CreatedBy,
		&c.Fingerprint,
		&total,
		&c.FairnessScore,
		&created,
		&updated,
		&expires,
		&c.Version,
		&failure,
		&c.ExecutionAttemptID,
	)
	if err != nil {
		return nil, err
	}
	c.Type = barter.ChainType(chainType)
	c.Status = barter.ChainStatus(status)
	c.TotalValue = total
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if c.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if c.LastFailure, err = unmarshalFailure(failure); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) loadParticipants(ctx context.Context, c *barter.BarterChain) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, user_id, giving_item_id, giving_value, receiving_item_id,
		       receiving_value, cash_balance, status, message, responded_at
		FROM chain_participants
		WHERE chain_id = ?
		ORDER BY position ASC
	`, c.ID)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	c.Participants = []barter.ChainParticipant{}
	for rows.Next() {
		var (
			p         barter.ChainParticipant
			status    string
			responded sql.NullString
		)
		if err := rows.Scan(
			&p.Position,
			&p.UserID,
			&p.GivingItemID,
			&p.GivingValue,
			&p.ReceivingItemID,
			&p.ReceivingValue,
			&p.CashBalance,
			&status,
			&p.Message,
			&responded,
		); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		p.Status = barter.ParticipantStatus(status)
		if p.RespondedAt, err = parseNullTime(responded); err != nil {
			return err
		}
		c.Participants = append(c.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate participants: %w", err)
	}
	return nil
}
