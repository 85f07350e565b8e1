package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/swapchain/internal/barter"
	"github.com/roach88/swapchain/internal/directory"
)

var (
	_ directory.Directory = (*Store)(nil)
	_ directory.Wallet    = (*Store)(nil)
)

const itemColumns = `id, owner_id, category_id, estimated_value, status, reservation_tag, barter_eligible, region`

// PutItem inserts or replaces an item record.
func (s *Store) PutItem(ctx context.Context, it barter.Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, owner_id, category_id, category_key, estimated_value, status, reservation_tag, barter_eligible, region)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			category_id = excluded.category_id,
			category_key = excluded.category_key,
			estimated_value = excluded.estimated_value,
			status = excluded.status,
			reservation_tag = excluded.reservation_tag,
			barter_eligible = excluded.barter_eligible,
			region = excluded.region
	`,
		it.ID,
		it.OwnerID,
		it.CategoryID,
		barter.NormalizeCategory(it.CategoryID),
		it.EstimatedValue.String(),
		string(it.Status),
		it.ReservationTag,
		boolToInt(it.BarterEligible),
		it.Region,
	)
	if err != nil {
		return fmt.Errorf("put item %s: %w", it.ID, err)
	}
	return nil
}

// PutWant inserts or replaces a want criteria. An empty id is derived
// from the owner and the number of criteria they already have.
func (s *Store) PutWant(ctx context.Context, w barter.WantCriteria) (barter.WantCriteria, error) {
	if w.ID == "" {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM want_criteria WHERE owner_id = ?`, w.OwnerID).Scan(&n); err != nil {
			return w, fmt.Errorf("put want: count: %w", err)
		}
		w.ID = fmt.Sprintf("%s-want-%d", w.OwnerID, n+1)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO want_criteria (id, owner_id, desired_item_id, desired_category_id, category_key, min_value, max_value, region)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			desired_item_id = excluded.desired_item_id,
			desired_category_id = excluded.desired_category_id,
			category_key = excluded.category_key,
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			region = excluded.region
	`,
		w.ID,
		w.OwnerID,
		w.DesiredItemID,
		w.DesiredCategoryID,
		barter.NormalizeCategory(w.DesiredCategoryID),
		w.MinValue.String(),
		w.MaxValue.String(),
		w.Region,
	)
	if err != nil {
		return w, fmt.Errorf("put want %s: %w", w.ID, err)
	}
	return w, nil
}

// GetItem implements directory.ItemDirectory.
func (s *Store) GetItem(ctx context.Context, id string) (barter.Item, error) {
	return getItem(ctx, s.db, id)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getItem(ctx context.Context, q queryer, id string) (barter.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return barter.Item{}, fmt.Errorf("item %s: %w", id, directory.ErrNotFound)
	}
	if err != nil {
		return barter.Item{}, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

// CompareAndSwapStatus implements directory.ItemDirectory as a single
// conditional UPDATE.
func (s *Store) CompareAndSwapStatus(ctx context.Context, id string, expected, next barter.ItemStatus, tag string) (barter.Item, error) {
	newTag := tag
	if next == barter.ItemAvailable {
		newTag = ""
	}

	var it barter.Item
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE items SET status = ?, reservation_tag = ?
			WHERE id = ? AND status = ? AND (? = 'AVAILABLE' OR reservation_tag = ?)
		`, string(next), newTag, id, string(expected), string(expected), tag)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update item: rows affected: %w", err)
		}

		it, err = getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("item %s is %s under %q, expected %s under %q: %w",
				id, it.Status, it.ReservationTag, expected, tag, directory.ErrStatusMismatch)
		}
		return nil
	})
	return it, err
}

// TransferOwnership implements directory.ItemDirectory.
func (s *Store) TransferOwnership(ctx context.Context, id, fromUserID, toUserID, tag string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE items SET owner_id = ?
			WHERE id = ? AND owner_id = ? AND status = 'LOCKED' AND reservation_tag = ?
		`, toUserID, id, fromUserID, tag)
		if err != nil {
			return fmt.Errorf("transfer item: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("transfer item: rows affected: %w", err)
		}
		if n > 0 {
			return nil
		}
		it, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("item %s is %s/%q owned by %s, expected LOCKED/%q owned by %s: %w",
			id, it.Status, it.ReservationTag, it.OwnerID, tag, fromUserID, directory.ErrStatusMismatch)
	})
}

// SearchItems implements directory.ItemDirectory. SQL narrows by category
// or exact id; value filtering and proximity ranking happen in Go since
// values are stored as decimal TEXT.
func (s *Store) SearchItems(ctx context.Context, q directory.ItemQuery) ([]barter.Item, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.ExactItemID != "" {
		rows, err = s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ? AND status = 'AVAILABLE'`, q.ExactItemID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+itemColumns+` FROM items
			WHERE category_key = ? AND status = 'AVAILABLE' AND barter_eligible = 1
			ORDER BY id COLLATE BINARY ASC
		`, barter.NormalizeCategory(q.CategoryID))
	}
	if err != nil {
		return nil, fmt.Errorf("search items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	out := items[:0]
	for _, it := range items {
		if q.Matches(it) {
			out = append(out, it)
		}
	}
	return directory.RankItems(out, q.Target, q.Limit), nil
}

// GetUserItems implements directory.UserDirectory. Items are ordered by id.
func (s *Store) GetUserItems(ctx context.Context, userID string) ([]barter.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE owner_id = ? ORDER BY id COLLATE BINARY ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("user items: %w", err)
	}
	return collectItems(rows)
}

// GetWantCriteria implements directory.UserDirectory.
func (s *Store) GetWantCriteria(ctx context.Context, userID string) ([]barter.WantCriteria, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, desired_item_id, desired_category_id, min_value, max_value, region
		FROM want_criteria WHERE owner_id = ? ORDER BY id COLLATE BINARY ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("want criteria: %w", err)
	}
	return collectWants(rows)
}

// FindWanters implements directory.UserDirectory.
func (s *Store) FindWanters(ctx context.Context, it barter.Item, region string, limit int) ([]barter.WantCriteria, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, desired_item_id, desired_category_id, min_value, max_value, region
		FROM want_criteria
		WHERE owner_id != ?
		  AND (desired_item_id = ? OR (desired_item_id = '' AND category_key = ?))
		ORDER BY id COLLATE BINARY ASC
	`, it.OwnerID, it.ID, barter.NormalizeCategory(it.CategoryID))
	if err != nil {
		return nil, fmt.Errorf("find wanters: %w", err)
	}
	wants, err := collectWants(rows)
	if err != nil {
		return nil, err
	}

	out := wants[:0]
	for _, w := range wants {
		if region != "" && w.Region != "" && w.Region != region {
			continue
		}
		if w.Accepts(it) {
			out = append(out, w)
		}
	}
	return directory.RankWants(out, it, limit), nil
}

func scanItem(r rowScanner) (barter.Item, error) {
	var (
		it       barter.Item
		value    decimal.Decimal
		status   string
		eligible int
	)
	if err := r.Scan(&it.ID, &it.OwnerID, &it.CategoryID, &value, &status, &it.ReservationTag, &eligible, &it.Region); err != nil {
		return barter.Item{}, err
	}
	it.EstimatedValue = value
	it.Status = barter.ItemStatus(status)
	it.BarterEligible = eligible != 0
	return it, nil
}

func collectItems(rows *sql.Rows) ([]barter.Item, error) {
	defer rows.Close()
	items := []barter.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func collectWants(rows *sql.Rows) ([]barter.WantCriteria, error) {
	defer rows.Close()
	wants := []barter.WantCriteria{}
	for rows.Next() {
		var w barter.WantCriteria
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.DesiredItemID, &w.DesiredCategoryID, &w.MinValue, &w.MaxValue, &w.Region); err != nil {
			return nil, fmt.Errorf("scan want: %w", err)
		}
		wants = append(wants, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wants: %w", err)
	}
	return wants, nil
}
