package store

import (
	"context"
	"database/sql"
	"fmt"
)

const checkItemSelect = `
	SELECT ci.id, ci.card_id, l.board_id, ci.text, ci.is_active, ci.created_at
	FROM check_items ci
	JOIN cards c ON c.id = ci.card_id
	JOIN lists l ON l.id = c.list_id
`

func scanCheckItem(row interface{ Scan(...any) error }) (CheckItem, error) {
	var it CheckItem
	err := row.Scan(&it.ID, &it.CardID, &it.BoardID, &it.Text, &it.IsActive, &it.CreatedAt)
	return it, err
}

// CreateCheckItem adds an active item to the card's checklist.
func (s *SQLStore) CreateCheckItem(ctx context.Context, cardID int64, text string) (CheckItem, error) {
	var item CheckItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		card, err := getCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		item = CheckItem{CardID: cardID, BoardID: card.BoardID, Text: text, IsActive: true, CreatedAt: now()}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO check_items (card_id, text, is_active, created_at) VALUES ($1, $2, $3, $4)
			RETURNING id
		`, cardID, text, true, item.CreatedAt).Scan(&item.ID); err != nil {
			return fmt.Errorf("insert check item: %w", err)
		}
		return nil
	})
	if err != nil {
		return CheckItem{}, err
	}
	return item, nil
}

func (s *SQLStore) GetCheckItem(ctx context.Context, id int64) (CheckItem, error) {
	return getCheckItem(ctx, s.db, id)
}

func getCheckItem(ctx context.Context, q queryer, id int64) (CheckItem, error) {
	item, err := scanCheckItem(q.QueryRowContext(ctx, checkItemSelect+` WHERE ci.id = $1`, id))
	if err != nil {
		return CheckItem{}, notFound(err)
	}
	return item, nil
}

func (s *SQLStore) ListCheckItems(ctx context.Context, cardID int64) ([]CheckItem, error) {
	rows, err := s.db.QueryContext(ctx, checkItemSelect+` WHERE ci.card_id = $1 ORDER BY ci.id`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list check items: %w", err)
	}
	defer rows.Close()
	var items []CheckItem
	for rows.Next() {
		it, err := scanCheckItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLStore) UpdateCheckItem(ctx context.Context, id int64, patch CheckItemPatch) (CheckItem, error) {
	var item CheckItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getCheckItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Text != nil {
			current.Text = *patch.Text
		}
		if patch.IsActive != nil {
			current.IsActive = *patch.IsActive
		}
		if _, err := tx.ExecContext(ctx, `UPDATE check_items SET text = $1, is_active = $2 WHERE id = $3`,
			current.Text, current.IsActive, id); err != nil {
			return fmt.Errorf("update check item: %w", err)
		}
		item = current
		return nil
	})
	return item, err
}

// ToggleCheckItem flips is_active.
func (s *SQLStore) ToggleCheckItem(ctx context.Context, id int64) (CheckItem, error) {
	var item CheckItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getCheckItem(ctx, tx, id)
		if err != nil {
			return err
		}
		current.IsActive = !current.IsActive
		if _, err := tx.ExecContext(ctx, `UPDATE check_items SET is_active = $1 WHERE id = $2`, current.IsActive, id); err != nil {
			return fmt.Errorf("toggle check item: %w", err)
		}
		item = current
		return nil
	})
	return item, err
}

func (s *SQLStore) DeleteCheckItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete check item: %w", err)
	}
	return affectedOne(res)
}
