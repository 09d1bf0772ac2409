package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskplanner/api/internal/ordering"
)

const listColumns = `id, board_id, name, position, created_at`

func scanList(row interface{ Scan(...any) error }) (List, error) {
	var l List
	err := row.Scan(&l.ID, &l.BoardID, &l.Name, &l.Position, &l.CreatedAt)
	return l, err
}

// orderingErr maps container lookups to the store's not-found sentinel.
func orderingErr(err error) error {
	if errors.Is(err, ordering.ErrItemNotFound) || errors.Is(err, ordering.ErrContainerNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

// CreateList appends a list at the tail of its board.
func (s *SQLStore) CreateList(ctx context.Context, boardID int64, name string) (List, error) {
	list := List{BoardID: boardID, Name: name, CreatedAt: now()}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		pos, err := ordering.Lists.Append(ctx, tx, boardID)
		if err != nil {
			return orderingErr(err)
		}
		list.Position = pos
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO lists (board_id, name, position, created_at) VALUES ($1, $2, $3, $4)
			RETURNING id
		`, boardID, name, pos, list.CreatedAt).Scan(&list.ID); err != nil {
			return fmt.Errorf("insert list: %w", err)
		}
		return nil
	})
	if err != nil {
		return List{}, err
	}
	return list, nil
}

func (s *SQLStore) GetList(ctx context.Context, id int64) (List, error) {
	list, err := scanList(s.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = $1`, id))
	if err != nil {
		return List{}, notFound(err)
	}
	return list, nil
}

// ListLists returns a board's lists in position order.
func (s *SQLStore) ListLists(ctx context.Context, boardID int64) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+listColumns+` FROM lists WHERE board_id = $1 ORDER BY position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()
	var lists []List
	for rows.Next() {
		list, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, list)
	}
	return lists, rows.Err()
}

func (s *SQLStore) RenameList(ctx context.Context, id int64, name string) (List, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE lists SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return List{}, fmt.Errorf("rename list: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return List{}, err
	}
	return s.GetList(ctx, id)
}

// DeleteList removes the list with its cards and renumbers the board's
// remaining lists. It returns the object keys of dropped attachments.
func (s *SQLStore) DeleteList(ctx context.Context, id int64) ([]string, error) {
	var keys []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		keys, err = fileKeys(ctx, tx, `
			SELECT f.object_key FROM card_files f JOIN cards c ON c.id = f.card_id WHERE c.list_id = $1
		`, id)
		if err != nil {
			return err
		}
		return orderingErr(ordering.Lists.Remove(ctx, tx, id))
	})
	return keys, err
}

func (s *SQLStore) SwapLists(ctx context.Context, a, b int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return orderingErr(ordering.Lists.Swap(ctx, tx, a, b))
	})
}
