package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const boardColumns = `b.id, b.name, b.description, b.avatar, b.author_id, b.created_at`

func scanBoard(row interface{ Scan(...any) error }, extra ...any) (Board, error) {
	var b Board
	dest := append([]any{&b.ID, &b.Name, &b.Description, &b.Avatar, &b.AuthorID, &b.CreatedAt}, extra...)
	err := row.Scan(dest...)
	return b, err
}

// CreateBoard inserts the board, makes the author a moderating member and
// seeds one unnamed tag per color, all in one transaction.
func (s *SQLStore) CreateBoard(ctx context.Context, board Board) (Board, error) {
	board.CreatedAt = now()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO boards (name, description, avatar, author_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, board.Name, board.Description, board.Avatar, board.AuthorID, board.CreatedAt).Scan(&board.ID); err != nil {
			return fmt.Errorf("insert board: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_members (board_id, user_id, is_moderator, joined_at) VALUES ($1, $2, $3, $4)
		`, board.ID, board.AuthorID, true, board.CreatedAt); err != nil {
			return fmt.Errorf("insert author membership: %w", err)
		}
		for _, color := range TagColors {
			if _, err := tx.ExecContext(ctx, `INSERT INTO tags (board_id, name, color) VALUES ($1, '', $2)`, board.ID, int(color)); err != nil {
				return fmt.Errorf("seed %s tag: %w", color, err)
			}
		}
		return nil
	})
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

func (s *SQLStore) GetBoard(ctx context.Context, id int64) (Board, error) {
	board, err := scanBoard(s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards b WHERE b.id = $1`, id))
	if err != nil {
		return Board{}, notFound(err)
	}
	return board, nil
}

// ListBoards returns the boards a user belongs to, or every board when all
// is set, flagged with the user's favorite and membership state.
func (s *SQLStore) ListBoards(ctx context.Context, userID int64, all bool) ([]BoardListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+boardColumns+`,
			EXISTS (SELECT 1 FROM favorites f WHERE f.board_id = b.id AND f.user_id = $1),
			EXISTS (SELECT 1 FROM board_members m WHERE m.board_id = b.id AND m.user_id = $1)
		FROM boards b
		WHERE $2 OR EXISTS (SELECT 1 FROM board_members m WHERE m.board_id = b.id AND m.user_id = $1)
		ORDER BY b.id
	`, userID, all)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	var out []BoardListing
	for rows.Next() {
		var listing BoardListing
		board, err := scanBoard(rows, &listing.IsFavored, &listing.IsMember)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		listing.Board = board
		out = append(out, listing)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateBoard(ctx context.Context, id int64, patch BoardPatch) (Board, error) {
	var board Board
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := scanBoard(tx.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards b WHERE b.id = $1`, id))
		if err != nil {
			return notFound(err)
		}
		if patch.Name != nil {
			current.Name = *patch.Name
		}
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if patch.Avatar != nil {
			current.Avatar = *patch.Avatar
		}
		if _, err := tx.ExecContext(ctx, `UPDATE boards SET name = $1, description = $2, avatar = $3 WHERE id = $4`,
			current.Name, current.Description, current.Avatar, id); err != nil {
			return fmt.Errorf("update board: %w", err)
		}
		board = current
		return nil
	})
	return board, err
}

// DeleteBoard removes the board and everything under it. It returns the
// object keys of the attachments that were dropped with it.
func (s *SQLStore) DeleteBoard(ctx context.Context, id int64) ([]string, error) {
	var keys []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		keys, err = fileKeys(ctx, tx, `
			SELECT f.object_key FROM card_files f
			JOIN cards c ON c.id = f.card_id
			JOIN lists l ON l.id = c.list_id
			WHERE l.board_id = $1
		`, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete board: %w", err)
		}
		return affectedOne(res)
	})
	return keys, err
}

func (s *SQLStore) AddFavorite(ctx context.Context, userID, boardID int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO favorites (user_id, board_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, boardID, now())
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *SQLStore) RemoveFavorite(ctx context.Context, userID, boardID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = $1 AND board_id = $2`, userID, boardID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLStore) IsFavorite(ctx context.Context, userID, boardID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND board_id = $2)`, userID, boardID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("read favorite: %w", err)
	}
	return ok, nil
}

func (s *SQLStore) ListTags(ctx context.Context, boardID int64) ([]Tag, error) {
	return queryTags(ctx, s.db, `SELECT id, board_id, name, color FROM tags WHERE board_id = $1 ORDER BY color`, boardID)
}

func (s *SQLStore) GetTag(ctx context.Context, id int64) (Tag, error) {
	var t Tag
	err := s.db.QueryRowContext(ctx, `SELECT id, board_id, name, color FROM tags WHERE id = $1`, id).Scan(&t.ID, &t.BoardID, &t.Name, &t.Color)
	if err != nil {
		return Tag{}, notFound(err)
	}
	return t, nil
}

// RenameTag changes a tag's name. Colors never change.
func (s *SQLStore) RenameTag(ctx context.Context, id int64, name string) (Tag, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tags SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return Tag{}, fmt.Errorf("rename tag: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Tag{}, err
	}
	return s.GetTag(ctx, id)
}

func queryTags(ctx context.Context, q queryer, query string, args ...any) ([]Tag, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.BoardID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func fileKeys(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list file keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan file key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
