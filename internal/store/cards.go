package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskplanner/api/internal/ordering"
)

const cardSelect = `
	SELECT c.id, c.list_id, l.board_id, c.name, c.description, c.position, c.created_at
	FROM cards c
	JOIN lists l ON l.id = c.list_id
`

func scanCard(row interface{ Scan(...any) error }) (Card, error) {
	var c Card
	err := row.Scan(&c.ID, &c.ListID, &c.BoardID, &c.Name, &c.Description, &c.Position, &c.CreatedAt)
	return c, err
}

// CreateCard appends a card at the tail of its list.
func (s *SQLStore) CreateCard(ctx context.Context, listID int64, name, description string) (Card, error) {
	var card Card
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		pos, err := ordering.Cards.Append(ctx, tx, listID)
		if err != nil {
			return orderingErr(err)
		}
		var id int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO cards (list_id, name, description, position, created_at) VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, listID, name, description, pos, now()).Scan(&id); err != nil {
			return fmt.Errorf("insert card: %w", err)
		}
		card, err = getCard(ctx, tx, id)
		return err
	})
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

func (s *SQLStore) GetCard(ctx context.Context, id int64) (Card, error) {
	return getCard(ctx, s.db, id)
}

func getCard(ctx context.Context, q queryer, id int64) (Card, error) {
	card, err := scanCard(q.QueryRowContext(ctx, cardSelect+` WHERE c.id = $1`, id))
	if err != nil {
		return Card{}, notFound(err)
	}
	return card, nil
}

// ListCards returns cards ordered by board, list position and card
// position. Unless AllBoards is set, only boards the viewer belongs to
// are searched.
func (s *SQLStore) ListCards(ctx context.Context, filter CardFilter) ([]Card, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.AllBoards {
		where = append(where, `EXISTS (SELECT 1 FROM board_members m WHERE m.board_id = l.board_id AND m.user_id = `+arg(filter.ViewerID)+`)`)
	}
	if filter.BoardID != 0 {
		where = append(where, `l.board_id = `+arg(filter.BoardID))
	}
	if filter.ListID != 0 {
		where = append(where, `c.list_id = `+arg(filter.ListID))
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		where = append(where, `LOWER(c.name) LIKE `+arg("%"+strings.ToLower(name)+"%"))
	}
	if filter.ParticipantID != 0 {
		where = append(where, `EXISTS (SELECT 1 FROM card_participants p WHERE p.card_id = c.id AND p.user_id = `+arg(filter.ParticipantID)+`)`)
	}

	query := cardSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY l.board_id, l.position, c.position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()
	var cards []Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *SQLStore) UpdateCard(ctx context.Context, id int64, patch CardPatch) (Card, error) {
	var card Card
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getCard(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			current.Name = *patch.Name
		}
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET name = $1, description = $2 WHERE id = $3`,
			current.Name, current.Description, id); err != nil {
			return fmt.Errorf("update card: %w", err)
		}
		card = current
		return nil
	})
	return card, err
}

// DeleteCard removes the card and renumbers its list. It returns the
// object keys of dropped attachments.
func (s *SQLStore) DeleteCard(ctx context.Context, id int64) ([]string, error) {
	var keys []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		keys, err = fileKeys(ctx, tx, `SELECT object_key FROM card_files WHERE card_id = $1`, id)
		if err != nil {
			return err
		}
		return orderingErr(ordering.Cards.Remove(ctx, tx, id))
	})
	return keys, err
}

func (s *SQLStore) SwapCards(ctx context.Context, a, b int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return orderingErr(ordering.Cards.Swap(ctx, tx, a, b))
	})
}

// MoveCard places the card at position in listID, which may be its
// current list.
func (s *SQLStore) MoveCard(ctx context.Context, id, listID int64, position int) (Card, error) {
	var card Card
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := ordering.Cards.Move(ctx, tx, id, listID, position); err != nil {
			return orderingErr(err)
		}
		var err error
		card, err = getCard(ctx, tx, id)
		return err
	})
	return card, err
}

// AddCardParticipant requires the user to be a member of the card's board.
func (s *SQLStore) AddCardParticipant(ctx context.Context, cardID, userID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		card, err := getCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if _, err := membership(ctx, tx, card.BoardID, userID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotBoardMember
			}
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO card_participants (card_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, cardID, userID)
		if err != nil {
			return fmt.Errorf("insert card participant: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrAlreadyExists
		}
		return nil
	})
}

func (s *SQLStore) RemoveCardParticipant(ctx context.Context, cardID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM card_participants WHERE card_id = $1 AND user_id = $2`, cardID, userID)
	if err != nil {
		return fmt.Errorf("delete card participant: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return ErrNotAssigned
	}
	return nil
}

func (s *SQLStore) ListCardParticipants(ctx context.Context, cardID int64) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.bio, u.password_hash, u.is_staff, u.created_at
		FROM card_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.card_id = $1
		ORDER BY u.id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card participants: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card participant: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AddCardTag requires the tag to belong to the card's board.
func (s *SQLStore) AddCardTag(ctx context.Context, cardID, tagID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		card, err := getCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		var boardID int64
		if err := tx.QueryRowContext(ctx, `SELECT board_id FROM tags WHERE id = $1`, tagID).Scan(&boardID); err != nil {
			return notFound(err)
		}
		if boardID != card.BoardID {
			return ErrForeignTag
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO card_tags (card_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, cardID, tagID)
		if err != nil {
			return fmt.Errorf("insert card tag: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrAlreadyExists
		}
		return nil
	})
}

func (s *SQLStore) RemoveCardTag(ctx context.Context, cardID, tagID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM card_tags WHERE card_id = $1 AND tag_id = $2`, cardID, tagID)
	if err != nil {
		return fmt.Errorf("delete card tag: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return ErrNotAssigned
	}
	return nil
}

func (s *SQLStore) ListCardTags(ctx context.Context, cardID int64) ([]Tag, error) {
	return queryTags(ctx, s.db, `
		SELECT t.id, t.board_id, t.name, t.color
		FROM card_tags ct
		JOIN tags t ON t.id = ct.tag_id
		WHERE ct.card_id = $1
		ORDER BY t.color
	`, cardID)
}
