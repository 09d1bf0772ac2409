package store

import (
	"context"
	"database/sql"
	"fmt"
)

const commentSelect = `
	SELECT cm.id, cm.card_id, l.board_id, cm.author_id, cm.text, cm.pub_date, cm.is_updated
	FROM comments cm
	JOIN cards c ON c.id = cm.card_id
	JOIN lists l ON l.id = c.list_id
`

func scanComment(row interface{ Scan(...any) error }) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.CardID, &c.BoardID, &c.AuthorID, &c.Text, &c.PubDate, &c.IsUpdated)
	return c, err
}

func (s *SQLStore) CreateComment(ctx context.Context, cardID, authorID int64, text string) (Comment, error) {
	var comment Comment
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		card, err := getCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		comment = Comment{CardID: cardID, BoardID: card.BoardID, AuthorID: authorID, Text: text, PubDate: now()}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO comments (card_id, author_id, text, pub_date, is_updated) VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, cardID, authorID, text, comment.PubDate, false).Scan(&comment.ID); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *SQLStore) GetComment(ctx context.Context, id int64) (Comment, error) {
	comment, err := scanComment(s.db.QueryRowContext(ctx, commentSelect+` WHERE cm.id = $1`, id))
	if err != nil {
		return Comment{}, notFound(err)
	}
	return comment, nil
}

// ListComments returns a card's comments oldest first.
func (s *SQLStore) ListComments(ctx context.Context, cardID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE cm.card_id = $1 ORDER BY cm.pub_date, cm.id`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// UpdateComment replaces the text and marks the comment as edited.
func (s *SQLStore) UpdateComment(ctx context.Context, id int64, text string) (Comment, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE comments SET text = $1, is_updated = $2 WHERE id = $3`, text, true, id)
	if err != nil {
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	if err := affectedOne(res); err != nil {
		return Comment{}, err
	}
	return s.GetComment(ctx, id)
}

func (s *SQLStore) DeleteComment(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return affectedOne(res)
}
