package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetMembership returns ErrNotFound when the user is not on the board.
func (s *SQLStore) GetMembership(ctx context.Context, boardID, userID int64) (Membership, error) {
	return membership(ctx, s.db, boardID, userID)
}

func membership(ctx context.Context, q queryer, boardID, userID int64) (Membership, error) {
	m := Membership{BoardID: boardID, UserID: userID}
	var authorID int64
	err := q.QueryRowContext(ctx, `
		SELECT m.is_moderator, b.author_id
		FROM board_members m
		JOIN boards b ON b.id = m.board_id
		WHERE m.board_id = $1 AND m.user_id = $2
	`, boardID, userID).Scan(&m.IsModerator, &authorID)
	if err != nil {
		return Membership{}, notFound(err)
	}
	m.IsAuthor = authorID == userID
	return m, nil
}

func (s *SQLStore) ListMembers(ctx context.Context, boardID int64) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.bio, u.password_hash, u.is_staff, u.created_at, m.is_moderator
		FROM board_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.board_id = $1
		ORDER BY m.joined_at, u.id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Email, &m.Username, &m.FirstName, &m.LastName, &m.Bio, &m.PasswordHash, &m.IsStaff, &m.CreatedAt, &m.IsModerator); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// RemoveMember drops the membership and the user's participation in every
// card of the board. The author cannot be removed. With protectModerators
// set, removing a moderator fails with ErrModeratorProtected.
func (s *SQLStore) RemoveMember(ctx context.Context, boardID, userID int64, protectModerators bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		m, err := membership(ctx, tx, boardID, userID)
		if err != nil {
			return err
		}
		if m.IsAuthor {
			return ErrAuthorProtected
		}
		if protectModerators && m.IsModerator {
			return ErrModeratorProtected
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM board_members WHERE board_id = $1 AND user_id = $2`, boardID, userID); err != nil {
			return fmt.Errorf("delete membership: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM card_participants
			WHERE user_id = $1 AND card_id IN (
				SELECT c.id FROM cards c JOIN lists l ON l.id = c.list_id WHERE l.board_id = $2
			)
		`, userID, boardID); err != nil {
			return fmt.Errorf("delete card participation: %w", err)
		}
		return nil
	})
}

// SetModerator sets the moderator flag, or flips it when value is nil, and
// returns the resulting flag. The author can never lose it.
func (s *SQLStore) SetModerator(ctx context.Context, boardID, userID int64, value *bool) (bool, error) {
	var result bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		m, err := membership(ctx, tx, boardID, userID)
		if err != nil {
			return err
		}
		next := !m.IsModerator
		if value != nil {
			next = *value
		}
		if m.IsAuthor && !next {
			return ErrAuthorProtected
		}
		if _, err := tx.ExecContext(ctx, `UPDATE board_members SET is_moderator = $1 WHERE board_id = $2 AND user_id = $3`,
			next, boardID, userID); err != nil {
			return fmt.Errorf("update moderator: %w", err)
		}
		result = next
		return nil
	})
	return result, err
}
