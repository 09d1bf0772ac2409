package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const requestColumns = `id, board_id, user_id, invited_by, created_at`

func scanRequest(row interface{ Scan(...any) error }) (JoinRequest, error) {
	var r JoinRequest
	err := row.Scan(&r.ID, &r.BoardID, &r.UserID, &r.InvitedBy, &r.CreatedAt)
	return r, err
}

// CreateJoinRequest records a pending invitation. It fails with
// ErrAlreadyMember or ErrAlreadyExists.
func (s *SQLStore) CreateJoinRequest(ctx context.Context, boardID, userID, invitedBy int64) (JoinRequest, error) {
	req := JoinRequest{BoardID: boardID, UserID: userID, InvitedBy: invitedBy, CreatedAt: now()}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := membership(ctx, tx, boardID, userID); err == nil {
			return ErrAlreadyMember
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO join_requests (board_id, user_id, invited_by, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
			RETURNING id
		`, boardID, userID, invitedBy, req.CreatedAt).Scan(&req.ID)
		if isNoRows(err) {
			return ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert join request: %w", err)
		}
		return nil
	})
	if err != nil {
		return JoinRequest{}, err
	}
	return req, nil
}

func (s *SQLStore) GetJoinRequest(ctx context.Context, id int64) (JoinRequest, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE id = $1`, id))
	if err != nil {
		return JoinRequest{}, notFound(err)
	}
	return req, nil
}

func (s *SQLStore) ListBoardJoinRequests(ctx context.Context, boardID int64) ([]JoinRequest, error) {
	return s.queryRequests(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE board_id = $1 ORDER BY id`, boardID)
}

// ListUserJoinRequests lists invitations addressed to a user, or all of
// them when all is set.
func (s *SQLStore) ListUserJoinRequests(ctx context.Context, userID int64, all bool) ([]JoinRequest, error) {
	return s.queryRequests(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE $2 OR user_id = $1 ORDER BY id`, userID, all)
}

func (s *SQLStore) queryRequests(ctx context.Context, query string, args ...any) ([]JoinRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	defer rows.Close()
	var out []JoinRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan join request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// AcceptJoinRequest deletes the request and adds the invited user as a
// plain member.
func (s *SQLStore) AcceptJoinRequest(ctx context.Context, id int64) (Membership, error) {
	var m Membership
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		req, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM join_requests WHERE id = $1`, id))
		if err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM join_requests WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete join request: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO board_members (board_id, user_id, is_moderator, joined_at) VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, req.BoardID, req.UserID, false, now()); err != nil {
			return fmt.Errorf("insert membership: %w", err)
		}
		m = Membership{BoardID: req.BoardID, UserID: req.UserID}
		return nil
	})
	return m, err
}

// DeleteJoinRequest serves both refusal by the recipient and cancellation
// by a moderator.
func (s *SQLStore) DeleteJoinRequest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM join_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete join request: %w", err)
	}
	return affectedOne(res)
}
