package store

import (
	"context"
	"fmt"
	"time"
)

const userColumns = `id, email, username, first_name, last_name, bio, password_hash, is_staff, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName, &u.Bio, &u.PasswordHash, &u.IsStaff, &u.CreatedAt)
	return u, err
}

func (s *SQLStore) CreateUser(ctx context.Context, user User) (User, error) {
	user.CreatedAt = now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, username, first_name, last_name, bio, password_hash, is_staff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, user.Email, user.Username, user.FirstName, user.LastName, user.Bio, user.PasswordHash, user.IsStaff, user.CreatedAt).Scan(&user.ID)
	if isUniqueViolation(err) {
		return User{}, ErrAlreadyExists
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

// SetStaff is an operator action; no HTTP route grants staff.
func (s *SQLStore) SetStaff(ctx context.Context, id int64, isStaff bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_staff = $1 WHERE id = $2`, isStaff, id)
	if err != nil {
		return fmt.Errorf("update staff flag: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at, revoked_at = NULL
	`, tokenHash, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *SQLStore) LookupRefreshSession(ctx context.Context, tokenHash string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
	`, tokenHash, now()).Scan(&userID)
	if err != nil {
		return 0, notFound(err)
	}
	return userID, nil
}

func (s *SQLStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at = $1 WHERE token_hash = $2`, now(), tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}
