package store

import (
	"context"
	"database/sql"
	"fmt"
)

const fileSelect = `
	SELECT f.id, f.card_id, l.board_id, f.name, f.object_key, f.content_type, f.size, f.uploaded_by, f.created_at
	FROM card_files f
	JOIN cards c ON c.id = f.card_id
	JOIN lists l ON l.id = c.list_id
`

func scanFile(row interface{ Scan(...any) error }) (CardFile, error) {
	var f CardFile
	err := row.Scan(&f.ID, &f.CardID, &f.BoardID, &f.Name, &f.ObjectKey, &f.ContentType, &f.Size, &f.UploadedBy, &f.CreatedAt)
	return f, err
}

// CreateCardFile records an attachment whose bytes are already stored
// under file.ObjectKey.
func (s *SQLStore) CreateCardFile(ctx context.Context, file CardFile) (CardFile, error) {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		card, err := getCard(ctx, tx, file.CardID)
		if err != nil {
			return err
		}
		file.BoardID = card.BoardID
		file.CreatedAt = now()
		err = tx.QueryRowContext(ctx, `
			INSERT INTO card_files (card_id, name, object_key, content_type, size, uploaded_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, file.CardID, file.Name, file.ObjectKey, file.ContentType, file.Size, file.UploadedBy, file.CreatedAt).Scan(&file.ID)
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert card file: %w", err)
		}
		return nil
	})
	if err != nil {
		return CardFile{}, err
	}
	return file, nil
}

func (s *SQLStore) GetCardFile(ctx context.Context, id int64) (CardFile, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, fileSelect+` WHERE f.id = $1`, id))
	if err != nil {
		return CardFile{}, notFound(err)
	}
	return f, nil
}

func (s *SQLStore) ListCardFiles(ctx context.Context, cardID int64) ([]CardFile, error) {
	rows, err := s.db.QueryContext(ctx, fileSelect+` WHERE f.card_id = $1 ORDER BY f.id`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list card files: %w", err)
	}
	defer rows.Close()
	var files []CardFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteCardFile removes the record and returns it so the caller can drop
// the stored object.
func (s *SQLStore) DeleteCardFile(ctx context.Context, id int64) (CardFile, error) {
	var file CardFile
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		f, err := scanFile(tx.QueryRowContext(ctx, fileSelect+` WHERE f.id = $1`, id))
		if err != nil {
			return notFound(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM card_files WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete card file: %w", err)
		}
		file = f
		return nil
	})
	return file, err
}
