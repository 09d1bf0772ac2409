package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLSearch matches boards and cards with case-insensitive substring
// matching. It runs on both supported databases and serves whenever
// Meilisearch is absent or unhealthy.
type SQLSearch struct {
	db *sql.DB
}

func NewSQLSearch(db *sql.DB) *SQLSearch {
	return &SQLSearch{db: db}
}

func (p *SQLSearch) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" || !q.scoped() {
		return nil, 0, nil
	}

	args := []any{"%" + strings.ToLower(text) + "%"}
	scope := ""
	if !q.All {
		holders := make([]string, len(q.BoardIDs))
		for i, id := range q.BoardIDs {
			args = append(args, id)
			holders[i] = fmt.Sprintf("$%d", len(args))
		}
		scope = " AND %s IN (" + strings.Join(holders, ", ") + ")"
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultBoard {
		where := "(LOWER(b.name) LIKE $1 OR LOWER(b.description) LIKE $1)"
		if scope != "" {
			where += fmt.Sprintf(scope, "b.id")
		}
		subQueries = append(subQueries, `
			SELECT 'board' AS type, b.id AS id, b.name AS title, b.description AS snippet,
				b.id AS board_id, 0 AS list_id, 0 AS list_position, 0 AS position
			FROM boards b
			WHERE `+where)
	}
	if q.FilterType == "" || q.FilterType == ResultCard {
		where := "(LOWER(c.name) LIKE $1 OR LOWER(c.description) LIKE $1)"
		if scope != "" {
			where += fmt.Sprintf(scope, "l.board_id")
		}
		subQueries = append(subQueries, `
			SELECT 'card' AS type, c.id AS id, c.name AS title, c.description AS snippet,
				l.board_id AS board_id, c.list_id AS list_id, l.position AS list_position, c.position AS position
			FROM cards c
			JOIN lists l ON l.id = c.list_id
			WHERE `+where)
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ("+union+") sub", args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sql search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT type, id, title, snippet, board_id, list_id
		FROM (%s) sub
		ORDER BY board_id, type, list_position, position, id
		LIMIT %d OFFSET %d`, union, q.limit(), q.offset()), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sql search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.BoardID, &r.ListID); err != nil {
			return nil, 0, fmt.Errorf("sql search scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record for a full reindex.
func (p *SQLSearch) LoadAllRecords(ctx context.Context) ([]BoardRecord, []CardRecord, error) {
	boardRows, err := p.db.QueryContext(ctx, `SELECT id, name, description FROM boards`)
	if err != nil {
		return nil, nil, fmt.Errorf("load boards: %w", err)
	}
	defer boardRows.Close()
	boards := make([]BoardRecord, 0)
	for boardRows.Next() {
		var b BoardRecord
		if err := boardRows.Scan(&b.ID, &b.Name, &b.Description); err != nil {
			return nil, nil, fmt.Errorf("scan board: %w", err)
		}
		b.BoardID = b.ID
		boards = append(boards, b)
	}
	if err := boardRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate boards: %w", err)
	}

	cardRows, err := p.db.QueryContext(ctx, `
		SELECT c.id, l.board_id, c.list_id, c.name, c.description
		FROM cards c
		JOIN lists l ON l.id = c.list_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load cards: %w", err)
	}
	defer cardRows.Close()
	cards := make([]CardRecord, 0)
	for cardRows.Next() {
		var c CardRecord
		if err := cardRows.Scan(&c.ID, &c.BoardID, &c.ListID, &c.Name, &c.Description); err != nil {
			return nil, nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := cardRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cards: %w", err)
	}
	return boards, cards, nil
}
