// Package ordering keeps the items of a container at dense 1-based
// positions while they are appended, removed, swapped and moved.
//
// Every exported operation must run inside a transaction. The container
// is locked by bumping a revision column on its owner row, which takes a
// row lock on Postgres and the write lock on SQLite. Renumbering is done
// in two set-based passes through negative staging values so that a plain
// UNIQUE(parent, position) constraint never sees a duplicate.
package ordering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrSameItem            = errors.New("an item cannot be swapped with itself")
	ErrDifferentContainers = errors.New("items belong to different containers")
	ErrDifferentScope      = errors.New("target container belongs to a different board")
	ErrPositionOutOfRange  = errors.New("position out of range")
	ErrImmovable           = errors.New("items of this container cannot change container")
	ErrItemNotFound        = errors.New("item not found")
	ErrContainerNotFound   = errors.New("container not found")
	// ErrStale means the item changed container between lookup and lock.
	// The whole transaction can be retried.
	ErrStale = errors.New("item moved concurrently")
	// ErrNotDense is an integrity failure: positions are not exactly 1..N.
	ErrNotDense = errors.New("positions are not dense")
)

// Querier is satisfied by *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Container describes one parent/child ordering relation.
type Container struct {
	Table    string
	Parent   string
	Owner    string
	Revision string
	// Scope is the owner column two containers must share for an item to
	// move between them. Empty means items never leave their container.
	Scope string
}

var (
	Lists = Container{Table: "lists", Parent: "board_id", Owner: "boards", Revision: "list_revision"}
	Cards = Container{Table: "cards", Parent: "list_id", Owner: "lists", Revision: "card_revision", Scope: "board_id"}
)

// Slot is an item and its position.
type Slot struct {
	ID       int64
	Position int
}

// Lock serializes position changes on the given containers until the
// surrounding transaction ends. Owners are locked in ascending id order.
func (c Container) Lock(ctx context.Context, q Querier, parentIDs ...int64) error {
	ids := append([]int64(nil), parentIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var last int64
	for i, id := range ids {
		if i > 0 && id == last {
			continue
		}
		last = id
		res, err := q.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %s = %s + 1 WHERE id = $1`, c.Owner, c.Revision, c.Revision), id)
		if err != nil {
			return fmt.Errorf("lock %s %d: %w", c.Owner, id, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("lock %s %d: %w", c.Owner, id, err)
		} else if n == 0 {
			return ErrContainerNotFound
		}
	}
	return nil
}

// Count returns the number of items in a container.
func (c Container) Count(ctx context.Context, q Querier, parentID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, c.Table, c.Parent), parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Table, err)
	}
	return n, nil
}

// Append locks the container and returns the tail position for a new item.
// The caller inserts the row in the same transaction.
func (c Container) Append(ctx context.Context, q Querier, parentID int64) (int, error) {
	if err := c.Lock(ctx, q, parentID); err != nil {
		return 0, err
	}
	n, err := c.Count(ctx, q, parentID)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// Remove deletes the item and closes the gap it leaves.
func (c Container) Remove(ctx context.Context, q Querier, itemID int64) error {
	parentID, position, err := c.acquire(ctx, q, itemID)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, c.Table), itemID); err != nil {
		return fmt.Errorf("delete %s %d: %w", c.Table, itemID, err)
	}
	if err := c.closeGap(ctx, q, parentID, position); err != nil {
		return err
	}
	return c.Verify(ctx, q, parentID)
}

// Swap exchanges the positions of two items of the same container.
func (c Container) Swap(ctx context.Context, q Querier, a, b int64) error {
	if a == b {
		return ErrSameItem
	}
	parentA, _, err := c.locate(ctx, q, a)
	if err != nil {
		return err
	}
	parentB, _, err := c.locate(ctx, q, b)
	if err != nil {
		return err
	}
	if parentA != parentB {
		return ErrDifferentContainers
	}
	if err := c.Lock(ctx, q, parentA); err != nil {
		return err
	}

	lockedA, posA, err := c.locate(ctx, q, a)
	if err != nil {
		return err
	}
	lockedB, posB, err := c.locate(ctx, q, b)
	if err != nil {
		return err
	}
	if lockedA != parentA || lockedB != parentA {
		return ErrStale
	}

	if err := c.place(ctx, q, a, 0); err != nil {
		return err
	}
	if err := c.place(ctx, q, b, posA); err != nil {
		return err
	}
	if err := c.place(ctx, q, a, posB); err != nil {
		return err
	}
	return c.Verify(ctx, q, parentA)
}

// Move puts the item at position in target. Moving inside the current
// container is a reorder and accepts 1..N; any other target accepts 1..N+1.
func (c Container) Move(ctx context.Context, q Querier, itemID, targetID int64, position int) error {
	if c.Scope == "" {
		return ErrImmovable
	}
	sourceID, _, err := c.locate(ctx, q, itemID)
	if err != nil {
		return err
	}
	if err := c.Lock(ctx, q, sourceID, targetID); err != nil {
		return err
	}
	lockedID, oldPosition, err := c.locate(ctx, q, itemID)
	if err != nil {
		return err
	}
	if lockedID != sourceID {
		return ErrStale
	}

	sourceScope, err := c.scope(ctx, q, sourceID)
	if err != nil {
		return err
	}
	targetScope, err := c.scope(ctx, q, targetID)
	if err != nil {
		return err
	}
	if sourceScope != targetScope {
		return ErrDifferentScope
	}

	n, err := c.Count(ctx, q, targetID)
	if err != nil {
		return err
	}
	limit := n + 1
	if targetID == sourceID {
		limit = n
	}
	if position < 1 || position > limit {
		return fmt.Errorf("%w: %d not in 1..%d", ErrPositionOutOfRange, position, limit)
	}

	if err := c.place(ctx, q, itemID, 0); err != nil {
		return err
	}
	if err := c.closeGap(ctx, q, sourceID, oldPosition); err != nil {
		return err
	}
	if err := c.openGap(ctx, q, targetID, position); err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET %s = $1, position = $2 WHERE id = $3`, c.Table, c.Parent),
		targetID, position, itemID)
	if err != nil {
		return fmt.Errorf("move %s %d: %w", c.Table, itemID, err)
	}

	if err := c.Verify(ctx, q, sourceID); err != nil {
		return err
	}
	if targetID != sourceID {
		return c.Verify(ctx, q, targetID)
	}
	return nil
}

// Verify fails with ErrNotDense unless positions are exactly 1..N.
func (c Container) Verify(ctx context.Context, q Querier, parentID int64) error {
	var n, lowest, highest, distinct int
	err := q.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), COALESCE(MIN(position), 0), COALESCE(MAX(position), 0), COUNT(DISTINCT position)
		FROM %s WHERE %s = $1
	`, c.Table, c.Parent), parentID).Scan(&n, &lowest, &highest, &distinct)
	if err != nil {
		return fmt.Errorf("verify %s: %w", c.Table, err)
	}
	if n == 0 {
		return nil
	}
	if lowest != 1 || highest != n || distinct != n {
		return fmt.Errorf("%w: %s in %s %d has %d rows spanning %d..%d",
			ErrNotDense, c.Table, c.Owner, parentID, n, lowest, highest)
	}
	return nil
}

// Slots lists a container's items in position order.
func (c Container) Slots(ctx context.Context, q Querier, parentID int64) ([]Slot, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, position FROM %s WHERE %s = $1 ORDER BY position`, c.Table, c.Parent), parentID)
	if err != nil {
		return nil, fmt.Errorf("list %s slots: %w", c.Table, err)
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ID, &slot.Position); err != nil {
			return nil, fmt.Errorf("scan %s slot: %w", c.Table, err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (c Container) locate(ctx context.Context, q Querier, itemID int64) (int64, int, error) {
	var parentID int64
	var position int
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s, position FROM %s WHERE id = $1`, c.Parent, c.Table), itemID).Scan(&parentID, &position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrItemNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("locate %s %d: %w", c.Table, itemID, err)
	}
	return parentID, position, nil
}

// acquire locks the item's container and re-reads the item under the lock.
func (c Container) acquire(ctx context.Context, q Querier, itemID int64) (int64, int, error) {
	parentID, _, err := c.locate(ctx, q, itemID)
	if err != nil {
		return 0, 0, err
	}
	if err := c.Lock(ctx, q, parentID); err != nil {
		return 0, 0, err
	}
	lockedID, position, err := c.locate(ctx, q, itemID)
	if err != nil {
		return 0, 0, err
	}
	if lockedID != parentID {
		return 0, 0, ErrStale
	}
	return parentID, position, nil
}

func (c Container) scope(ctx context.Context, q Querier, parentID int64) (int64, error) {
	var value int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, c.Scope, c.Owner), parentID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrContainerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read %s scope: %w", c.Owner, err)
	}
	return value, nil
}

func (c Container) place(ctx context.Context, q Querier, itemID int64, position int) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET position = $1 WHERE id = $2`, c.Table), position, itemID)
	if err != nil {
		return fmt.Errorf("place %s %d: %w", c.Table, itemID, err)
	}
	return nil
}

// closeGap shifts every item after position one step towards the head.
func (c Container) closeGap(ctx context.Context, q Querier, parentID int64, position int) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET position = -(position - 1) WHERE %s = $1 AND position > $2`, c.Table, c.Parent),
		parentID, position)
	if err != nil {
		return fmt.Errorf("close gap in %s: %w", c.Table, err)
	}
	return c.restage(ctx, q, parentID)
}

// openGap shifts every item at or after position one step towards the tail.
func (c Container) openGap(ctx context.Context, q Querier, parentID int64, position int) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET position = -(position + 1) WHERE %s = $1 AND position >= $2`, c.Table, c.Parent),
		parentID, position)
	if err != nil {
		return fmt.Errorf("open gap in %s: %w", c.Table, err)
	}
	return c.restage(ctx, q, parentID)
}

func (c Container) restage(ctx context.Context, q Querier, parentID int64) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET position = -position WHERE %s = $1 AND position < 0`, c.Table, c.Parent), parentID)
	if err != nil {
		return fmt.Errorf("restage %s: %w", c.Table, err)
	}
	return nil
}
