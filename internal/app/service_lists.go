package app

import (
	"context"
	"errors"

	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/store"
)

func (s *Service) loadList(ctx context.Context, actor rbac.Actor, id int64, action rbac.Action) (store.List, error) {
	list, err := s.store.GetList(ctx, id)
	if err != nil {
		return store.List{}, err
	}
	if _, err := s.authorize(ctx, actor, list, action); err != nil {
		return store.List{}, err
	}
	return list, nil
}

func (s *Service) ListLists(ctx context.Context, actor rbac.Actor, boardID int64) ([]listView, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return toListViews(lists), nil
}

// CreateList appends a list to the end of the board.
func (s *Service) CreateList(ctx context.Context, actor rbac.Actor, boardID int64, name string) (listView, error) {
	name, err := cleanName("name", name, maxNameLength)
	if err != nil {
		return listView{}, err
	}
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionEditContent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return listView{}, errField("board", "board does not exist")
		}
		return listView{}, err
	}
	list, err := s.store.CreateList(ctx, boardID, name)
	if err != nil {
		return listView{}, err
	}
	view := toListView(list)
	s.publish(boardID, "created", "list", view)
	return view, nil
}

func (s *Service) GetList(ctx context.Context, actor rbac.Actor, id int64) (listView, error) {
	list, err := s.loadList(ctx, actor, id, rbac.ActionReadBoard)
	if err != nil {
		return listView{}, err
	}
	return toListView(list), nil
}

func (s *Service) RenameList(ctx context.Context, actor rbac.Actor, id int64, name string) (listView, error) {
	name, err := cleanName("name", name, maxNameLength)
	if err != nil {
		return listView{}, err
	}
	if _, err := s.loadList(ctx, actor, id, rbac.ActionEditContent); err != nil {
		return listView{}, err
	}
	list, err := s.store.RenameList(ctx, id, name)
	if err != nil {
		return listView{}, err
	}
	view := toListView(list)
	s.publish(list.BoardID, "updated", "list", view)
	return view, nil
}

// DeleteList drops the list and its cards and closes the gap it leaves.
func (s *Service) DeleteList(ctx context.Context, actor rbac.Actor, id int64) error {
	list, err := s.loadList(ctx, actor, id, rbac.ActionEditContent)
	if err != nil {
		return err
	}
	cards, err := s.store.ListCards(ctx, store.CardFilter{AllBoards: true, ListID: id})
	if err != nil {
		return err
	}
	keys, err := s.store.DeleteList(ctx, id)
	if err != nil {
		return err
	}
	cardIDs := make([]int64, 0, len(cards))
	for _, c := range cards {
		cardIDs = append(cardIDs, c.ID)
	}
	s.removeObjects(ctx, keys)
	s.search.DeleteCards(cardIDs...)
	s.publish(list.BoardID, "deleted", "list", map[string]any{"id": id})
	return nil
}

// SwapLists exchanges the positions of two lists of the same board.
func (s *Service) SwapLists(ctx context.Context, actor rbac.Actor, a, b int64) ([]listView, error) {
	first, err := s.loadList(ctx, actor, a, rbac.ActionEditContent)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadList(ctx, actor, b, rbac.ActionEditContent); err != nil {
		return nil, err
	}
	if err := s.store.SwapLists(ctx, a, b); err != nil {
		return nil, err
	}
	lists, err := s.store.ListLists(ctx, first.BoardID)
	if err != nil {
		return nil, err
	}
	views := toListViews(lists)
	s.publish(first.BoardID, "swapped", "list", views)
	return views, nil
}
