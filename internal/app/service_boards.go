package app

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"taskplanner/api/internal/export"
	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/search"
	"taskplanner/api/internal/store"
)

// BoardFilter narrows ListBoards. Nil fields do not filter.
type BoardFilter struct {
	IsFavored *bool
	IsAuthor  *bool
}

type BoardInput struct {
	Name        string
	Description string
	Avatar      string
}

func (s *Service) ListBoards(ctx context.Context, actor rbac.Actor, filter BoardFilter) ([]boardView, error) {
	listings, err := s.store.ListBoards(ctx, actor.UserID, actor.IsStaff)
	if err != nil {
		return nil, err
	}
	out := make([]boardView, 0, len(listings))
	for _, l := range listings {
		view := toBoardView(l.Board, actor.UserID, l.IsFavored, l.IsMember)
		if filter.IsFavored != nil && view.IsFavored != *filter.IsFavored {
			continue
		}
		if filter.IsAuthor != nil && view.IsAuthor != *filter.IsAuthor {
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

// CreateBoard makes the actor the board's author and moderating member and
// seeds its tags.
func (s *Service) CreateBoard(ctx context.Context, actor rbac.Actor, input BoardInput) (boardView, error) {
	name, err := cleanName("name", input.Name, maxNameLength)
	if err != nil {
		return boardView{}, err
	}
	board, err := s.store.CreateBoard(ctx, store.Board{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Avatar:      strings.TrimSpace(input.Avatar),
		AuthorID:    actor.UserID,
	})
	if err != nil {
		return boardView{}, err
	}
	s.search.IndexBoard(search.BoardRecord{ID: board.ID, Name: board.Name, Description: board.Description})
	return toBoardView(board, actor.UserID, false, true), nil
}

func (s *Service) loadBoard(ctx context.Context, actor rbac.Actor, id int64, action rbac.Action) (store.Board, rbac.Role, error) {
	board, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return store.Board{}, rbac.RoleNone, err
	}
	role, err := s.authorize(ctx, actor, board, action)
	if err != nil {
		return store.Board{}, role, err
	}
	return board, role, nil
}

// GetBoard returns the board with its ordered lists, tags and participant
// ids.
func (s *Service) GetBoard(ctx context.Context, actor rbac.Actor, id int64) (boardDetailView, error) {
	board, role, err := s.loadBoard(ctx, actor, id, rbac.ActionReadBoard)
	if err != nil {
		return boardDetailView{}, err
	}

	var (
		author  store.User
		lists   []store.List
		tags    []store.Tag
		members []store.Member
		favored bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		author, err = s.store.GetUserByID(gctx, board.AuthorID)
		return err
	})
	g.Go(func() (err error) {
		lists, err = s.store.ListLists(gctx, board.ID)
		return err
	})
	g.Go(func() (err error) {
		tags, err = s.store.ListTags(gctx, board.ID)
		return err
	})
	g.Go(func() (err error) {
		members, err = s.store.ListMembers(gctx, board.ID)
		return err
	})
	g.Go(func() (err error) {
		favored, err = s.store.IsFavorite(gctx, actor.UserID, board.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return boardDetailView{}, err
	}

	participants := make([]int64, 0, len(members))
	for _, m := range members {
		participants = append(participants, m.ID)
	}
	return boardDetailView{
		boardView:    toBoardView(board, actor.UserID, favored, role != rbac.RoleStaff || containsID(participants, actor.UserID)),
		AuthorUser:   toUserView(author),
		Lists:        toListViews(lists),
		Tags:         toTagViews(tags),
		Participants: participants,
	}, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type BoardPatchInput struct {
	Name        *string
	Description *string
	Avatar      *string
}

func (s *Service) UpdateBoard(ctx context.Context, actor rbac.Actor, id int64, input BoardPatchInput) (boardView, error) {
	if _, _, err := s.loadBoard(ctx, actor, id, rbac.ActionUpdateBoard); err != nil {
		return boardView{}, err
	}
	patch := store.BoardPatch{Description: input.Description, Avatar: input.Avatar}
	if input.Name != nil {
		name, err := cleanName("name", *input.Name, maxNameLength)
		if err != nil {
			return boardView{}, err
		}
		patch.Name = &name
	}
	board, err := s.store.UpdateBoard(ctx, id, patch)
	if err != nil {
		return boardView{}, err
	}
	favored, err := s.store.IsFavorite(ctx, actor.UserID, id)
	if err != nil {
		return boardView{}, err
	}
	_, memberErr := s.store.GetMembership(ctx, id, actor.UserID)
	view := toBoardView(board, actor.UserID, favored, memberErr == nil)
	s.search.IndexBoard(search.BoardRecord{ID: board.ID, Name: board.Name, Description: board.Description})
	s.publish(id, "updated", "board", view)
	return view, nil
}

// DeleteBoard cascades to everything on the board, then drops attachment
// objects and search documents.
func (s *Service) DeleteBoard(ctx context.Context, actor rbac.Actor, id int64) error {
	if _, _, err := s.loadBoard(ctx, actor, id, rbac.ActionDeleteBoard); err != nil {
		return err
	}
	cards, err := s.store.ListCards(ctx, store.CardFilter{AllBoards: true, BoardID: id})
	if err != nil {
		return err
	}
	keys, err := s.store.DeleteBoard(ctx, id)
	if err != nil {
		return err
	}
	cardIDs := make([]int64, 0, len(cards))
	for _, c := range cards {
		cardIDs = append(cardIDs, c.ID)
	}
	s.removeObjects(ctx, keys)
	s.search.DeleteBoard(id, cardIDs)
	s.publish(id, "deleted", "board", map[string]any{"id": id})
	return nil
}

func (s *Service) AddFavorite(ctx context.Context, actor rbac.Actor, boardID int64) error {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionFavorite); err != nil {
		return err
	}
	err := s.store.AddFavorite(ctx, actor.UserID, boardID)
	if errors.Is(err, store.ErrAlreadyExists) {
		return errConflict("Board is already in favorites")
	}
	return err
}

func (s *Service) RemoveFavorite(ctx context.Context, actor rbac.Actor, boardID int64) error {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionFavorite); err != nil {
		return err
	}
	err := s.store.RemoveFavorite(ctx, actor.UserID, boardID)
	if errors.Is(err, store.ErrNotFound) {
		return errConflict("Board is not in favorites")
	}
	return err
}

func (s *Service) ListParticipants(ctx context.Context, actor rbac.Actor, boardID int64) ([]participantView, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return toParticipantViews(members), nil
}

// Leave removes the actor from the board. Staff who are not members have
// nothing to leave.
func (s *Service) Leave(ctx context.Context, actor rbac.Actor, boardID int64) error {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionLeave); err != nil {
		return err
	}
	err := s.store.RemoveMember(ctx, boardID, actor.UserID, false)
	switch {
	case errors.Is(err, store.ErrAuthorProtected):
		return errConflict("The author cannot leave the board")
	case errors.Is(err, store.ErrNotFound):
		return errConflict("You are not a participant of this board")
	case err != nil:
		return err
	}
	s.publish(boardID, "deleted", "participant", map[string]any{"id": actor.UserID})
	return nil
}

// RemoveParticipant drops another member. Only the author and staff may
// remove a moderator.
func (s *Service) RemoveParticipant(ctx context.Context, actor rbac.Actor, boardID, userID int64) error {
	_, role, err := s.loadBoard(ctx, actor, boardID, rbac.ActionManageMembers)
	if err != nil {
		return err
	}
	if userID == actor.UserID {
		return errConflict("Use leave to remove yourself from a board")
	}
	protectModerators := role != rbac.RoleAuthor && role != rbac.RoleStaff
	err = s.store.RemoveMember(ctx, boardID, userID, protectModerators)
	switch {
	case errors.Is(err, store.ErrAuthorProtected):
		return errConflict("The board author cannot be removed")
	case errors.Is(err, store.ErrNotFound):
		return errNotFound("Participant")
	case err != nil:
		return err
	}
	s.publish(boardID, "deleted", "participant", map[string]any{"id": userID})
	return nil
}

// SwitchModerator sets or, with a nil value, flips a member's moderator
// flag and returns the result.
func (s *Service) SwitchModerator(ctx context.Context, actor rbac.Actor, boardID, userID int64, value *bool) (bool, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionSetModerator); err != nil {
		return false, err
	}
	isModerator, err := s.store.SetModerator(ctx, boardID, userID, value)
	switch {
	case errors.Is(err, store.ErrAuthorProtected):
		return false, errConflict("The board author always stays a moderator")
	case errors.Is(err, store.ErrNotFound):
		return false, errNotFound("Participant")
	case err != nil:
		return false, err
	}
	s.publish(boardID, "updated", "participant", map[string]any{"id": userID, "is_moderator": isModerator})
	return isModerator, nil
}

func (s *Service) ListTags(ctx context.Context, actor rbac.Actor, boardID int64) ([]tagView, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	tags, err := s.store.ListTags(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return toTagViews(tags), nil
}

// RenameTag changes a tag's name. An empty name is allowed.
func (s *Service) RenameTag(ctx context.Context, actor rbac.Actor, boardID, tagID int64, name string) (tagView, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionEditTag); err != nil {
		return tagView{}, err
	}
	tag, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return tagView{}, err
	}
	if tag.BoardID != boardID {
		return tagView{}, errNotFound("Tag")
	}
	name = strings.TrimSpace(name)
	if len([]rune(name)) > maxTagNameLength {
		return tagView{}, errField("name", "must be at most 20 characters")
	}
	tag, err = s.store.RenameTag(ctx, tagID, name)
	if err != nil {
		return tagView{}, err
	}
	view := toTagView(tag)
	s.publish(boardID, "updated", "tag", view)
	return view, nil
}

func (s *Service) ExportBoard(ctx context.Context, actor rbac.Actor, boardID int64, format export.Format, includeComments bool) (*export.Result, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{BoardID: boardID, Format: format, IncludeComments: includeComments})
}

// AuthorizeEvents reports whether the actor may stream a board's events.
func (s *Service) AuthorizeEvents(ctx context.Context, actor rbac.Actor, boardID int64) error {
	_, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionReadBoard)
	return err
}

// Search matches boards and cards on the boards the actor belongs to;
// staff search everything.
func (s *Service) Search(ctx context.Context, actor rbac.Actor, q search.Query) (search.Response, error) {
	q.All = actor.IsStaff
	q.BoardIDs = nil
	if !q.All {
		listings, err := s.store.ListBoards(ctx, actor.UserID, false)
		if err != nil {
			return search.Response{}, err
		}
		for _, l := range listings {
			q.BoardIDs = append(q.BoardIDs, l.ID)
		}
	}
	return s.search.Search(ctx, q), nil
}
