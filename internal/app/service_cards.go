package app

import (
	"context"
	"errors"
	"strings"

	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/search"
	"taskplanner/api/internal/store"
)

// CardQuery filters ListCards. IsParticipant selects cards the actor is,
// or is not, assigned to.
type CardQuery struct {
	BoardID       int64
	ListID        int64
	Name          string
	IsParticipant *bool
}

type CardInput struct {
	ListID      int64
	Name        string
	Description string
}

type CardPatchInput struct {
	Name        *string
	Description *string
}

func cardRecord(c store.Card) search.CardRecord {
	return search.CardRecord{ID: c.ID, BoardID: c.BoardID, ListID: c.ListID, Name: c.Name, Description: c.Description}
}

func (s *Service) loadCard(ctx context.Context, actor rbac.Actor, id int64, action rbac.Action) (store.Card, error) {
	card, err := s.store.GetCard(ctx, id)
	if err != nil {
		return store.Card{}, err
	}
	if _, err := s.authorize(ctx, actor, card, action); err != nil {
		return store.Card{}, err
	}
	return card, nil
}

// ListCards returns matching cards on the actor's boards, or on every
// board for staff, in board, list and card order.
func (s *Service) ListCards(ctx context.Context, actor rbac.Actor, q CardQuery) ([]cardView, error) {
	filter := store.CardFilter{
		ViewerID:  actor.UserID,
		AllBoards: actor.IsStaff,
		BoardID:   q.BoardID,
		ListID:    q.ListID,
		Name:      q.Name,
	}
	if q.IsParticipant != nil && *q.IsParticipant {
		filter.ParticipantID = actor.UserID
	}
	cards, err := s.store.ListCards(ctx, filter)
	if err != nil {
		return nil, err
	}
	if q.IsParticipant != nil && !*q.IsParticipant {
		filter.ParticipantID = actor.UserID
		assigned, err := s.store.ListCards(ctx, filter)
		if err != nil {
			return nil, err
		}
		skip := make(map[int64]struct{}, len(assigned))
		for _, c := range assigned {
			skip[c.ID] = struct{}{}
		}
		kept := cards[:0]
		for _, c := range cards {
			if _, ok := skip[c.ID]; !ok {
				kept = append(kept, c)
			}
		}
		cards = kept
	}
	return toCardViews(cards), nil
}

// CreateCard appends a card to the end of its list.
func (s *Service) CreateCard(ctx context.Context, actor rbac.Actor, input CardInput) (cardView, error) {
	name, err := cleanName("name", input.Name, maxNameLength)
	if err != nil {
		return cardView{}, err
	}
	if _, err := s.loadList(ctx, actor, input.ListID, rbac.ActionEditContent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cardView{}, errField("list", "list does not exist")
		}
		return cardView{}, err
	}
	card, err := s.store.CreateCard(ctx, input.ListID, name, strings.TrimSpace(input.Description))
	if err != nil {
		return cardView{}, err
	}
	view := toCardView(card)
	s.search.IndexCard(cardRecord(card))
	s.publish(card.BoardID, "created", "card", view)
	return view, nil
}

func (s *Service) GetCard(ctx context.Context, actor rbac.Actor, id int64) (cardDetailView, error) {
	card, err := s.loadCard(ctx, actor, id, rbac.ActionReadBoard)
	if err != nil {
		return cardDetailView{}, err
	}
	return s.cardDetail(ctx, card)
}

func (s *Service) cardDetail(ctx context.Context, card store.Card) (cardDetailView, error) {
	participants, err := s.store.ListCardParticipants(ctx, card.ID)
	if err != nil {
		return cardDetailView{}, err
	}
	tags, err := s.store.ListCardTags(ctx, card.ID)
	if err != nil {
		return cardDetailView{}, err
	}
	return cardDetailView{
		cardView:     toCardView(card),
		Participants: toUserViews(participants),
		Tags:         toTagViews(tags),
	}, nil
}

func (s *Service) UpdateCard(ctx context.Context, actor rbac.Actor, id int64, input CardPatchInput) (cardView, error) {
	if _, err := s.loadCard(ctx, actor, id, rbac.ActionEditContent); err != nil {
		return cardView{}, err
	}
	patch := store.CardPatch{Description: input.Description}
	if input.Name != nil {
		name, err := cleanName("name", *input.Name, maxNameLength)
		if err != nil {
			return cardView{}, err
		}
		patch.Name = &name
	}
	card, err := s.store.UpdateCard(ctx, id, patch)
	if err != nil {
		return cardView{}, err
	}
	view := toCardView(card)
	s.search.IndexCard(cardRecord(card))
	s.publish(card.BoardID, "updated", "card", view)
	return view, nil
}

// DeleteCard removes the card and closes the gap in its list.
func (s *Service) DeleteCard(ctx context.Context, actor rbac.Actor, id int64) error {
	card, err := s.loadCard(ctx, actor, id, rbac.ActionEditContent)
	if err != nil {
		return err
	}
	keys, err := s.store.DeleteCard(ctx, id)
	if err != nil {
		return err
	}
	s.removeObjects(ctx, keys)
	s.search.DeleteCards(id)
	s.publish(card.BoardID, "deleted", "card", map[string]any{"id": id, "list": card.ListID})
	return nil
}

// SwapCards exchanges the positions of two cards of the same list.
func (s *Service) SwapCards(ctx context.Context, actor rbac.Actor, a, b int64) ([]cardView, error) {
	first, err := s.loadCard(ctx, actor, a, rbac.ActionEditContent)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadCard(ctx, actor, b, rbac.ActionEditContent); err != nil {
		return nil, err
	}
	if err := s.store.SwapCards(ctx, a, b); err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, store.CardFilter{AllBoards: true, ListID: first.ListID})
	if err != nil {
		return nil, err
	}
	views := toCardViews(cards)
	s.publish(first.BoardID, "swapped", "card", views)
	return views, nil
}

// MoveCard places a card at position in listID, which must be on the same
// board. The card's current list is a valid target.
func (s *Service) MoveCard(ctx context.Context, actor rbac.Actor, id, listID int64, position int) (cardView, error) {
	card, err := s.loadCard(ctx, actor, id, rbac.ActionEditContent)
	if err != nil {
		return cardView{}, err
	}
	if _, err := s.store.GetList(ctx, listID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cardView{}, errField("id", "list does not exist")
		}
		return cardView{}, err
	}
	moved, err := s.store.MoveCard(ctx, id, listID, position)
	if err != nil {
		return cardView{}, err
	}
	view := toCardView(moved)
	s.search.IndexCard(cardRecord(moved))
	s.publish(card.BoardID, "moved", "card", map[string]any{"card": view, "from_list": card.ListID})
	return view, nil
}

func (s *Service) AddCardParticipant(ctx context.Context, actor rbac.Actor, cardID, userID int64) ([]userView, error) {
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return nil, err
	}
	err = s.store.AddCardParticipant(ctx, cardID, userID)
	switch {
	case errors.Is(err, store.ErrNotBoardMember):
		return nil, errField("id", "user is not a participant of the board")
	case errors.Is(err, store.ErrAlreadyExists):
		return nil, errConflict("User is already a participant of this card")
	case err != nil:
		return nil, err
	}
	return s.cardParticipants(ctx, card)
}

func (s *Service) RemoveCardParticipant(ctx context.Context, actor rbac.Actor, cardID, userID int64) ([]userView, error) {
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return nil, err
	}
	if err := s.store.RemoveCardParticipant(ctx, cardID, userID); err != nil {
		if errors.Is(err, store.ErrNotAssigned) {
			return nil, errConflict("User is not a participant of this card")
		}
		return nil, err
	}
	return s.cardParticipants(ctx, card)
}

func (s *Service) cardParticipants(ctx context.Context, card store.Card) ([]userView, error) {
	users, err := s.store.ListCardParticipants(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	views := toUserViews(users)
	s.publish(card.BoardID, "updated", "card_participants", map[string]any{"card": card.ID, "participants": views})
	return views, nil
}

func (s *Service) AddCardTag(ctx context.Context, actor rbac.Actor, cardID, tagID int64) ([]tagView, error) {
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return nil, err
	}
	err = s.store.AddCardTag(ctx, cardID, tagID)
	switch {
	case errors.Is(err, store.ErrForeignTag), errors.Is(err, store.ErrNotFound):
		return nil, errField("id", "tag does not belong to this board")
	case errors.Is(err, store.ErrAlreadyExists):
		return nil, errConflict("Tag is already on this card")
	case err != nil:
		return nil, err
	}
	return s.cardTags(ctx, card)
}

func (s *Service) RemoveCardTag(ctx context.Context, actor rbac.Actor, cardID, tagID int64) ([]tagView, error) {
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return nil, err
	}
	if err := s.store.RemoveCardTag(ctx, cardID, tagID); err != nil {
		if errors.Is(err, store.ErrNotAssigned) {
			return nil, errConflict("Tag is not on this card")
		}
		return nil, err
	}
	return s.cardTags(ctx, card)
}

func (s *Service) cardTags(ctx context.Context, card store.Card) ([]tagView, error) {
	tags, err := s.store.ListCardTags(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	views := toTagViews(tags)
	s.publish(card.BoardID, "updated", "card_tags", map[string]any{"card": card.ID, "tags": views})
	return views, nil
}
