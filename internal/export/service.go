package export

import (
	"context"
	"fmt"
	"time"

	"taskplanner/api/internal/store"
)

// DataStore is the read side of the store an export needs.
type DataStore interface {
	GetBoard(ctx context.Context, id int64) (store.Board, error)
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	ListTags(ctx context.Context, boardID int64) ([]store.Tag, error)
	ListLists(ctx context.Context, boardID int64) ([]store.List, error)
	ListCards(ctx context.Context, filter store.CardFilter) ([]store.Card, error)
	ListCardTags(ctx context.Context, cardID int64) ([]store.Tag, error)
	ListCardParticipants(ctx context.Context, cardID int64) ([]store.User, error)
	ListCheckItems(ctx context.Context, cardID int64) ([]store.CheckItem, error)
	ListComments(ctx context.Context, cardID int64) ([]store.Comment, error)
}

type Service struct {
	store DataStore
	now   func() time.Time
}

func NewService(data DataStore) *Service {
	return &Service{store: data, now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	switch req.Format {
	case FormatHTML, FormatPDF, FormatDOCX:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}

	snap, err := s.Snapshot(ctx, req.BoardID, req.IncludeComments)
	if err != nil {
		return nil, err
	}
	html, err := RenderBoardHTML(snap)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(snap.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, html, snap.Name)
	default:
		return exportDOCX(ctx, html, snap.Name)
	}
}

// Snapshot loads a board with its lists and cards in position order.
func (s *Service) Snapshot(ctx context.Context, boardID int64, includeComments bool) (Snapshot, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get board: %w", err)
	}
	names := map[int64]string{}
	userName := func(id int64) string {
		if name, ok := names[id]; ok {
			return name
		}
		name := fmt.Sprintf("user %d", id)
		if u, err := s.store.GetUserByID(ctx, id); err == nil {
			name = displayName(u)
		}
		names[id] = name
		return name
	}

	snap := Snapshot{
		Name:        board.Name,
		Description: board.Description,
		Author:      userName(board.AuthorID),
		ExportedAt:  s.now().UTC(),
	}

	tags, err := s.store.ListTags(ctx, boardID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list tags: %w", err)
	}
	for _, t := range tags {
		if t.Name != "" {
			snap.Tags = append(snap.Tags, toTag(t))
		}
	}

	lists, err := s.store.ListLists(ctx, boardID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list lists: %w", err)
	}
	for _, l := range lists {
		cards, err := s.store.ListCards(ctx, store.CardFilter{AllBoards: true, ListID: l.ID})
		if err != nil {
			return Snapshot{}, fmt.Errorf("list cards of list %d: %w", l.ID, err)
		}
		list := List{Name: l.Name}
		for _, c := range cards {
			card, err := s.card(ctx, c, includeComments, userName)
			if err != nil {
				return Snapshot{}, err
			}
			list.Cards = append(list.Cards, card)
		}
		snap.Lists = append(snap.Lists, list)
	}
	return snap, nil
}

func (s *Service) card(ctx context.Context, c store.Card, includeComments bool, userName func(int64) string) (Card, error) {
	card := Card{Name: c.Name, Description: c.Description}

	tags, err := s.store.ListCardTags(ctx, c.ID)
	if err != nil {
		return Card{}, fmt.Errorf("list tags of card %d: %w", c.ID, err)
	}
	for _, t := range tags {
		card.Tags = append(card.Tags, toTag(t))
	}

	participants, err := s.store.ListCardParticipants(ctx, c.ID)
	if err != nil {
		return Card{}, fmt.Errorf("list participants of card %d: %w", c.ID, err)
	}
	for _, u := range participants {
		card.Participants = append(card.Participants, displayName(u))
	}

	items, err := s.store.ListCheckItems(ctx, c.ID)
	if err != nil {
		return Card{}, fmt.Errorf("list checklist of card %d: %w", c.ID, err)
	}
	for _, it := range items {
		card.Checklist = append(card.Checklist, CheckItem{Text: it.Text, Done: !it.IsActive})
	}

	if includeComments {
		comments, err := s.store.ListComments(ctx, c.ID)
		if err != nil {
			return Card{}, fmt.Errorf("list comments of card %d: %w", c.ID, err)
		}
		for _, cm := range comments {
			card.Comments = append(card.Comments, Comment{
				Author:  userName(cm.AuthorID),
				Text:    cm.Text,
				PubDate: cm.PubDate,
				Edited:  cm.IsUpdated,
			})
		}
	}
	return card, nil
}

func toTag(t store.Tag) Tag {
	name := t.Name
	if name == "" {
		name = t.Color.String()
	}
	return Tag{Name: name, Color: t.Color.String(), Hex: t.Color.Hex()}
}

func displayName(u store.User) string {
	full := u.FirstName
	if u.LastName != "" {
		if full != "" {
			full += " "
		}
		full += u.LastName
	}
	if full == "" {
		return u.Username
	}
	return full
}
