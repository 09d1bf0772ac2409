package app

import (
	"time"

	"taskplanner/api/internal/store"
)

// JSON projections of store entities. Foreign keys are exposed as plain
// ids under the entity name, the way clients already address them.

type userView struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Bio       string `json:"bio"`
	IsStaff   bool   `json:"is_staff"`
}

func toUserView(u store.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bio:       u.Bio,
		IsStaff:   u.IsStaff,
	}
}

func toUserViews(users []store.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	return out
}

type participantView struct {
	userView
	IsModerator bool `json:"is_moderator"`
}

func toParticipantViews(members []store.Member) []participantView {
	out := make([]participantView, 0, len(members))
	for _, m := range members {
		out = append(out, participantView{userView: toUserView(m.User), IsModerator: m.IsModerator})
	}
	return out
}

type boardView struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Avatar        string    `json:"avatar,omitempty"`
	Author        int64     `json:"author"`
	CreatedAt     time.Time `json:"created_at"`
	IsFavored     bool      `json:"is_favored"`
	IsAuthor      bool      `json:"is_author"`
	IsParticipant bool      `json:"is_participant"`
}

func toBoardView(b store.Board, viewer int64, favored, member bool) boardView {
	return boardView{
		ID:            b.ID,
		Name:          b.Name,
		Description:   b.Description,
		Avatar:        b.Avatar,
		Author:        b.AuthorID,
		CreatedAt:     b.CreatedAt,
		IsFavored:     favored,
		IsAuthor:      b.AuthorID == viewer,
		IsParticipant: member,
	}
}

type boardDetailView struct {
	boardView
	AuthorUser   userView   `json:"author_user"`
	Lists        []listView `json:"lists"`
	Tags         []tagView  `json:"tags"`
	Participants []int64    `json:"participants"`
}

type tagView struct {
	ID    int64  `json:"id"`
	Board int64  `json:"board"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Hex   string `json:"hex"`
}

func toTagView(t store.Tag) tagView {
	return tagView{ID: t.ID, Board: t.BoardID, Name: t.Name, Color: t.Color.String(), Hex: t.Color.Hex()}
}

func toTagViews(tags []store.Tag) []tagView {
	out := make([]tagView, 0, len(tags))
	for _, t := range tags {
		out = append(out, toTagView(t))
	}
	return out
}

type listView struct {
	ID        int64     `json:"id"`
	Board     int64     `json:"board"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func toListView(l store.List) listView {
	return listView{ID: l.ID, Board: l.BoardID, Name: l.Name, Position: l.Position, CreatedAt: l.CreatedAt}
}

func toListViews(lists []store.List) []listView {
	out := make([]listView, 0, len(lists))
	for _, l := range lists {
		out = append(out, toListView(l))
	}
	return out
}

type cardView struct {
	ID          int64     `json:"id"`
	List        int64     `json:"list"`
	Board       int64     `json:"board"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCardView(c store.Card) cardView {
	return cardView{
		ID:          c.ID,
		List:        c.ListID,
		Board:       c.BoardID,
		Name:        c.Name,
		Description: c.Description,
		Position:    c.Position,
		CreatedAt:   c.CreatedAt,
	}
}

func toCardViews(cards []store.Card) []cardView {
	out := make([]cardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCardView(c))
	}
	return out
}

type cardDetailView struct {
	cardView
	Participants []userView `json:"participants"`
	Tags         []tagView  `json:"tags"`
}

type commentView struct {
	ID        int64     `json:"id"`
	Card      int64     `json:"card"`
	Author    int64     `json:"author"`
	Text      string    `json:"text"`
	PubDate   time.Time `json:"pub_date"`
	IsUpdated bool      `json:"is_updated"`
}

func toCommentView(c store.Comment) commentView {
	return commentView{ID: c.ID, Card: c.CardID, Author: c.AuthorID, Text: c.Text, PubDate: c.PubDate, IsUpdated: c.IsUpdated}
}

func toCommentViews(comments []store.Comment) []commentView {
	out := make([]commentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentView(c))
	}
	return out
}

type checkItemView struct {
	ID       int64  `json:"id"`
	Card     int64  `json:"card"`
	Text     string `json:"text"`
	IsActive bool   `json:"is_active"`
}

func toCheckItemView(c store.CheckItem) checkItemView {
	return checkItemView{ID: c.ID, Card: c.CardID, Text: c.Text, IsActive: c.IsActive}
}

func toCheckItemViews(items []store.CheckItem) []checkItemView {
	out := make([]checkItemView, 0, len(items))
	for _, c := range items {
		out = append(out, toCheckItemView(c))
	}
	return out
}

type fileView struct {
	ID          int64     `json:"id"`
	Card        int64     `json:"card"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  int64     `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

func toFileView(f store.CardFile) fileView {
	return fileView{
		ID:          f.ID,
		Card:        f.CardID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
		UploadedBy:  f.UploadedBy,
		CreatedAt:   f.CreatedAt,
	}
}

func toFileViews(files []store.CardFile) []fileView {
	out := make([]fileView, 0, len(files))
	for _, f := range files {
		out = append(out, toFileView(f))
	}
	return out
}

type requestView struct {
	ID        int64     `json:"id"`
	Board     int64     `json:"board"`
	User      int64     `json:"user"`
	InvitedBy int64     `json:"invited_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toRequestView(r store.JoinRequest) requestView {
	return requestView{ID: r.ID, Board: r.BoardID, User: r.UserID, InvitedBy: r.InvitedBy, CreatedAt: r.CreatedAt}
}

func toRequestViews(requests []store.JoinRequest) []requestView {
	out := make([]requestView, 0, len(requests))
	for _, r := range requests {
		out = append(out, toRequestView(r))
	}
	return out
}
