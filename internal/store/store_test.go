package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"taskplanner/api/internal/ordering"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := ApplyMigrations(ctx, db, dialect); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewSQLStore(db, TxPolicy{Timeout: 5 * time.Second, MaxAttempts: 3})
}

func mustUser(t *testing.T, s *SQLStore, name string) User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), User{Email: name + "@example.com", Username: name, PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func mustBoard(t *testing.T, s *SQLStore, author User) Board {
	t.Helper()
	b, err := s.CreateBoard(context.Background(), Board{Name: "Roadmap", AuthorID: author.ID})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b
}

func mustList(t *testing.T, s *SQLStore, boardID int64, name string) List {
	t.Helper()
	l, err := s.CreateList(context.Background(), boardID, name)
	if err != nil {
		t.Fatalf("create list %s: %v", name, err)
	}
	return l
}

func mustCard(t *testing.T, s *SQLStore, listID int64, name string) Card {
	t.Helper()
	c, err := s.CreateCard(context.Background(), listID, name, "")
	if err != nil {
		t.Fatalf("create card %s: %v", name, err)
	}
	return c
}

func listNames(t *testing.T, s *SQLStore, boardID int64) []string {
	t.Helper()
	lists, err := s.ListLists(context.Background(), boardID)
	if err != nil {
		t.Fatalf("list lists: %v", err)
	}
	names := make([]string, 0, len(lists))
	for i, l := range lists {
		if l.Position != i+1 {
			t.Fatalf("list %s at position %d, want %d", l.Name, l.Position, i+1)
		}
		names = append(names, l.Name)
	}
	return names
}

func cardNames(t *testing.T, s *SQLStore, viewer, listID int64) []string {
	t.Helper()
	cards, err := s.ListCards(context.Background(), CardFilter{ViewerID: viewer, ListID: listID})
	if err != nil {
		t.Fatalf("list cards: %v", err)
	}
	names := make([]string, 0, len(cards))
	for i, c := range cards {
		if c.Position != i+1 {
			t.Fatalf("card %s at position %d, want %d", c.Name, c.Position, i+1)
		}
		names = append(names, c.Name)
	}
	return names
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCreateBoardSeedsAuthorAndTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	author := mustUser(t, s, "ada")
	board := mustBoard(t, s, author)

	m, err := s.GetMembership(ctx, board.ID, author.ID)
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if !m.IsAuthor || !m.IsModerator {
		t.Fatalf("author membership = %+v", m)
	}

	tags, err := s.ListTags(ctx, board.ID)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != len(TagColors) {
		t.Fatalf("got %d tags, want %d", len(tags), len(TagColors))
	}
	for i, tag := range tags {
		if tag.Color != TagColors[i] || tag.Name != "" {
			t.Fatalf("tag %d = %+v", i, tag)
		}
	}
	if TagRed.Hex() != "#f35a5a" || TagPurple.String() != "purple" {
		t.Fatalf("unexpected color metadata")
	}
}

func TestListBoardsFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	bob := mustUser(t, s, "bob")
	mine := mustBoard(t, s, ada)
	other := mustBoard(t, s, bob)

	if err := s.AddFavorite(ctx, ada.ID, mine.ID); err != nil {
		t.Fatalf("add favorite: %v", err)
	}
	if err := s.AddFavorite(ctx, ada.ID, mine.ID); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate favorite err = %v", err)
	}

	listings, err := s.ListBoards(ctx, ada.ID, false)
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if len(listings) != 1 || listings[0].ID != mine.ID || !listings[0].IsFavored || !listings[0].IsMember {
		t.Fatalf("member listing = %+v", listings)
	}

	all, err := s.ListBoards(ctx, ada.ID, true)
	if err != nil {
		t.Fatalf("list all boards: %v", err)
	}
	if len(all) != 2 || all[1].ID != other.ID || all[1].IsMember {
		t.Fatalf("all listing = %+v", all)
	}

	if err := s.RemoveFavorite(ctx, ada.ID, mine.ID); err != nil {
		t.Fatalf("remove favorite: %v", err)
	}
	if err := s.RemoveFavorite(ctx, ada.ID, mine.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestListsStayDense(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	board := mustBoard(t, s, ada)

	l1 := mustList(t, s, board.ID, "L1")
	l2 := mustList(t, s, board.ID, "L2")
	l3 := mustList(t, s, board.ID, "L3")
	if l1.Position != 1 || l2.Position != 2 || l3.Position != 3 {
		t.Fatalf("positions = %d %d %d", l1.Position, l2.Position, l3.Position)
	}

	if err := s.SwapLists(ctx, l1.ID, l3.ID); err != nil {
		t.Fatalf("swap lists: %v", err)
	}
	assertNames(t, listNames(t, s, board.ID), "L3", "L2", "L1")

	if _, err := s.DeleteList(ctx, l2.ID); err != nil {
		t.Fatalf("delete list: %v", err)
	}
	assertNames(t, listNames(t, s, board.ID), "L3", "L1")

	if _, err := s.DeleteList(ctx, l2.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete missing list err = %v", err)
	}
}

func TestSwapListsAcrossBoardsRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	a := mustList(t, s, mustBoard(t, s, ada).ID, "A")
	b := mustList(t, s, mustBoard(t, s, ada).ID, "B")

	if err := s.SwapLists(ctx, a.ID, b.ID); !errors.Is(err, ordering.ErrDifferentContainers) {
		t.Fatalf("cross-board swap err = %v", err)
	}
	if err := s.SwapLists(ctx, a.ID, a.ID); !errors.Is(err, ordering.ErrSameItem) {
		t.Fatalf("self swap err = %v", err)
	}
}

func TestCardsMoveAndRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	board := mustBoard(t, s, ada)
	todo := mustList(t, s, board.ID, "todo")
	done := mustList(t, s, board.ID, "done")

	c1 := mustCard(t, s, todo.ID, "c1")
	c2 := mustCard(t, s, todo.ID, "c2")
	mustCard(t, s, todo.ID, "c3")
	mustCard(t, s, done.ID, "d1")

	moved, err := s.MoveCard(ctx, c2.ID, done.ID, 1)
	if err != nil {
		t.Fatalf("move card: %v", err)
	}
	if moved.ListID != done.ID || moved.Position != 1 || moved.BoardID != board.ID {
		t.Fatalf("moved card = %+v", moved)
	}
	assertNames(t, cardNames(t, s, ada.ID, todo.ID), "c1", "c3")
	assertNames(t, cardNames(t, s, ada.ID, done.ID), "c2", "d1")

	if _, err := s.MoveCard(ctx, c1.ID, done.ID, 4); !errors.Is(err, ordering.ErrPositionOutOfRange) {
		t.Fatalf("out of range move err = %v", err)
	}
	if _, err := s.MoveCard(ctx, c1.ID, done.ID, 3); err != nil {
		t.Fatalf("move to tail: %v", err)
	}
	assertNames(t, cardNames(t, s, ada.ID, done.ID), "c2", "d1", "c1")

	if _, err := s.DeleteCard(ctx, c2.ID); err != nil {
		t.Fatalf("delete card: %v", err)
	}
	assertNames(t, cardNames(t, s, ada.ID, done.ID), "d1", "c1")
}

func TestMoveCardToAnotherBoardRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	src := mustList(t, s, mustBoard(t, s, ada).ID, "src")
	dst := mustList(t, s, mustBoard(t, s, ada).ID, "dst")
	card := mustCard(t, s, src.ID, "c")

	if _, err := s.MoveCard(ctx, card.ID, dst.ID, 1); !errors.Is(err, ordering.ErrDifferentScope) {
		t.Fatalf("cross-board move err = %v", err)
	}
	got, err := s.GetCard(ctx, card.ID)
	if err != nil {
		t.Fatalf("get card: %v", err)
	}
	if got.ListID != src.ID || got.Position != 1 {
		t.Fatalf("card changed after rejected move: %+v", got)
	}
}

func TestCardFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	bob := mustUser(t, s, "bob")
	board := mustBoard(t, s, ada)
	list := mustList(t, s, board.ID, "todo")
	fix := mustCard(t, s, list.ID, "Fix login")
	mustCard(t, s, list.ID, "Write docs")

	if err := s.AddCardParticipant(ctx, fix.ID, bob.ID); !errors.Is(err, ErrNotBoardMember) {
		t.Fatalf("non-member participant err = %v", err)
	}
	if err := s.AddCardParticipant(ctx, fix.ID, ada.ID); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	byName, err := s.ListCards(ctx, CardFilter{ViewerID: ada.ID, Name: "LOGIN"})
	if err != nil || len(byName) != 1 || byName[0].ID != fix.ID {
		t.Fatalf("name filter = %+v, %v", byName, err)
	}
	byParticipant, err := s.ListCards(ctx, CardFilter{ViewerID: ada.ID, ParticipantID: ada.ID})
	if err != nil || len(byParticipant) != 1 {
		t.Fatalf("participant filter = %+v, %v", byParticipant, err)
	}
	hidden, err := s.ListCards(ctx, CardFilter{ViewerID: bob.ID})
	if err != nil || len(hidden) != 0 {
		t.Fatalf("non-member sees %+v, %v", hidden, err)
	}
	all, err := s.ListCards(ctx, CardFilter{ViewerID: bob.ID, AllBoards: true})
	if err != nil || len(all) != 2 {
		t.Fatalf("all boards = %+v, %v", all, err)
	}
}

func TestCardTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	board := mustBoard(t, s, ada)
	other := mustBoard(t, s, ada)
	card := mustCard(t, s, mustList(t, s, board.ID, "todo").ID, "c")

	tags, _ := s.ListTags(ctx, board.ID)
	foreign, _ := s.ListTags(ctx, other.ID)

	if err := s.AddCardTag(ctx, card.ID, foreign[0].ID); !errors.Is(err, ErrForeignTag) {
		t.Fatalf("foreign tag err = %v", err)
	}
	if err := s.AddCardTag(ctx, card.ID, tags[2].ID); err != nil {
		t.Fatalf("add tag: %v", err)
	}
	if err := s.AddCardTag(ctx, card.ID, tags[2].ID); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate tag err = %v", err)
	}
	got, err := s.ListCardTags(ctx, card.ID)
	if err != nil || len(got) != 1 || got[0].Color != TagYellow {
		t.Fatalf("card tags = %+v, %v", got, err)
	}
	if err := s.RemoveCardTag(ctx, card.ID, tags[2].ID); err != nil {
		t.Fatalf("remove tag: %v", err)
	}
	if err := s.RemoveCardTag(ctx, card.ID, tags[2].ID); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("remove absent tag err = %v", err)
	}
}

func TestRemoveMemberCascadesAndGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	bob := mustUser(t, s, "bob")
	cat := mustUser(t, s, "cat")
	board := mustBoard(t, s, ada)
	card := mustCard(t, s, mustList(t, s, board.ID, "todo").ID, "c")

	for _, u := range []User{bob, cat} {
		req, err := s.CreateJoinRequest(ctx, board.ID, u.ID, ada.ID)
		if err != nil {
			t.Fatalf("invite %s: %v", u.Username, err)
		}
		if _, err := s.AcceptJoinRequest(ctx, req.ID); err != nil {
			t.Fatalf("accept %s: %v", u.Username, err)
		}
	}
	if err := s.AddCardParticipant(ctx, card.ID, bob.ID); err != nil {
		t.Fatalf("add participant: %v", err)
	}

	if err := s.RemoveMember(ctx, board.ID, ada.ID, false); !errors.Is(err, ErrAuthorProtected) {
		t.Fatalf("remove author err = %v", err)
	}
	if _, err := s.SetModerator(ctx, board.ID, ada.ID, nil); !errors.Is(err, ErrAuthorProtected) {
		t.Fatalf("demote author err = %v", err)
	}

	on, err := s.SetModerator(ctx, board.ID, cat.ID, nil)
	if err != nil || !on {
		t.Fatalf("toggle moderator = %v, %v", on, err)
	}
	if err := s.RemoveMember(ctx, board.ID, cat.ID, true); !errors.Is(err, ErrModeratorProtected) {
		t.Fatalf("remove moderator err = %v", err)
	}

	if err := s.RemoveMember(ctx, board.ID, bob.ID, true); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, err := s.GetMembership(ctx, board.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("membership after removal err = %v", err)
	}
	participants, err := s.ListCardParticipants(ctx, card.ID)
	if err != nil || len(participants) != 0 {
		t.Fatalf("participants after removal = %+v, %v", participants, err)
	}
}

func TestJoinRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	bob := mustUser(t, s, "bob")
	board := mustBoard(t, s, ada)

	if _, err := s.CreateJoinRequest(ctx, board.ID, ada.ID, ada.ID); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("invite member err = %v", err)
	}
	req, err := s.CreateJoinRequest(ctx, board.ID, bob.ID, ada.ID)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := s.CreateJoinRequest(ctx, board.ID, bob.ID, ada.ID); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate invite err = %v", err)
	}

	pending, err := s.ListUserJoinRequests(ctx, bob.ID, false)
	if err != nil || len(pending) != 1 || pending[0].AddressedTo() != bob.ID {
		t.Fatalf("pending = %+v, %v", pending, err)
	}

	if err := s.DeleteJoinRequest(ctx, req.ID); err != nil {
		t.Fatalf("refuse: %v", err)
	}
	if _, err := s.AcceptJoinRequest(ctx, req.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("accept refused err = %v", err)
	}

	req, err = s.CreateJoinRequest(ctx, board.ID, bob.ID, ada.ID)
	if err != nil {
		t.Fatalf("re-invite: %v", err)
	}
	m, err := s.AcceptJoinRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.UserID != bob.ID || m.IsModerator {
		t.Fatalf("membership = %+v", m)
	}
	left, err := s.ListBoardJoinRequests(ctx, board.ID)
	if err != nil || len(left) != 0 {
		t.Fatalf("requests after accept = %+v, %v", left, err)
	}
}

func TestCommentsAndChecklist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	board := mustBoard(t, s, ada)
	card := mustCard(t, s, mustList(t, s, board.ID, "todo").ID, "c")

	comment, err := s.CreateComment(ctx, card.ID, ada.ID, "first")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}
	if comment.IsUpdated || comment.OwningBoard() != board.ID {
		t.Fatalf("comment = %+v", comment)
	}
	edited, err := s.UpdateComment(ctx, comment.ID, "edited")
	if err != nil || !edited.IsUpdated || edited.Text != "edited" {
		t.Fatalf("edited = %+v, %v", edited, err)
	}

	item, err := s.CreateCheckItem(ctx, card.ID, "ship")
	if err != nil || !item.IsActive {
		t.Fatalf("check item = %+v, %v", item, err)
	}
	toggled, err := s.ToggleCheckItem(ctx, item.ID)
	if err != nil || toggled.IsActive {
		t.Fatalf("toggled = %+v, %v", toggled, err)
	}
	text := "ship it"
	patched, err := s.UpdateCheckItem(ctx, item.ID, CheckItemPatch{Text: &text})
	if err != nil || patched.Text != text || patched.IsActive {
		t.Fatalf("patched = %+v, %v", patched, err)
	}

	if _, err := s.DeleteCard(ctx, card.ID); err != nil {
		t.Fatalf("delete card: %v", err)
	}
	if _, err := s.GetComment(ctx, comment.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("comment survived card deletion: %v", err)
	}
}

func TestDeleteBoardReturnsFileKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ada := mustUser(t, s, "ada")
	board := mustBoard(t, s, ada)
	card := mustCard(t, s, mustList(t, s, board.ID, "todo").ID, "c")

	file, err := s.CreateCardFile(ctx, CardFile{CardID: card.ID, Name: "a.txt", ObjectKey: "cards/1/a.txt", ContentType: "text/plain", Size: 3, UploadedBy: ada.ID})
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	if file.BoardID != board.ID {
		t.Fatalf("file board = %d", file.BoardID)
	}

	keys, err := s.DeleteBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if len(keys) != 1 || keys[0] != "cards/1/a.txt" {
		t.Fatalf("keys = %v", keys)
	}
	if _, err := s.GetCard(ctx, card.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("card survived board deletion: %v", err)
	}
}
