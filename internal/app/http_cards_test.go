package app

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

func listNames(lists []listView) []string {
	return positions(lists, func(l listView) string { return fmt.Sprintf("%d:%s", l.Position, l.Name) })
}

func cardNames(cards []cardView) []string {
	return positions(cards, func(c cardView) string { return fmt.Sprintf("%d:%s", c.Position, c.Name) })
}

func TestListsStayDenseAcrossSwapAndDelete(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	board := a.board(t, alice, "Lists")

	var created []listView
	for _, name := range []string{"Todo", "Doing", "Done"} {
		rr := a.call(t, http.MethodPost, "/api/lists", alice.token, map[string]any{"board": board.ID, "name": name})
		expectStatus(t, rr, http.StatusCreated)
		created = append(created, decode[listView](t, rr))
	}
	if created[2].Position != 3 {
		t.Fatalf("expected third list at position 3, got %d", created[2].Position)
	}

	rr := a.call(t, http.MethodPost, "/api/lists/swap", alice.token, map[string]any{"list_1": created[0].ID, "list_2": created[2].ID})
	expectStatus(t, rr, http.StatusOK)
	if got, want := listNames(decode[[]listView](t, rr)), []string{"1:Done", "2:Doing", "3:Todo"}; !equalStrings(got, want) {
		t.Fatalf("after swap: got %v want %v", got, want)
	}

	expectError(t, a.call(t, http.MethodPost, "/api/lists/swap", alice.token, map[string]any{"list_1": created[0].ID, "list_2": created[0].ID}), http.StatusConflict, "CONFLICT")
	expectError(t, a.call(t, http.MethodPost, "/api/lists/swap", alice.token, map[string]any{"list_1": created[0].ID}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	expectStatus(t, a.call(t, http.MethodDelete, fmt.Sprintf("/api/lists/%d", created[1].ID), alice.token, nil), http.StatusNoContent)
	rr = a.call(t, http.MethodGet, fmt.Sprintf("/api/lists?board=%d", board.ID), alice.token, nil)
	expectStatus(t, rr, http.StatusOK)
	if got, want := listNames(decode[[]listView](t, rr)), []string{"1:Done", "2:Todo"}; !equalStrings(got, want) {
		t.Fatalf("after delete: got %v want %v", got, want)
	}
}

func TestListSwapAcrossBoardsConflicts(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	one := a.list(t, alice, a.board(t, alice, "One").ID, "A")
	two := a.list(t, alice, a.board(t, alice, "Two").ID, "B")

	rr := a.call(t, http.MethodPost, "/api/lists/swap", alice.token, map[string]any{"list_1": one.ID, "list_2": two.ID})
	expectError(t, rr, http.StatusConflict, "CONFLICT")
}

func TestCreateListRequiresExistingBoardAndRights(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	mallory := a.user(t, "mallory")
	board := a.board(t, alice, "Rights")

	expectError(t, a.call(t, http.MethodPost, "/api/lists", alice.token, map[string]any{"board": 4242, "name": "x"}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	expectError(t, a.call(t, http.MethodPost, "/api/lists", mallory.token, map[string]any{"board": board.ID, "name": "x"}), http.StatusForbidden, "FORBIDDEN")
}

func TestMoveCardBetweenLists(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	board := a.board(t, alice, "Moves")
	todo := a.list(t, alice, board.ID, "Todo")
	done := a.list(t, alice, board.ID, "Done")
	first := a.card(t, alice, todo.ID, "first")
	second := a.card(t, alice, todo.ID, "second")
	third := a.card(t, alice, todo.ID, "third")
	shipped := a.card(t, alice, done.ID, "shipped")

	// Reordering inside a list accepts 1..N.
	rr := a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", third.ID), alice.token, map[string]any{"id": todo.ID, "position": 1})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[cardView](t, rr); got.Position != 1 || got.List != todo.ID {
		t.Fatalf("unexpected moved card: %+v", got)
	}
	expectError(t, a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", third.ID), alice.token, map[string]any{"id": todo.ID, "position": 4}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	// Another list accepts 1..N+1.
	rr = a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", first.ID), alice.token, map[string]any{"id": done.ID, "position": 2})
	expectStatus(t, rr, http.StatusOK)
	expectError(t, a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", second.ID), alice.token, map[string]any{"id": done.ID, "position": 0}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	expectError(t, a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", second.ID), alice.token, map[string]any{"id": done.ID}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	todoCards := decode[[]cardView](t, a.call(t, http.MethodGet, fmt.Sprintf("/api/cards?list=%d", todo.ID), alice.token, nil))
	if got, want := cardNames(todoCards), []string{"1:third", "2:second"}; !equalStrings(got, want) {
		t.Fatalf("todo list: got %v want %v", got, want)
	}
	doneCards := decode[[]cardView](t, a.call(t, http.MethodGet, fmt.Sprintf("/api/cards?list=%d", done.ID), alice.token, nil))
	if got, want := cardNames(doneCards), []string{"1:shipped", "2:first"}; !equalStrings(got, want) {
		t.Fatalf("done list: got %v want %v", got, want)
	}

	rr = a.call(t, http.MethodPost, "/api/cards/swap", alice.token, map[string]any{"card_1": shipped.ID, "card_2": first.ID})
	expectStatus(t, rr, http.StatusOK)
	if got, want := cardNames(decode[[]cardView](t, rr)), []string{"1:first", "2:shipped"}; !equalStrings(got, want) {
		t.Fatalf("after swap: got %v want %v", got, want)
	}
	expectError(t, a.call(t, http.MethodPost, "/api/cards/swap", alice.token, map[string]any{"card_1": shipped.ID, "card_2": second.ID}), http.StatusConflict, "CONFLICT")
}

func TestMoveCardToAnotherBoardConflicts(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	card := a.card(t, alice, a.list(t, alice, a.board(t, alice, "Here").ID, "Todo").ID, "stay")
	elsewhere := a.list(t, alice, a.board(t, alice, "There").ID, "Todo")

	rr := a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", card.ID), alice.token, map[string]any{"id": elsewhere.ID, "position": 1})
	expectError(t, rr, http.StatusConflict, "CONFLICT")

	rr = a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/change-list", card.ID), alice.token, map[string]any{"id": 9999, "position": 1})
	expectError(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestCardFilters(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	bob := a.user(t, "bob")
	board := a.board(t, alice, "Filters")
	a.join(t, board.ID, alice, bob)
	list := a.list(t, alice, board.ID, "Todo")
	mine := a.card(t, alice, list.ID, "Fix login")
	a.card(t, alice, list.ID, "Write docs")

	expectStatus(t, a.call(t, http.MethodPost, fmt.Sprintf("/api/cards/%d/participants", mine.ID), alice.token, map[string]any{"id": bob.ID}), http.StatusCreated)

	assigned := decode[[]cardView](t, a.call(t, http.MethodGet, "/api/cards?is_participant=true", bob.token, nil))
	if len(assigned) != 1 || assigned[0].ID != mine.ID {
		t.Fatalf("expected only the assigned card, got %v", cardNames(assigned))
	}
	unassigned := decode[[]cardView](t, a.call(t, http.MethodGet, fmt.Sprintf("/api/cards?board=%d&is_participant=false", board.ID), bob.token, nil))
	if len(unassigned) != 1 || unassigned[0].Name != "Write docs" {
		t.Fatalf("expected only the unassigned card, got %v", cardNames(unassigned))
	}
	byName := decode[[]cardView](t, a.call(t, http.MethodGet, "/api/cards?name=login", alice.token, nil))
	if len(byName) != 1 || byName[0].ID != mine.ID {
		t.Fatalf("expected name filter to match one card, got %v", cardNames(byName))
	}

	outsider := a.user(t, "outsider")
	if none := decode[[]cardView](t, a.call(t, http.MethodGet, "/api/cards", outsider.token, nil)); len(none) != 0 {
		t.Fatalf("expected no cards for an outsider, got %v", cardNames(none))
	}
}

func TestCardParticipantsAndTags(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	bob := a.user(t, "bob")
	stranger := a.user(t, "stranger")
	board := a.board(t, alice, "Assign")
	other := a.board(t, alice, "Other")
	a.join(t, board.ID, alice, bob)
	card := a.card(t, alice, a.list(t, alice, board.ID, "Todo").ID, "task")
	path := fmt.Sprintf("/api/cards/%d", card.ID)

	rr := a.call(t, http.MethodPost, path+"/participants", bob.token, map[string]any{"id": bob.ID})
	expectStatus(t, rr, http.StatusCreated)
	if users := decode[[]userView](t, rr); len(users) != 1 || users[0].ID != bob.ID {
		t.Fatalf("unexpected participants: %+v", users)
	}
	expectError(t, a.call(t, http.MethodPost, path+"/participants", bob.token, map[string]any{"id": bob.ID}), http.StatusConflict, "CONFLICT")
	expectError(t, a.call(t, http.MethodPost, path+"/participants", alice.token, map[string]any{"id": stranger.ID}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	ctx := context.Background()
	tags, err := a.service.ListTags(ctx, alice.actor(), board.ID)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	foreign, err := a.service.ListTags(ctx, alice.actor(), other.ID)
	if err != nil {
		t.Fatalf("list foreign tags: %v", err)
	}
	rr = a.call(t, http.MethodPost, path+"/tags", alice.token, map[string]any{"id": tags[1].ID})
	expectStatus(t, rr, http.StatusCreated)
	if got := decode[[]tagView](t, rr); len(got) != 1 || got[0].ID != tags[1].ID {
		t.Fatalf("unexpected card tags: %+v", got)
	}
	expectError(t, a.call(t, http.MethodPost, path+"/tags", alice.token, map[string]any{"id": tags[1].ID}), http.StatusConflict, "CONFLICT")
	expectError(t, a.call(t, http.MethodPost, path+"/tags", alice.token, map[string]any{"id": foreign[0].ID}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	detail := decode[cardDetailView](t, a.call(t, http.MethodGet, path, alice.token, nil))
	if len(detail.Participants) != 1 || len(detail.Tags) != 1 {
		t.Fatalf("unexpected card detail: %+v", detail)
	}

	rr = a.call(t, http.MethodDelete, fmt.Sprintf("%s/tags/%d", path, tags[1].ID), alice.token, nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[[]tagView](t, rr); len(got) != 0 {
		t.Fatalf("expected no tags, got %+v", got)
	}

	// Leaving the board drops the card assignment.
	expectStatus(t, a.call(t, http.MethodPost, fmt.Sprintf("/api/boards/%d/leave", board.ID), bob.token, nil), http.StatusOK)
	detail = decode[cardDetailView](t, a.call(t, http.MethodGet, path, alice.token, nil))
	if len(detail.Participants) != 0 {
		t.Fatalf("expected assignment removed with membership, got %+v", detail.Participants)
	}
	expectError(t, a.call(t, http.MethodDelete, fmt.Sprintf("%s/participants/%d", path, bob.ID), alice.token, nil), http.StatusConflict, "CONFLICT")
}

func TestCommentsAreEditableByAuthorOnly(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	bob := a.user(t, "bob")
	root := a.staff(t, "root")
	board := a.board(t, alice, "Comments")
	a.join(t, board.ID, alice, bob)
	card := a.card(t, alice, a.list(t, alice, board.ID, "Todo").ID, "discuss")
	path := fmt.Sprintf("/api/cards/%d/comments", card.ID)

	expectError(t, a.call(t, http.MethodPost, path, bob.token, map[string]string{"text": "  "}), http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	rr := a.call(t, http.MethodPost, path, bob.token, map[string]string{"text": "looks good"})
	expectStatus(t, rr, http.StatusCreated)
	comment := decode[commentView](t, rr)
	if comment.Author != bob.ID || comment.IsUpdated {
		t.Fatalf("unexpected comment: %+v", comment)
	}
	commentPath := fmt.Sprintf("%s/%d", path, comment.ID)

	// Neither the board author nor staff may edit someone else's comment.
	expectError(t, a.call(t, http.MethodPatch, commentPath, alice.token, map[string]string{"text": "edited"}), http.StatusForbidden, "FORBIDDEN")
	expectError(t, a.call(t, http.MethodPatch, commentPath, root.token, map[string]string{"text": "edited"}), http.StatusForbidden, "FORBIDDEN")
	expectError(t, a.call(t, http.MethodDelete, commentPath, alice.token, nil), http.StatusForbidden, "FORBIDDEN")

	rr = a.call(t, http.MethodPatch, commentPath, bob.token, map[string]string{"text": "looks great"})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[commentView](t, rr); got.Text != "looks great" || !got.IsUpdated {
		t.Fatalf("unexpected edited comment: %+v", got)
	}

	otherCard := a.card(t, alice, a.list(t, alice, board.ID, "Later").ID, "other")
	expectError(t, a.call(t, http.MethodGet, fmt.Sprintf("/api/cards/%d/comments/%d", otherCard.ID, comment.ID), bob.token, nil), http.StatusNotFound, "NOT_FOUND")

	expectStatus(t, a.call(t, http.MethodDelete, commentPath, bob.token, nil), http.StatusNoContent)
	if left := decode[[]commentView](t, a.call(t, http.MethodGet, path, alice.token, nil)); len(left) != 0 {
		t.Fatalf("expected no comments, got %+v", left)
	}
}

func TestCheckListSwitch(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	card := a.card(t, alice, a.list(t, alice, a.board(t, alice, "Checks").ID, "Todo").ID, "ship")
	path := fmt.Sprintf("/api/cards/%d/check-lists", card.ID)

	rr := a.call(t, http.MethodPost, path, alice.token, map[string]string{"text": "write tests"})
	expectStatus(t, rr, http.StatusCreated)
	item := decode[checkItemView](t, rr)
	if item.IsActive {
		t.Fatalf("expected new item to be unchecked: %+v", item)
	}
	itemPath := fmt.Sprintf("%s/%d", path, item.ID)

	rr = a.call(t, http.MethodPost, itemPath+"/switch", alice.token, nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[checkItemView](t, rr); !got.IsActive {
		t.Fatalf("expected item checked: %+v", got)
	}
	rr = a.call(t, http.MethodPost, itemPath+"/switch", alice.token, nil)
	expectStatus(t, rr, http.StatusOK)
	if got := decode[checkItemView](t, rr); got.IsActive {
		t.Fatalf("expected item unchecked: %+v", got)
	}

	rr = a.call(t, http.MethodPatch, itemPath, alice.token, map[string]any{"text": "write more tests", "is_active": true})
	expectStatus(t, rr, http.StatusOK)
	if got := decode[checkItemView](t, rr); got.Text != "write more tests" || !got.IsActive {
		t.Fatalf("unexpected patched item: %+v", got)
	}

	expectStatus(t, a.call(t, http.MethodDelete, itemPath, alice.token, nil), http.StatusNoContent)
	expectError(t, a.call(t, http.MethodGet, itemPath, alice.token, nil), http.StatusNotFound, "NOT_FOUND")
}

func uploadRequest(t *testing.T, path, token, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestFileUploadDownloadDelete(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	mallory := a.user(t, "mallory")
	card := a.card(t, alice, a.list(t, alice, a.board(t, alice, "Files").ID, "Todo").ID, "attach")
	path := fmt.Sprintf("/api/cards/%d/files", card.ID)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, uploadRequest(t, path, alice.token, "notes.txt", "text/plain", []byte("hello board")))
	expectStatus(t, rr, http.StatusCreated)
	file := decode[fileView](t, rr)
	if file.Name != "notes.txt" || file.Size != int64(len("hello board")) || file.UploadedBy != alice.ID {
		t.Fatalf("unexpected file payload: %+v", file)
	}
	if a.blobs.Len() != 1 {
		t.Fatalf("expected one stored object, got %d", a.blobs.Len())
	}

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, uploadRequest(t, path, mallory.token, "evil.txt", "text/plain", []byte("x")))
	expectError(t, rr, http.StatusForbidden, "FORBIDDEN")

	filePath := fmt.Sprintf("%s/%d", path, file.ID)
	rr = a.call(t, http.MethodGet, filePath, alice.token, nil)
	expectStatus(t, rr, http.StatusOK)
	if rr.Body.String() != "hello board" {
		t.Fatalf("unexpected download body %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("unexpected content type %q", ct)
	}

	expectStatus(t, a.call(t, http.MethodDelete, filePath, alice.token, nil), http.StatusNoContent)
	if a.blobs.Len() != 0 {
		t.Fatalf("expected stored object removed, got %d", a.blobs.Len())
	}
	expectError(t, a.call(t, http.MethodGet, filePath, alice.token, nil), http.StatusNotFound, "NOT_FOUND")
}

func TestFileUploadRejectsOversizedFiles(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	card := a.card(t, alice, a.list(t, alice, a.board(t, alice, "Big").ID, "Todo").ID, "big")
	path := fmt.Sprintf("/api/cards/%d/files", card.ID)

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, uploadRequest(t, path, alice.token, "big.bin", "application/octet-stream", bytes.Repeat([]byte{'x'}, 1<<20+1)))
	expectError(t, rr, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE")
	if a.blobs.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d", a.blobs.Len())
	}
}

func TestDeletingCardRemovesAttachments(t *testing.T) {
	a := newTestApp(t)
	alice := a.user(t, "alice")
	card := a.card(t, alice, a.list(t, alice, a.board(t, alice, "Cascade").ID, "Todo").ID, "doomed")

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, uploadRequest(t, fmt.Sprintf("/api/cards/%d/files", card.ID), alice.token, "a.txt", "text/plain", []byte("a")))
	expectStatus(t, rr, http.StatusCreated)

	expectStatus(t, a.call(t, http.MethodDelete, fmt.Sprintf("/api/cards/%d", card.ID), alice.token, nil), http.StatusNoContent)
	if a.blobs.Len() != 0 {
		t.Fatalf("expected attachment removed with card, got %d", a.blobs.Len())
	}
	expectError(t, a.call(t, http.MethodGet, fmt.Sprintf("/api/cards/%d", card.ID), alice.token, nil), http.StatusNotFound, "NOT_FOUND")
}
