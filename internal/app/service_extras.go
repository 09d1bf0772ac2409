package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"taskplanner/api/internal/blob"
	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/store"
)

const maxCheckItemLength = 50

func (s *Service) ListComments(ctx context.Context, actor rbac.Actor, cardID int64) ([]commentView, error) {
	if _, err := s.loadCard(ctx, actor, cardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return toCommentViews(comments), nil
}

func (s *Service) CreateComment(ctx context.Context, actor rbac.Actor, cardID int64, text string) (commentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return commentView{}, errField("text", "must not be empty")
	}
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return commentView{}, err
	}
	comment, err := s.store.CreateComment(ctx, cardID, actor.UserID, text)
	if err != nil {
		return commentView{}, err
	}
	view := toCommentView(comment)
	s.publish(card.BoardID, "created", "comment", view)
	return view, nil
}

// loadComment resolves a comment addressed through its card.
func (s *Service) loadComment(ctx context.Context, actor rbac.Actor, cardID, id int64, action rbac.Action) (store.Comment, error) {
	comment, err := s.store.GetComment(ctx, id)
	if err != nil {
		return store.Comment{}, err
	}
	if comment.CardID != cardID {
		return store.Comment{}, errNotFound("Comment")
	}
	if _, err := s.authorize(ctx, actor, comment, action); err != nil {
		return store.Comment{}, err
	}
	return comment, nil
}

func (s *Service) GetComment(ctx context.Context, actor rbac.Actor, cardID, id int64) (commentView, error) {
	comment, err := s.loadComment(ctx, actor, cardID, id, rbac.ActionReadBoard)
	if err != nil {
		return commentView{}, err
	}
	return toCommentView(comment), nil
}

// UpdateComment is allowed to the comment's author only.
func (s *Service) UpdateComment(ctx context.Context, actor rbac.Actor, cardID, id int64, text string) (commentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return commentView{}, errField("text", "must not be empty")
	}
	comment, err := s.loadComment(ctx, actor, cardID, id, rbac.ActionReadBoard)
	if err != nil {
		return commentView{}, err
	}
	if !rbac.CanChange(actor, comment) {
		return commentView{}, errForbidden()
	}
	comment, err = s.store.UpdateComment(ctx, id, text)
	if err != nil {
		return commentView{}, err
	}
	view := toCommentView(comment)
	s.publish(comment.BoardID, "updated", "comment", view)
	return view, nil
}

func (s *Service) DeleteComment(ctx context.Context, actor rbac.Actor, cardID, id int64) error {
	comment, err := s.loadComment(ctx, actor, cardID, id, rbac.ActionReadBoard)
	if err != nil {
		return err
	}
	if !rbac.CanChange(actor, comment) {
		return errForbidden()
	}
	if err := s.store.DeleteComment(ctx, id); err != nil {
		return err
	}
	s.publish(comment.BoardID, "deleted", "comment", map[string]any{"id": id, "card": cardID})
	return nil
}

func checkItemText(text string) (string, error) {
	return cleanName("text", text, maxCheckItemLength)
}

func (s *Service) ListCheckItems(ctx context.Context, actor rbac.Actor, cardID int64) ([]checkItemView, error) {
	if _, err := s.loadCard(ctx, actor, cardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	items, err := s.store.ListCheckItems(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return toCheckItemViews(items), nil
}

func (s *Service) CreateCheckItem(ctx context.Context, actor rbac.Actor, cardID int64, text string) (checkItemView, error) {
	text, err := checkItemText(text)
	if err != nil {
		return checkItemView{}, err
	}
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return checkItemView{}, err
	}
	item, err := s.store.CreateCheckItem(ctx, cardID, text)
	if err != nil {
		return checkItemView{}, err
	}
	view := toCheckItemView(item)
	s.publish(card.BoardID, "created", "check_item", view)
	return view, nil
}

func (s *Service) loadCheckItem(ctx context.Context, actor rbac.Actor, cardID, id int64, action rbac.Action) (store.CheckItem, error) {
	item, err := s.store.GetCheckItem(ctx, id)
	if err != nil {
		return store.CheckItem{}, err
	}
	if item.CardID != cardID {
		return store.CheckItem{}, errNotFound("Checklist item")
	}
	if _, err := s.authorize(ctx, actor, item, action); err != nil {
		return store.CheckItem{}, err
	}
	return item, nil
}

func (s *Service) GetCheckItem(ctx context.Context, actor rbac.Actor, cardID, id int64) (checkItemView, error) {
	item, err := s.loadCheckItem(ctx, actor, cardID, id, rbac.ActionReadBoard)
	if err != nil {
		return checkItemView{}, err
	}
	return toCheckItemView(item), nil
}

type CheckItemPatchInput struct {
	Text     *string
	IsActive *bool
}

func (s *Service) UpdateCheckItem(ctx context.Context, actor rbac.Actor, cardID, id int64, input CheckItemPatchInput) (checkItemView, error) {
	patch := store.CheckItemPatch{IsActive: input.IsActive}
	if input.Text != nil {
		text, err := checkItemText(*input.Text)
		if err != nil {
			return checkItemView{}, err
		}
		patch.Text = &text
	}
	if _, err := s.loadCheckItem(ctx, actor, cardID, id, rbac.ActionEditContent); err != nil {
		return checkItemView{}, err
	}
	item, err := s.store.UpdateCheckItem(ctx, id, patch)
	if err != nil {
		return checkItemView{}, err
	}
	view := toCheckItemView(item)
	s.publish(item.BoardID, "updated", "check_item", view)
	return view, nil
}

// ToggleCheckItem flips is_active and returns the new state.
func (s *Service) ToggleCheckItem(ctx context.Context, actor rbac.Actor, cardID, id int64) (checkItemView, error) {
	if _, err := s.loadCheckItem(ctx, actor, cardID, id, rbac.ActionEditContent); err != nil {
		return checkItemView{}, err
	}
	item, err := s.store.ToggleCheckItem(ctx, id)
	if err != nil {
		return checkItemView{}, err
	}
	view := toCheckItemView(item)
	s.publish(item.BoardID, "updated", "check_item", view)
	return view, nil
}

func (s *Service) DeleteCheckItem(ctx context.Context, actor rbac.Actor, cardID, id int64) error {
	item, err := s.loadCheckItem(ctx, actor, cardID, id, rbac.ActionEditContent)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCheckItem(ctx, id); err != nil {
		return err
	}
	s.publish(item.BoardID, "deleted", "check_item", map[string]any{"id": id, "card": cardID})
	return nil
}

// Upload is a file received for a card.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (s *Service) ListFiles(ctx context.Context, actor rbac.Actor, cardID int64) ([]fileView, error) {
	if _, err := s.loadCard(ctx, actor, cardID, rbac.ActionReadBoard); err != nil {
		return nil, err
	}
	files, err := s.store.ListCardFiles(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return toFileViews(files), nil
}

// UploadFile stores the bytes first and the row second; the object is
// removed again when the row cannot be written.
func (s *Service) UploadFile(ctx context.Context, actor rbac.Actor, cardID int64, up Upload) (fileView, error) {
	name := strings.TrimSpace(up.Name)
	if name == "" {
		return fileView{}, errField("file", "a file is required")
	}
	card, err := s.loadCard(ctx, actor, cardID, rbac.ActionEditContent)
	if err != nil {
		return fileView{}, err
	}
	if up.ContentType == "" {
		up.ContentType = "application/octet-stream"
	}
	key := blob.ObjectKey(cardID, name)
	if err := s.blobs.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return fileView{}, fmt.Errorf("store attachment: %w", err)
	}
	file, err := s.store.CreateCardFile(ctx, store.CardFile{
		CardID:      cardID,
		Name:        name,
		ObjectKey:   key,
		ContentType: up.ContentType,
		Size:        up.Size,
		UploadedBy:  actor.UserID,
	})
	if err != nil {
		s.removeObjects(ctx, []string{key})
		return fileView{}, err
	}
	view := toFileView(file)
	s.publish(card.BoardID, "created", "file", view)
	return view, nil
}

func (s *Service) loadFile(ctx context.Context, actor rbac.Actor, cardID, id int64, action rbac.Action) (store.CardFile, error) {
	file, err := s.store.GetCardFile(ctx, id)
	if err != nil {
		return store.CardFile{}, err
	}
	if file.CardID != cardID {
		return store.CardFile{}, errNotFound("File")
	}
	if _, err := s.authorize(ctx, actor, file, action); err != nil {
		return store.CardFile{}, err
	}
	return file, nil
}

// OpenFile returns the file record and a reader over its bytes. The caller
// closes the reader.
func (s *Service) OpenFile(ctx context.Context, actor rbac.Actor, cardID, id int64) (fileView, io.ReadCloser, error) {
	file, err := s.loadFile(ctx, actor, cardID, id, rbac.ActionReadBoard)
	if err != nil {
		return fileView{}, nil, err
	}
	body, _, err := s.blobs.Get(ctx, file.ObjectKey)
	if errors.Is(err, blob.ErrNotFound) {
		return fileView{}, nil, errNotFound("File content")
	}
	if err != nil {
		return fileView{}, nil, fmt.Errorf("open attachment: %w", err)
	}
	return toFileView(file), body, nil
}

func (s *Service) DeleteFile(ctx context.Context, actor rbac.Actor, cardID, id int64) error {
	if _, err := s.loadFile(ctx, actor, cardID, id, rbac.ActionEditContent); err != nil {
		return err
	}
	file, err := s.store.DeleteCardFile(ctx, id)
	if err != nil {
		return err
	}
	s.removeObjects(ctx, []string{file.ObjectKey})
	s.publish(file.BoardID, "deleted", "file", map[string]any{"id": id, "card": cardID})
	return nil
}
