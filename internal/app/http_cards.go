package app

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
)

func (s *HTTPServer) handleListLists(w http.ResponseWriter, r *http.Request) {
	boardID, err := queryID(r, "board")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if boardID == 0 {
		s.fail(w, r, errField("board", "is required"))
		return
	}
	lists, err := s.service.ListLists(r.Context(), sessionFrom(r).Actor(), boardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *HTTPServer) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Board int64  `json:"board"`
		Name  string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Board <= 0 {
		s.fail(w, r, errField("board", "is required"))
		return
	}
	list, err := s.service.CreateList(r.Context(), sessionFrom(r).Actor(), body.Board, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

func (s *HTTPServer) handleGetList(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	list, err := s.service.GetList(r.Context(), sessionFrom(r).Actor(), listID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleRenameList(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	list, err := s.service.RenameList(r.Context(), sessionFrom(r).Actor(), listID, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	if err := s.service.DeleteList(r.Context(), sessionFrom(r).Actor(), listID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSwapLists(w http.ResponseWriter, r *http.Request) {
	var body struct {
		First  int64 `json:"list_1"`
		Second int64 `json:"list_2"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if fields := requiredIDs(map[string]int64{"list_1": body.First, "list_2": body.Second}); fields != nil {
		s.fail(w, r, errValidation(fields))
		return
	}
	lists, err := s.service.SwapLists(r.Context(), sessionFrom(r).Actor(), body.First, body.Second)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func requiredIDs(ids map[string]int64) map[string]string {
	var fields map[string]string
	for name, id := range ids {
		if id <= 0 {
			if fields == nil {
				fields = map[string]string{}
			}
			fields[name] = "is required"
		}
	}
	return fields
}

func (s *HTTPServer) handleListCards(w http.ResponseWriter, r *http.Request) {
	var q CardQuery
	var err error
	if q.BoardID, err = queryID(r, "board"); err != nil {
		s.fail(w, r, err)
		return
	}
	if q.ListID, err = queryID(r, "list"); err != nil {
		s.fail(w, r, err)
		return
	}
	if q.IsParticipant, err = queryBool(r, "is_participant"); err != nil {
		s.fail(w, r, err)
		return
	}
	q.Name = r.URL.Query().Get("name")
	cards, err := s.service.ListCards(r.Context(), sessionFrom(r).Actor(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *HTTPServer) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		List        int64  `json:"list"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.List <= 0 {
		s.fail(w, r, errField("list", "is required"))
		return
	}
	card, err := s.service.CreateCard(r.Context(), sessionFrom(r).Actor(), CardInput{
		ListID:      body.List,
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *HTTPServer) handleGetCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	card, err := s.service.GetCard(r.Context(), sessionFrom(r).Actor(), cardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	card, err := s.service.UpdateCard(r.Context(), sessionFrom(r).Actor(), cardID, CardPatchInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	if err := s.service.DeleteCard(r.Context(), sessionFrom(r).Actor(), cardID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleMoveCard(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	var body struct {
		ID       int64 `json:"id"`
		Position *int  `json:"position"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	fields := map[string]string{}
	if body.ID <= 0 {
		fields["id"] = "is required"
	}
	if body.Position == nil {
		fields["position"] = "is required"
	}
	if len(fields) > 0 {
		s.fail(w, r, errValidation(fields))
		return
	}
	card, err := s.service.MoveCard(r.Context(), sessionFrom(r).Actor(), cardID, body.ID, *body.Position)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *HTTPServer) handleSwapCards(w http.ResponseWriter, r *http.Request) {
	var body struct {
		First  int64 `json:"card_1"`
		Second int64 `json:"card_2"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if fields := requiredIDs(map[string]int64{"card_1": body.First, "card_2": body.Second}); fields != nil {
		s.fail(w, r, errValidation(fields))
		return
	}
	cards, err := s.service.SwapCards(r.Context(), sessionFrom(r).Actor(), body.First, body.Second)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// decodeRefID reads the {"id": n} body shared by the card membership
// endpoints.
func decodeRefID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	var body struct {
		ID int64 `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return 0, false
	}
	if body.ID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", map[string]string{"id": "is required"})
		return 0, false
	}
	return body.ID, true
}

func (s *HTTPServer) handleAddCardParticipant(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	userID, ok := decodeRefID(w, r)
	if !ok {
		return
	}
	participants, err := s.service.AddCardParticipant(r.Context(), sessionFrom(r).Actor(), cardID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, participants)
}

func (s *HTTPServer) handleRemoveCardParticipant(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	participants, err := s.service.RemoveCardParticipant(r.Context(), sessionFrom(r).Actor(), cardID, userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

func (s *HTTPServer) handleAddCardTag(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	tagID, ok := decodeRefID(w, r)
	if !ok {
		return
	}
	tags, err := s.service.AddCardTag(r.Context(), sessionFrom(r).Actor(), cardID, tagID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tags)
}

func (s *HTTPServer) handleRemoveCardTag(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	tagID, ok := pathID(w, r, "tagID")
	if !ok {
		return
	}
	tags, err := s.service.RemoveCardTag(r.Context(), sessionFrom(r).Actor(), cardID, tagID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	comments, err := s.service.ListComments(r.Context(), sessionFrom(r).Actor(), cardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func decodeText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return "", false
	}
	return body.Text, true
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	comment, err := s.service.CreateComment(r.Context(), sessionFrom(r).Actor(), cardID, text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// cardChild parses the card id and a nested entity id.
func cardChild(w http.ResponseWriter, r *http.Request, name string) (cardID, id int64, ok bool) {
	if cardID, ok = pathID(w, r, "cardID"); !ok {
		return 0, 0, false
	}
	if id, ok = pathID(w, r, name); !ok {
		return 0, 0, false
	}
	return cardID, id, true
}

func (s *HTTPServer) handleGetComment(w http.ResponseWriter, r *http.Request) {
	cardID, commentID, ok := cardChild(w, r, "commentID")
	if !ok {
		return
	}
	comment, err := s.service.GetComment(r.Context(), sessionFrom(r).Actor(), cardID, commentID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *HTTPServer) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	cardID, commentID, ok := cardChild(w, r, "commentID")
	if !ok {
		return
	}
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	comment, err := s.service.UpdateComment(r.Context(), sessionFrom(r).Actor(), cardID, commentID, text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	cardID, commentID, ok := cardChild(w, r, "commentID")
	if !ok {
		return
	}
	if err := s.service.DeleteComment(r.Context(), sessionFrom(r).Actor(), cardID, commentID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListCheckItems(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	items, err := s.service.ListCheckItems(r.Context(), sessionFrom(r).Actor(), cardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleCreateCheckItem(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	text, ok := decodeText(w, r)
	if !ok {
		return
	}
	item, err := s.service.CreateCheckItem(r.Context(), sessionFrom(r).Actor(), cardID, text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleGetCheckItem(w http.ResponseWriter, r *http.Request) {
	cardID, itemID, ok := cardChild(w, r, "itemID")
	if !ok {
		return
	}
	item, err := s.service.GetCheckItem(r.Context(), sessionFrom(r).Actor(), cardID, itemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleUpdateCheckItem(w http.ResponseWriter, r *http.Request) {
	cardID, itemID, ok := cardChild(w, r, "itemID")
	if !ok {
		return
	}
	var body struct {
		Text     *string `json:"text"`
		IsActive *bool   `json:"is_active"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	item, err := s.service.UpdateCheckItem(r.Context(), sessionFrom(r).Actor(), cardID, itemID, CheckItemPatchInput{
		Text:     body.Text,
		IsActive: body.IsActive,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleToggleCheckItem(w http.ResponseWriter, r *http.Request) {
	cardID, itemID, ok := cardChild(w, r, "itemID")
	if !ok {
		return
	}
	item, err := s.service.ToggleCheckItem(r.Context(), sessionFrom(r).Actor(), cardID, itemID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleDeleteCheckItem(w http.ResponseWriter, r *http.Request) {
	cardID, itemID, ok := cardChild(w, r, "itemID")
	if !ok {
		return
	}
	if err := s.service.DeleteCheckItem(r.Context(), sessionFrom(r).Actor(), cardID, itemID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	files, err := s.service.ListFiles(r.Context(), sessionFrom(r).Actor(), cardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *HTTPServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	cardID, ok := pathID(w, r, "cardID")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected a multipart form", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, errField("file", "a file is required"))
		return
	}
	defer file.Close()
	if header.Size > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", nil)
		return
	}

	view, err := s.service.UploadFile(r.Context(), sessionFrom(r).Actor(), cardID, Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	cardID, fileID, ok := cardChild(w, r, "fileID")
	if !ok {
		return
	}
	file, body, err := s.service.OpenFile(r.Context(), sessionFrom(r).Actor(), cardID, fileID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.log.Warn().Err(err).Int64("file_id", fileID).Msg("stream attachment")
	}
}

func (s *HTTPServer) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	cardID, fileID, ok := cardChild(w, r, "fileID")
	if !ok {
		return
	}
	if err := s.service.DeleteFile(r.Context(), sessionFrom(r).Actor(), cardID, fileID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
