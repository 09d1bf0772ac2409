package app

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"taskplanner/api/internal/export"
	"taskplanner/api/internal/search"
)

func (s *HTTPServer) handleListBoards(w http.ResponseWriter, r *http.Request) {
	var filter BoardFilter
	var err error
	if filter.IsFavored, err = queryBool(r, "is_favored"); err != nil {
		s.fail(w, r, err)
		return
	}
	if filter.IsAuthor, err = queryBool(r, "is_author"); err != nil {
		s.fail(w, r, err)
		return
	}
	boards, err := s.service.ListBoards(r.Context(), sessionFrom(r).Actor(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

func (s *HTTPServer) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	board, err := s.service.CreateBoard(r.Context(), sessionFrom(r).Actor(), BoardInput{
		Name:        body.Name,
		Description: body.Description,
		Avatar:      body.Avatar,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, board)
}

func (s *HTTPServer) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	board, err := s.service.GetBoard(r.Context(), sessionFrom(r).Actor(), boardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *HTTPServer) handleUpdateBoard(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Avatar      *string `json:"avatar"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	board, err := s.service.UpdateBoard(r.Context(), sessionFrom(r).Actor(), boardID, BoardPatchInput{
		Name:        body.Name,
		Description: body.Description,
		Avatar:      body.Avatar,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *HTTPServer) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	if err := s.service.DeleteBoard(r.Context(), sessionFrom(r).Actor(), boardID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	if err := s.service.AddFavorite(r.Context(), sessionFrom(r).Actor(), boardID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Board added to favorites")
}

func (s *HTTPServer) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	if err := s.service.RemoveFavorite(r.Context(), sessionFrom(r).Actor(), boardID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	if err := s.service.Leave(r.Context(), sessionFrom(r).Actor(), boardID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "You left the board")
}

func (s *HTTPServer) handleSwitchModerator(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var body struct {
		ID    int64 `json:"id"`
		Value *bool `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.ID <= 0 {
		s.fail(w, r, errField("id", "is required"))
		return
	}
	isModerator, err := s.service.SwitchModerator(r.Context(), sessionFrom(r).Actor(), boardID, body.ID, body.Value)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": body.ID, "is_moderator": isModerator})
}

func (s *HTTPServer) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	participants, err := s.service.ListParticipants(r.Context(), sessionFrom(r).Actor(), boardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

func (s *HTTPServer) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	if err := s.service.RemoveParticipant(r.Context(), sessionFrom(r).Actor(), boardID, userID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListTags(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	tags, err := s.service.ListTags(r.Context(), sessionFrom(r).Actor(), boardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *HTTPServer) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	tagID, ok := pathID(w, r, "tagID")
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
	tag, err := s.service.RenameTag(r.Context(), sessionFrom(r).Actor(), boardID, tagID, body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tag)
}

func (s *HTTPServer) handleListBoardRequests(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	requests, err := s.service.ListBoardRequests(r.Context(), sessionFrom(r).Actor(), boardID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *HTTPServer) handleInvite(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	var body struct {
		Email  string `json:"email"`
		UserID int64  `json:"user_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	req, err := s.service.Invite(r.Context(), sessionFrom(r).Actor(), boardID, InviteInput{Email: body.Email, UserID: body.UserID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *HTTPServer) handleGetBoardRequest(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	req, err := s.service.GetBoardRequest(r.Context(), sessionFrom(r).Actor(), boardID, requestID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	if err := s.service.CancelRequest(r.Context(), sessionFrom(r).Actor(), boardID, requestID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListMyRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.service.ListMyRequests(r.Context(), sessionFrom(r).Actor())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	req, err := s.service.GetRequest(r.Context(), sessionFrom(r).Actor(), requestID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *HTTPServer) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	if err := s.service.AcceptRequest(r.Context(), sessionFrom(r).Actor(), requestID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "You joined the board")
}

func (s *HTTPServer) handleRefuseRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}
	if err := s.service.RefuseRequest(r.Context(), sessionFrom(r).Actor(), requestID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Invitation refused")
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	format, ok := export.ParseFormat(strings.ToLower(r.URL.Query().Get("format")))
	if !ok {
		s.fail(w, r, export.ErrUnsupportedFormat)
		return
	}
	includeComments := true
	if v, err := queryBool(r, "comments"); err != nil {
		s.fail(w, r, err)
		return
	} else if v != nil {
		includeComments = *v
	}

	result, err := s.service.ExportBoard(r.Context(), sessionFrom(r).Actor(), boardID, format, includeComments)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	boardID, ok := pathID(w, r, "boardID")
	if !ok {
		return
	}
	if err := s.service.AuthorizeEvents(r.Context(), sessionFrom(r).Actor(), boardID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.service.Events().ServeSSE(w, r, boardID)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{Text: strings.TrimSpace(r.URL.Query().Get("q"))}
	switch t := search.ResultType(r.URL.Query().Get("type")); t {
	case "", search.ResultBoard, search.ResultCard:
		q.FilterType = t
	default:
		s.fail(w, r, errField("type", fmt.Sprintf("must be %q or %q", search.ResultBoard, search.ResultCard)))
		return
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}
	resp, err := s.service.Search(r.Context(), sessionFrom(r).Actor(), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
