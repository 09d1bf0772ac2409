package app

import (
	"context"
	"errors"
	"strings"

	"taskplanner/api/internal/email"
	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/store"
)

// InviteInput names the invited user by email or by id.
type InviteInput struct {
	Email  string
	UserID int64
}

// Invite creates a pending join request and mails the invited user when
// SMTP is configured.
func (s *Service) Invite(ctx context.Context, actor rbac.Actor, boardID int64, input InviteInput) (requestView, error) {
	board, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionManageMembers)
	if err != nil {
		return requestView{}, err
	}

	var invitee store.User
	switch {
	case strings.TrimSpace(input.Email) != "":
		invitee, err = s.store.GetUserByEmail(ctx, strings.TrimSpace(input.Email))
	case input.UserID != 0:
		invitee, err = s.store.GetUserByID(ctx, input.UserID)
	default:
		return requestView{}, errValidation(map[string]string{"email": "email or user_id is required"})
	}
	if errors.Is(err, store.ErrNotFound) {
		return requestView{}, errNotFound("User")
	}
	if err != nil {
		return requestView{}, err
	}
	if invitee.ID == actor.UserID {
		return requestView{}, errConflict("You cannot invite yourself")
	}

	req, err := s.store.CreateJoinRequest(ctx, boardID, invitee.ID, actor.UserID)
	switch {
	case errors.Is(err, store.ErrAlreadyMember):
		return requestView{}, errConflict("User is already a participant of this board")
	case errors.Is(err, store.ErrAlreadyExists):
		return requestView{}, errConflict("User has already been invited to this board")
	case err != nil:
		return requestView{}, err
	}

	view := toRequestView(req)
	s.publish(boardID, "created", "join_request", view)
	s.notifyInvitee(ctx, actor, board, invitee)
	return view, nil
}

func (s *Service) notifyInvitee(ctx context.Context, actor rbac.Actor, board store.Board, invitee store.User) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	inviter := "A board moderator"
	if u, err := s.store.GetUserByID(ctx, actor.UserID); err == nil {
		inviter = u.Username
	}
	data := email.InvitationData{
		InviteeName: invitee.Username,
		InviterName: inviter,
		BoardName:   board.Name,
		RequestsURL: strings.TrimRight(s.cfg.BaseURL, "/") + "/requests",
	}
	go func() {
		if err := s.mailer.SendInvitation(invitee.Email, data); err != nil {
			s.log.Error().Err(err).Int64("board_id", board.ID).Int64("user_id", invitee.ID).Msg("send invitation email")
		}
	}()
}

func (s *Service) ListBoardRequests(ctx context.Context, actor rbac.Actor, boardID int64) ([]requestView, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionManageMembers); err != nil {
		return nil, err
	}
	requests, err := s.store.ListBoardJoinRequests(ctx, boardID)
	if err != nil {
		return nil, err
	}
	return toRequestViews(requests), nil
}

func (s *Service) loadBoardRequest(ctx context.Context, actor rbac.Actor, boardID, id int64) (store.JoinRequest, error) {
	if _, _, err := s.loadBoard(ctx, actor, boardID, rbac.ActionManageMembers); err != nil {
		return store.JoinRequest{}, err
	}
	req, err := s.store.GetJoinRequest(ctx, id)
	if err != nil {
		return store.JoinRequest{}, err
	}
	if req.BoardID != boardID {
		return store.JoinRequest{}, errNotFound("Join request")
	}
	return req, nil
}

func (s *Service) GetBoardRequest(ctx context.Context, actor rbac.Actor, boardID, id int64) (requestView, error) {
	req, err := s.loadBoardRequest(ctx, actor, boardID, id)
	if err != nil {
		return requestView{}, err
	}
	return toRequestView(req), nil
}

// CancelRequest withdraws a pending invitation from the board side.
func (s *Service) CancelRequest(ctx context.Context, actor rbac.Actor, boardID, id int64) error {
	if _, err := s.loadBoardRequest(ctx, actor, boardID, id); err != nil {
		return err
	}
	if err := s.store.DeleteJoinRequest(ctx, id); err != nil {
		return err
	}
	s.publish(boardID, "deleted", "join_request", map[string]any{"id": id})
	return nil
}

// ListMyRequests lists invitations addressed to the actor; staff see all.
func (s *Service) ListMyRequests(ctx context.Context, actor rbac.Actor) ([]requestView, error) {
	requests, err := s.store.ListUserJoinRequests(ctx, actor.UserID, actor.IsStaff)
	if err != nil {
		return nil, err
	}
	return toRequestViews(requests), nil
}

// GetRequest is visible to the recipient, staff and the board's managers.
func (s *Service) GetRequest(ctx context.Context, actor rbac.Actor, id int64) (requestView, error) {
	req, err := s.store.GetJoinRequest(ctx, id)
	if err != nil {
		return requestView{}, err
	}
	if !rbac.CanRespond(actor, req) {
		if _, err := s.authorize(ctx, actor, req, rbac.ActionManageMembers); err != nil {
			return requestView{}, err
		}
	}
	return toRequestView(req), nil
}

func (s *Service) loadOwnRequest(ctx context.Context, actor rbac.Actor, id int64) (store.JoinRequest, error) {
	req, err := s.store.GetJoinRequest(ctx, id)
	if err != nil {
		return store.JoinRequest{}, err
	}
	if !rbac.CanRespond(actor, req) {
		return store.JoinRequest{}, errForbidden()
	}
	return req, nil
}

// AcceptRequest makes the recipient a plain member and deletes the request.
func (s *Service) AcceptRequest(ctx context.Context, actor rbac.Actor, id int64) error {
	req, err := s.loadOwnRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if _, err := s.store.AcceptJoinRequest(ctx, id); err != nil {
		return err
	}
	s.publish(req.BoardID, "created", "participant", map[string]any{"id": req.UserID, "is_moderator": false})
	return nil
}

func (s *Service) RefuseRequest(ctx context.Context, actor rbac.Actor, id int64) error {
	req, err := s.loadOwnRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJoinRequest(ctx, id); err != nil {
		return err
	}
	s.publish(req.BoardID, "deleted", "join_request", map[string]any{"id": id})
	return nil
}
