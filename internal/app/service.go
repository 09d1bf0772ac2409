package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"taskplanner/api/internal/auth"
	"taskplanner/api/internal/authpw"
	"taskplanner/api/internal/blob"
	"taskplanner/api/internal/config"
	"taskplanner/api/internal/email"
	"taskplanner/api/internal/events"
	"taskplanner/api/internal/export"
	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/search"
	"taskplanner/api/internal/store"
	"taskplanner/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       int64
	UserName     string
	IsStaff      bool
	JTI          string
	ExpiresAt    time.Time
}

func (s Session) Actor() rbac.Actor {
	return rbac.Actor{UserID: s.UserID, IsStaff: s.IsStaff}
}

// refreshStore keeps hashed refresh tokens. Both store.SQLStore and
// session.RedisStore implement it.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (int64, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Dependencies are the collaborators a Service is built from. Only Store is
// required.
type Dependencies struct {
	Store    *store.SQLStore
	Sessions refreshStore
	Blobs    blob.Store
	Search   *search.Service
	Mailer   *email.Service
	Events   *events.Bus
	Logger   zerolog.Logger
}

type Service struct {
	cfg       config.Config
	store     *store.SQLStore
	sessions  refreshStore
	passwords *authpw.Service
	blobs     blob.Store
	search    *search.Service
	exporter  *export.Service
	mailer    *email.Service
	events    *events.Bus
	log       zerolog.Logger
}

func New(cfg config.Config, deps Dependencies) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: authpw.NewService(deps.Store),
		blobs:     deps.Blobs,
		search:    deps.Search,
		exporter:  export.NewService(deps.Store),
		mailer:    deps.Mailer,
		events:    deps.Events,
		log:       deps.Logger.With().Str("component", "app").Logger(),
	}
	if svc.sessions == nil {
		svc.sessions = deps.Store
	}
	if svc.blobs == nil {
		svc.blobs = blob.NewMemoryStore()
	}
	if svc.search == nil {
		svc.search = search.NewService(nil, search.NewSQLSearch(deps.Store.DB()), deps.Logger)
	}
	if svc.events == nil {
		svc.events = events.NewBus()
	}
	return svc
}

func (s *Service) Events() *events.Bus {
	return s.events
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error) {
	return s.passwords.SignUp(ctx, req)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		UserID: user.ID,
		Name:   user.Username,
		Staff:  user.IsStaff,
		JTI:    jti,
		Exp:    expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.CompactID()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Username,
		IsStaff:      user.IsStaff,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and reloads the user so a
// revoked staff flag takes effect before the token expires.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Username,
		IsStaff:   user.IsStaff,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Service) Me(ctx context.Context, actor rbac.Actor) (store.User, error) {
	return s.store.GetUserByID(ctx, actor.UserID)
}

// roleOn resolves the actor's role on a board.
func (s *Service) roleOn(ctx context.Context, actor rbac.Actor, boardID int64) (rbac.Role, error) {
	m, err := s.store.GetMembership(ctx, boardID, actor.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return rbac.RoleNone, err
	}
	return rbac.RoleFor(actor, rbac.Membership{
		Member:      err == nil,
		IsModerator: m.IsModerator,
		IsAuthor:    m.IsAuthor,
	}), nil
}

// authorize checks action against the board that owns target and returns
// the actor's role there.
func (s *Service) authorize(ctx context.Context, actor rbac.Actor, target rbac.BoardScoped, action rbac.Action) (rbac.Role, error) {
	role, err := s.roleOn(ctx, actor, target.OwningBoard())
	if err != nil {
		return rbac.RoleNone, err
	}
	if !rbac.Can(role, action) {
		return role, errForbidden()
	}
	return role, nil
}

func (s *Service) publish(boardID int64, typ, entity string, payload any) {
	s.events.Publish(events.Event{Type: typ, Entity: entity, BoardID: boardID, Payload: payload})
}

// removeObjects deletes attachment bytes after their rows are gone.
// Failures leave orphaned objects and are only logged.
func (s *Service) removeObjects(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Remove(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.Error().Err(err).Str("object_key", key).Msg("remove attachment object")
		}
	}
}

const (
	maxNameLength    = 50
	maxTagNameLength = 20
)

// cleanName trims a required name and enforces its length limit.
func cleanName(field, value string, limit int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errField(field, "must not be empty")
	}
	if len([]rune(value)) > limit {
		return "", errField(field, fmt.Sprintf("must be at most %d characters", limit))
	}
	return value, nil
}
