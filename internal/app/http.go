package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"taskplanner/api/internal/auth"
	"taskplanner/api/internal/authpw"
	"taskplanner/api/internal/export"
	"taskplanner/api/internal/ordering"
	"taskplanner/api/internal/store"
	"taskplanner/api/internal/util"
)

type HTTPServer struct {
	service        *Service
	corsOrigins    []string
	maxUploadBytes int64
	log            zerolog.Logger
}

func NewHTTPServer(service *Service, corsOrigins []string, maxUploadBytes int64, logger zerolog.Logger) *HTTPServer {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &HTTPServer{
		service:        service,
		corsOrigins:    corsOrigins,
		maxUploadBytes: maxUploadBytes,
		log:            logger.With().Str("component", "http").Logger(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Post("/auth/signup", s.handleAuthSignUp)
		r.Post("/auth/signin", s.handleAuthSignIn)
		r.Post("/session/refresh", s.handleSessionRefresh)
		r.Post("/session/logout", s.handleSessionLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/users/me", s.handleMe)
			r.Get("/search", s.handleSearch)

			r.Route("/boards", func(r chi.Router) {
				r.Get("/", s.handleListBoards)
				r.Post("/", s.handleCreateBoard)
				r.Route("/{boardID}", func(r chi.Router) {
					r.Get("/", s.handleGetBoard)
					r.Patch("/", s.handleUpdateBoard)
					r.Delete("/", s.handleDeleteBoard)
					r.Post("/favorite", s.handleAddFavorite)
					r.Delete("/favorite", s.handleRemoveFavorite)
					r.Post("/leave", s.handleLeave)
					r.Post("/switch-moderator", s.handleSwitchModerator)
					r.Get("/participants", s.handleListParticipants)
					r.Delete("/participants/{userID}", s.handleRemoveParticipant)
					r.Get("/tags", s.handleListTags)
					r.Patch("/tags/{tagID}", s.handleRenameTag)
					r.Get("/requests", s.handleListBoardRequests)
					r.Post("/requests", s.handleInvite)
					r.Get("/requests/{requestID}", s.handleGetBoardRequest)
					r.Delete("/requests/{requestID}", s.handleCancelRequest)
					r.Get("/export", s.handleExport)
					r.Get("/events", s.handleEvents)
				})
			})

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", s.handleListMyRequests)
				r.Get("/{requestID}", s.handleGetRequest)
				r.Post("/{requestID}/accept", s.handleAcceptRequest)
				r.Post("/{requestID}/refuse", s.handleRefuseRequest)
			})

			r.Route("/lists", func(r chi.Router) {
				r.Get("/", s.handleListLists)
				r.Post("/", s.handleCreateList)
				r.Post("/swap", s.handleSwapLists)
				r.Get("/{listID}", s.handleGetList)
				r.Patch("/{listID}", s.handleRenameList)
				r.Delete("/{listID}", s.handleDeleteList)
			})

			r.Route("/cards", func(r chi.Router) {
				r.Get("/", s.handleListCards)
				r.Post("/", s.handleCreateCard)
				r.Post("/swap", s.handleSwapCards)
				r.Route("/{cardID}", func(r chi.Router) {
					r.Get("/", s.handleGetCard)
					r.Patch("/", s.handleUpdateCard)
					r.Delete("/", s.handleDeleteCard)
					r.Post("/change-list", s.handleMoveCard)
					r.Post("/participants", s.handleAddCardParticipant)
					r.Delete("/participants/{userID}", s.handleRemoveCardParticipant)
					r.Post("/tags", s.handleAddCardTag)
					r.Delete("/tags/{tagID}", s.handleRemoveCardTag)
					r.Get("/comments", s.handleListComments)
					r.Post("/comments", s.handleCreateComment)
					r.Get("/comments/{commentID}", s.handleGetComment)
					r.Patch("/comments/{commentID}", s.handleUpdateComment)
					r.Delete("/comments/{commentID}", s.handleDeleteComment)
					r.Get("/check-lists", s.handleListCheckItems)
					r.Post("/check-lists", s.handleCreateCheckItem)
					r.Get("/check-lists/{itemID}", s.handleGetCheckItem)
					r.Patch("/check-lists/{itemID}", s.handleUpdateCheckItem)
					r.Delete("/check-lists/{itemID}", s.handleDeleteCheckItem)
					r.Post("/check-lists/{itemID}/switch", s.handleToggleCheckItem)
					r.Get("/files", s.handleListFiles)
					r.Post("/files", s.handleUploadFile)
					r.Get("/files/{fileID}", s.handleDownloadFile)
					r.Delete("/files/{fileID}", s.handleDeleteFile)
				})
			})
		})
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Bio       string `json:"bio"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	user, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:     body.Email,
		Username:  body.Username,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Bio:       body.Bio,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(user))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.RefreshToken) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", map[string]string{"refresh_token": "is required"})
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSessionLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":         session.Token,
		"refresh_token": session.RefreshToken,
		"expires_at":    session.ExpiresAt.UTC().Format(time.RFC3339),
		"user": map[string]any{
			"id":       session.UserID,
			"username": session.UserName,
			"is_staff": session.IsStaff,
		},
	}
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	user, err := s.service.Me(r.Context(), session.Actor())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

type sessionKey struct{}

// requireSession rejects requests without a valid bearer token and stores
// the session in the request context.
func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			s.log.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("session lookup failed")
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

// withMiddleware tags the request with an id, recovers panics and logs
// one line per request.
func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = util.NewID("req")
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", id)
		writer.Header().Set("Cache-Control", "no-store")

		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error().
					Str("request_id", id).
					Interface("panic", rec).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic")
				if !writer.wroteHeader {
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
				}
			}

			var event *zerolog.Event
			switch {
			case writer.status >= 500:
				event = s.log.Error()
			case writer.status >= 400:
				event = s.log.Warn()
			default:
				event = s.log.Info()
			}
			event.
				Str("request_id", id).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", writer.status).
				Int64("duration_ms", time.Since(started).Milliseconds()).
				Msg("request")
		}()

		next.ServeHTTP(writer, r)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(p)
}

// Flush lets event streams pass through the recorder.
func (r *statusRecorder) Flush() {
	r.wroteHeader = true
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// fail writes err as an error payload. Server errors are logged with the
// request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"status":  "error",
		"code":    code,
		"message": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeSuccess(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"status": "success", "message": message})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// bearerToken reads the Authorization header. Event streams opened by a
// browser cannot set headers, so access_token in the query is accepted too.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// pathID parses a numeric URL parameter. Anything else is a missing route.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return 0, false
	}
	return id, true
}

// queryID parses an optional numeric query parameter; absent means zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errField(name, "must be a positive integer")
	}
	return id, nil
}

// queryBool parses an optional boolean query parameter; absent means nil.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errField(name, "must be true or false")
	}
	return &v, nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *authpw.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid input", validationErr.Fields
	}

	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, ordering.ErrPositionOutOfRange):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"position": "out of range"}
	case errors.Is(err, ordering.ErrSameItem),
		errors.Is(err, ordering.ErrDifferentContainers),
		errors.Is(err, ordering.ErrDifferentScope),
		errors.Is(err, ordering.ErrImmovable):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, ordering.ErrStale):
		return http.StatusConflict, "CONFLICT", "The board changed while saving, try again", nil
	case errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, store.ErrAlreadyMember),
		errors.Is(err, store.ErrAuthorProtected),
		errors.Is(err, store.ErrNotAssigned):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, store.ErrModeratorProtected):
		return http.StatusForbidden, "FORBIDDEN", err.Error(), nil
	case errors.Is(err, store.ErrNotBoardMember), errors.Is(err, store.ErrForeignTag):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "CONFLICT", "Email or username already registered", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), map[string]string{"format": "must be html, pdf or docx"}
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
