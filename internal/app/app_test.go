package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"taskplanner/api/internal/blob"
	"taskplanner/api/internal/config"
	"taskplanner/api/internal/rbac"
	"taskplanner/api/internal/store"
)

type testApp struct {
	store   *store.SQLStore
	blobs   *blob.MemoryStore
	service *Service
	handler http.Handler
}

type testUser struct {
	store.User
	token   string
	refresh string
}

func (u testUser) actor() rbac.Actor {
	return rbac.Actor{UserID: u.ID, IsStaff: u.IsStaff}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()
	db, dialect, err := store.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	st := store.NewSQLStore(db, store.TxPolicy{Timeout: 5 * time.Second, MaxAttempts: 3})
	blobs := blob.NewMemoryStore()
	svc := New(config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		BaseURL:    "http://localhost:3000",
	}, Dependencies{Store: st, Blobs: blobs, Logger: zerolog.Nop()})
	server := NewHTTPServer(svc, nil, 1<<20, zerolog.Nop())
	return &testApp{store: st, blobs: blobs, service: svc, handler: server.Handler()}
}

// user creates an account and signs it in.
func (a *testApp) user(t *testing.T, name string) testUser {
	t.Helper()
	return a.signUpAs(t, name, false)
}

func (a *testApp) staff(t *testing.T, name string) testUser {
	t.Helper()
	return a.signUpAs(t, name, true)
}

func (a *testApp) signUpAs(t *testing.T, name string, isStaff bool) testUser {
	t.Helper()
	ctx := context.Background()
	password := "password-" + name
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := a.store.CreateUser(ctx, store.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: string(hash),
		IsStaff:      isStaff,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	session, err := a.service.SignIn(ctx, u.Email, password)
	if err != nil {
		t.Fatalf("sign in %s: %v", name, err)
	}
	return testUser{User: u, token: session.Token, refresh: session.RefreshToken}
}

func (a *testApp) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

// board creates a board owned by author through the service.
func (a *testApp) board(t *testing.T, author testUser, name string) boardView {
	t.Helper()
	b, err := a.service.CreateBoard(context.Background(), author.actor(), BoardInput{Name: name})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b
}

// join invites member to the board and accepts on their behalf.
func (a *testApp) join(t *testing.T, boardID int64, inviter, member testUser) {
	t.Helper()
	ctx := context.Background()
	req, err := a.service.Invite(ctx, inviter.actor(), boardID, InviteInput{UserID: member.ID})
	if err != nil {
		t.Fatalf("invite %s: %v", member.Username, err)
	}
	if err := a.service.AcceptRequest(ctx, member.actor(), req.ID); err != nil {
		t.Fatalf("accept for %s: %v", member.Username, err)
	}
}

func (a *testApp) list(t *testing.T, actor testUser, boardID int64, name string) listView {
	t.Helper()
	l, err := a.service.CreateList(context.Background(), actor.actor(), boardID, name)
	if err != nil {
		t.Fatalf("create list %s: %v", name, err)
	}
	return l
}

func (a *testApp) card(t *testing.T, actor testUser, listID int64, name string) cardView {
	t.Helper()
	c, err := a.service.CreateCard(context.Background(), actor.actor(), CardInput{ListID: listID, Name: name})
	if err != nil {
		t.Fatalf("create card %s: %v", name, err)
	}
	return c
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	payload := decode[map[string]any](t, rr)
	if payload["status"] != "error" {
		t.Fatalf("expected status error, got %v", payload["status"])
	}
	if payload["code"] != code {
		t.Fatalf("expected code %s, got %v (%v)", code, payload["code"], payload["message"])
	}
}

func positions[T any](items []T, name func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, name(item))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
