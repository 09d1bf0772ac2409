package app

import (
	"net/http"
	"testing"
)

type sessionResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		IsStaff  bool   `json:"is_staff"`
	} `json:"user"`
}

func TestSignUpSignInAndMe(t *testing.T) {
	a := newTestApp(t)

	rr := a.call(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":      "dana@example.com",
		"username":   "dana",
		"password":   "correct-horse",
		"first_name": "Dana",
	})
	expectStatus(t, rr, http.StatusCreated)
	created := decode[userView](t, rr)
	if created.ID == 0 || created.Username != "dana" || created.FirstName != "Dana" {
		t.Fatalf("unexpected signup payload: %+v", created)
	}

	rr = a.call(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "DANA@example.com",
		"password": "correct-horse",
	})
	expectStatus(t, rr, http.StatusOK)
	session := decode[sessionResponse](t, rr)
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatalf("expected token pair, got %+v", session)
	}
	if session.User.ID != created.ID {
		t.Fatalf("expected session for user %d, got %d", created.ID, session.User.ID)
	}

	rr = a.call(t, http.MethodGet, "/api/users/me", session.Token, nil)
	expectStatus(t, rr, http.StatusOK)
	if me := decode[userView](t, rr); me.Email != "dana@example.com" {
		t.Fatalf("unexpected me payload: %+v", me)
	}
}

func TestSignUpRejectsInvalidInputAndDuplicates(t *testing.T) {
	a := newTestApp(t)

	rr := a.call(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "not-an-email",
		"username": "",
		"password": "short",
	})
	expectError(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	details, _ := decode[map[string]any](t, rr)["details"].(map[string]any)
	for _, field := range []string{"email", "username", "password"} {
		if _, ok := details[field]; !ok {
			t.Fatalf("expected %s in details, got %v", field, details)
		}
	}

	a.user(t, "erin")
	rr = a.call(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "erin@example.com",
		"username": "erin2",
		"password": "long-enough",
	})
	expectError(t, rr, http.StatusConflict, "CONFLICT")
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	a := newTestApp(t)
	a.user(t, "frank")

	rr := a.call(t, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "frank@example.com",
		"password": "wrong-password",
	})
	expectError(t, rr, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestApp(t)

	rr := a.call(t, http.MethodGet, "/api/boards", "", nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = a.call(t, http.MethodGet, "/api/boards", "not-a-jwt", nil)
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRefreshRotatesToken(t *testing.T) {
	a := newTestApp(t)
	gail := a.user(t, "gail")

	rr := a.call(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refresh_token": gail.refresh})
	expectStatus(t, rr, http.StatusOK)
	rotated := decode[sessionResponse](t, rr)
	if rotated.RefreshToken == "" || rotated.RefreshToken == gail.refresh {
		t.Fatalf("expected a new refresh token, got %q", rotated.RefreshToken)
	}

	// The old refresh token is spent.
	rr = a.call(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refresh_token": gail.refresh})
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")

	rr = a.call(t, http.MethodPost, "/api/session/logout", "", map[string]string{"refresh_token": rotated.RefreshToken})
	expectStatus(t, rr, http.StatusOK)

	rr = a.call(t, http.MethodPost, "/api/session/refresh", "", map[string]string{"refresh_token": rotated.RefreshToken})
	expectError(t, rr, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRefreshRequiresToken(t *testing.T) {
	a := newTestApp(t)
	rr := a.call(t, http.MethodPost, "/api/session/refresh", "", map[string]string{})
	expectError(t, rr, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}
