package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conferia/roombook/internal/db/store"
)

func seedSessionUser(t *testing.T, email string) int64 {
	t.Helper()
	hash, err := HashPassword("long-enough-secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := testDB.Queries.CreateUser(context.Background(), store.CreateUserParams{
		Email: email, Name: "Session User", PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

func TestActorFromRequestWithoutCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	actor, err := ActorFromRequest(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != nil {
		t.Fatalf("expected anonymous request, got %+v", actor)
	}
}

func TestActorFromRequestUnknownToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "no-such-token"})

	w := httptest.NewRecorder()
	actor, err := ActorFromRequest(w, r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != nil {
		t.Fatalf("expected nil actor, got %+v", actor)
	}

	// The stale cookie gets expired on the response.
	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected stale session cookie to be cleared")
	}
}

func TestActorFromRequestExpiredSession(t *testing.T) {
	userID := seedSessionUser(t, "expired@example.com")

	token := "expired-session-token"
	if err := testDB.Queries.CreateSession(context.Background(), store.CreateSessionParams{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	actor, err := ActorFromRequest(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != nil {
		t.Fatalf("expected expired session to resolve to nil, got %+v", actor)
	}

	// The expired row is gone.
	if _, err := testDB.Queries.GetSession(context.Background(), token); err == nil {
		t.Fatal("expected expired session row to be deleted")
	}
}

func TestClearSessionDeletesRow(t *testing.T) {
	userID := seedSessionUser(t, "logout@example.com")

	w := httptest.NewRecorder()
	token, err := CreateSession(context.Background(), w, userID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie")
	}
	if cookies[0].Value != token {
		t.Fatalf("cookie token %q differs from returned token %q", cookies[0].Value, token)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	r.AddCookie(cookies[0])
	ClearSession(context.Background(), httptest.NewRecorder(), r)

	if _, err := testDB.Queries.GetSession(context.Background(), token); err == nil {
		t.Fatal("expected session row to be deleted on logout")
	}
}
