package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/config"
	"github.com/conferia/roombook/internal/db/store"
)

const (
	sessionCookieName      = "roombook_session"
	sessionTTL             = 8 * time.Hour
	sessionTokenBytes      = 32
	sessionCleanupInterval = 15 * time.Minute
)

var (
	queries     *store.Queries
	appConfig   *config.Config
	initOnce    sync.Once
	cleanupOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *store.Queries, cfg *config.Config) {
	if q == nil {
		return
	}
	initOnce.Do(func() {
		queries = q
		appConfig = cfg
	})
}

func isSecureCookie() bool {
	return appConfig == nil || appConfig.App.Environment != "development"
}

// CreateSession issues a fresh session token, persists it, and sets the
// session cookie. The token is returned so clients that authenticate
// with an Authorization header instead of cookies can capture it.
func CreateSession(ctx context.Context, w http.ResponseWriter, userID int64) (string, error) {
	if w == nil {
		return "", errors.New("session requires response writer")
	}
	if queries == nil {
		return "", errors.New("auth queries not initialized")
	}

	startSessionCleanup()

	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(sessionTTL)
	if err := queries.CreateSession(ctx, store.CreateSessionParams{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	return token, nil
}

// ClearSession deletes the stored session, if any, and expires the cookie.
func ClearSession(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if r == nil {
		ClearSessionCookie(w)
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && queries != nil {
		if err := queries.DeleteSession(ctx, cookie.Value); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to delete session")
		}
	}

	ClearSessionCookie(w)
}

func ClearSessionCookie(w http.ResponseWriter) {
	if w == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// ActorFromRequest resolves the request's session token into an actor.
// A bearer token in the Authorization header takes precedence over the
// session cookie; both carry the same opaque tokens. A missing or
// expired session returns (nil, nil); the caller treats that as an
// anonymous request.
func ActorFromRequest(w http.ResponseWriter, r *http.Request) (*authz.Actor, error) {
	if r == nil {
		return nil, nil
	}

	startSessionCleanup()

	token, fromCookie := requestToken(r)
	if token == "" {
		return nil, nil
	}

	// Only stamp out cookies we issued; bearer clients manage their
	// own tokens.
	clearCookie := func() {
		if fromCookie {
			ClearSessionCookie(w)
		}
	}

	if queries == nil {
		clearCookie()
		return nil, errors.New("auth queries not initialized")
	}

	session, err := queries.GetSession(r.Context(), token)
	if err != nil {
		clearCookie()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if session.ExpiresAt.Before(time.Now()) {
		if err := queries.DeleteSession(r.Context(), token); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("Failed to delete expired session")
		}
		clearCookie()
		return nil, nil
	}

	user, err := queries.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		if delErr := queries.DeleteSession(r.Context(), token); delErr != nil {
			log.Ctx(r.Context()).Warn().Err(delErr).Msg("Failed to delete orphaned session")
		}
		clearCookie()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &authz.Actor{
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
	}, nil
}

func requestToken(r *http.Request) (token string, fromCookie bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		const prefix = "Bearer "
		if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
			return strings.TrimSpace(header[len(prefix):]), false
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value, true
	}
	return "", false
}

func newSessionToken() (string, error) {
	token := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(token), nil
}

func startSessionCleanup() {
	cleanupOnce.Do(func() {
		// Lazy-start cleanup only when sessions are first used.
		go func() {
			ticker := time.NewTicker(sessionCleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				pruneExpiredSessions()
			}
		}()
	})
}

func pruneExpiredSessions() {
	if queries == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := queries.DeleteExpiredSessions(ctx, time.Now()); err != nil {
		log.Warn().Err(err).Msg("Failed to prune expired sessions")
	}
}
