package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/api/apiutil"
	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/db/store"
	"github.com/conferia/roombook/internal/ratelimit"
)

const authQueryTimeout = 5 * time.Second

var limiter = ratelimit.New(nil)

type userResponse struct {
	ID      int64  `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// POST /api/v1/auth/register
func HandleRegister(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	switch {
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "email", Reason: "must be a valid address"})
		return
	case req.Name == "":
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "name", Reason: "is required"})
		return
	case len(req.Password) < 8:
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "password", Reason: "must be at least 8 characters"})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	if _, err := queries.GetUserByEmail(ctx, req.Email); err == nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "email", Reason: "is already registered"})
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		apiutil.WriteError(w, r, err)
		return
	}

	user, err := queries.CreateUser(ctx, store.CreateUserParams{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	logger.Info().Int64("user_id", user.ID).Msg("User registered")
	apiutil.WriteJSON(w, http.StatusCreated, userResponse{
		ID: user.ID, Email: user.Email, Name: user.Name, IsAdmin: user.IsAdmin,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the session token alongside the user so bearer
// clients do not have to scrape it out of the Set-Cookie header.
type loginResponse struct {
	userResponse
	Token string `json:"token"`
}

// POST /api/v1/auth/login
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "invalid request body", Err: err})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "email", Reason: "and password are required"})
		return
	}

	ip := ratelimit.GetClientIP(r, false)
	if res := limiter.CheckLogin(req.Email, ip); !res.Allowed {
		ratelimit.LogRateLimitExceeded(req.Email, ip, res.Reason)
		w.Header().Set("Retry-After", retryAfterSeconds(res.RetryAfter))
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusTooManyRequests, Message: "too many login attempts"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	user, err := queries.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			limiter.RecordLoginFailure(req.Email, ip)
			apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusUnauthorized, Message: "invalid credentials"})
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}

	if !VerifyPassword(user.PasswordHash, req.Password) {
		if lockedOut := limiter.RecordLoginFailure(req.Email, ip); lockedOut {
			logger.Warn().Str("email", ratelimit.SanitizeIdentifier(req.Email)).Msg("Account locked after repeated failures")
		}
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusUnauthorized, Message: "invalid credentials"})
		return
	}

	limiter.ResetLoginAttempts(req.Email)

	token, err := CreateSession(ctx, w, user.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("user_id", user.ID).Msg("User logged in")
	apiutil.WriteJSON(w, http.StatusOK, loginResponse{
		userResponse: userResponse{ID: user.ID, Email: user.Email, Name: user.Name, IsAdmin: user.IsAdmin},
		Token:        token,
	})
}

// POST /api/v1/auth/logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	ClearSession(ctx, w, r)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/auth/me
func HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireActor(w, r)
	if !ok {
		return
	}

	if queries == nil {
		log.Ctx(r.Context()).Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	user, err := queries.GetUserByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, r, authz.ErrUnauthenticated)
			return
		}
		apiutil.WriteError(w, r, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, userResponse{
		ID: user.ID, Email: user.Email, Name: user.Name, IsAdmin: user.IsAdmin,
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
