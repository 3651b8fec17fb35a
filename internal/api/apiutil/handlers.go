package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/conferia/roombook/internal/authz"
	"github.com/conferia/roombook/internal/booking"
	"github.com/conferia/roombook/internal/booking/service"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// WriteError translates domain errors into HTTP responses. Anything it
// does not recognize is logged and reported as a 500 without leaking
// internals.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fieldErr      FieldError
		handlerErr    HandlerError
		validationErr booking.ValidationError
		permissionErr booking.PermissionError
		conflictErr   *service.ConflictError
	)

	switch {
	case errors.As(err, &fieldErr):
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: fieldErr.Reason, Field: fieldErr.Field})
	case errors.As(err, &handlerErr):
		WriteJSON(w, handlerErr.Status, errorResponse{Error: handlerErr.Message})
	case errors.As(err, &validationErr):
		WriteJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Reason, Field: validationErr.Field})
	case errors.As(err, &permissionErr):
		WriteJSON(w, http.StatusForbidden, errorResponse{Error: permissionErr.Reason})
	case errors.As(err, &conflictErr):
		WriteJSON(w, http.StatusConflict, NewConflictResponse(conflictErr))
	case errors.Is(err, booking.ErrConcurrencyConflict):
		WriteJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, booking.ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, authz.ErrUnauthenticated):
		WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, authz.ErrForbidden):
		WriteJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// RequireActor resolves the request actor or writes a 401. Handlers
// bail out when the second return is false.
func RequireActor(w http.ResponseWriter, r *http.Request) (authz.Actor, bool) {
	actor, err := authz.RequireActor(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return authz.Actor{}, false
	}
	return actor, true
}
