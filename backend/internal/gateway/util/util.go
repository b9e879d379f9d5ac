package util

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"student_achievements/backend/internal/shared"
)

// JSONResponse structure for successful responses
type JSONResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// JSONError structure for error responses
type JSONError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteJSON writes payload inside the success envelope
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	writeEnvelope(w, r, status, JSONResponse{Success: true, Data: payload})
}

// WriteJSONMessage writes a success envelope carrying only a message
func WriteJSONMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeEnvelope(w, r, status, JSONResponse{Success: true, Message: message})
}

// WriteJSONError is a helper to write standardized error JSON responses
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	log := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		log.Error().Int("status", status).Msg(message)
	} else {
		log.Debug().Int("status", status).Msg(message)
	}
	writeEnvelope(w, r, status, JSONError{Success: false, Message: message})
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("error writing JSON response")
	}
}

// HandleError translates service errors to HTTP responses. Internal causes
// are logged and never reach the client.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		WriteJSONError(w, r, http.StatusBadRequest, shared.Message(err))
	case errors.Is(err, shared.ErrUnauthorized):
		WriteJSONError(w, r, http.StatusUnauthorized, shared.Message(err))
	case errors.Is(err, shared.ErrForbidden):
		WriteJSONError(w, r, http.StatusForbidden, shared.Message(err))
	case errors.Is(err, shared.ErrNotFound):
		WriteJSONError(w, r, http.StatusNotFound, shared.Message(err))
	case errors.Is(err, shared.ErrConflict):
		WriteJSONError(w, r, http.StatusConflict, shared.Message(err))
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		hlog.FromRequest(r).Warn().Err(err).Msg("request cancelled")
		WriteJSONError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		hlog.FromRequest(r).Error().Err(err).AnErr("cause", errors.Unwrap(err)).Msg("internal error")
		WriteJSONError(w, r, http.StatusInternalServerError, shared.ErrInternal.Error())
	}
}

// DecodeJSON reads a JSON request body into dst
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewValidationError("Request body is empty")
		}
		return shared.NewValidationError("Invalid request payload")
	}
	return nil
}

// ExtractToken extracts the token from the Authorization header (Bearer <token>)
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}

	// Expect header: "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

type identityKey struct{}

// IdentityFrom returns the caller placed in ctx by the auth middleware
func IdentityFrom(ctx context.Context) (shared.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(shared.Identity)
	return id, ok
}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id shared.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}
