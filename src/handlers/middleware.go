// src/handlers/middleware.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/security"
	"github.com/BanziSeo/habiOS-sub002/src/services"
	"github.com/BanziSeo/habiOS-sub002/src/store"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
	"github.com/google/uuid"
)

// ContextualLoggerMiddleware attaches a request-scoped logger carrying a
// request id.
func ContextualLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.L.With("requestID", uuid.NewString(), "path", r.URL.Path, "method", r.Method)
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), reqLogger)))
	})
}

// AuthMiddleware validates the session token issued by the login gate.
func AuthMiddleware(auth *security.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				writeError(w, http.StatusUnauthorized, "missing session token")
				return
			}
			if err := auth.ValidateToken(token); err != nil {
				writeError(w, http.StatusUnauthorized, "session expired or invalid")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Message: message})
}

// writeServiceError maps error classes onto statuses and human-readable
// messages. Raw storage errors never cross this boundary.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, services.ErrAccountNotFound),
		errors.Is(err, services.ErrPositionNotFound),
		errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "requested record was not found")
	case errors.Is(err, services.ErrDuplicateTrade):
		writeError(w, http.StatusConflict, "trade already exists")
	case errors.Is(err, store.ErrNoValidFields):
		writeError(w, http.StatusBadRequest, "update contained no editable fields")
	case errors.Is(err, writequeue.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "too many pending writes, try again shortly")
	case errors.Is(err, writequeue.ErrQueuePaused), errors.Is(err, writequeue.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, "storage is temporarily unavailable")
	case database.IsConstraintErr(err):
		writeError(w, http.StatusConflict, "the change conflicts with existing data")
	default:
		log.Error("Unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "an internal error occurred")
	}
}
