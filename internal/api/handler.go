// Package api provides HTTP handlers for the progress-path API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m-urubek/scio--progress-path/internal/session"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

// maxRequestBodySize is the maximum allowed request body size (64KB).
const maxRequestBodySize = 64 << 10

// Handler serves the facilitator and participant HTTP API.
type Handler struct {
	repo store.Repository
	svc  *session.Service
}

// NewHandler creates a new Handler.
func NewHandler(repo store.Repository, svc *session.Service) *Handler {
	return &Handler{repo: repo, svc: svc}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/groups", h.CreateGroup)
		r.Get("/groups/{groupID}", h.GetGroup)
		r.Post("/groups/{groupID}/confirm", h.ConfirmGroup)
		r.Post("/groups/{groupID}/reject", h.RejectGroup)
		r.Get("/groups/{groupID}/sessions", h.ListSessions)
		r.Get("/groups/by-token/{token}", h.GetGroupByToken)

		r.Post("/join", h.Join)
		r.Get("/sessions/{sessionID}", h.GetSession)
		r.Post("/sessions/{sessionID}/messages", h.SendMessage)
		r.Get("/sessions/{sessionID}/messages", h.ListMessages)
		r.Get("/sessions/{sessionID}/messages/key", h.ListKeyMessages)

		r.Post("/alerts/{alertID}/resolve", h.ResolveAlert)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a bounded JSON request body.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

// serviceError maps the error taxonomy to HTTP statuses: validation and
// malformed input to 400, unknown records to 404, state conflicts to 409.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyMessage),
		errors.Is(err, session.ErrEmptyGoal),
		errors.Is(err, session.ErrGoalTooLong),
		errors.Is(err, session.ErrEmptyNickname):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNicknameTaken),
		errors.Is(err, store.ErrGroupConfirmed),
		errors.Is(err, session.ErrSessionCompleted),
		errors.Is(err, session.ErrGroupNotConfirmed):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrInferenceUnavailable):
		Error(w, http.StatusServiceUnavailable, err.Error())
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
