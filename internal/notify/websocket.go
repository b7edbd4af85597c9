package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/m-urubek/scio--progress-path/internal/store"
)

// WSHandler serves the group and session event streams over WebSocket.
type WSHandler struct {
	hub           *Hub
	repo          store.Repository
	allowedOrigin string
	isDev         bool
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(hub *Hub, repo store.Repository, allowedOrigin string, isDev bool) *WSHandler {
	return &WSHandler{
		hub:           hub,
		repo:          repo,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes registers the WebSocket routes.
func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/group/{groupID}", h.ServeGroup)
	r.Get("/ws/session/{sessionID}", h.ServeSession)
}

// ServeGroup streams a group's events to a facilitator observer.
func (h *WSHandler) ServeGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	if _, err := h.repo.GetGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "group not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load group for stream", "error", err, "group_id", groupID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	events, cancel := h.hub.SubscribeGroup(groupID)
	defer cancel()

	h.stream(w, r, events, "group", groupID)
}

// ServeSession streams a session's events to one of the participant's tabs.
func (h *WSHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.repo.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to load session for stream", "error", err, "session_id", sessionID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	events, cancel := h.hub.SubscribeSession(sessionID)
	defer cancel()

	h.stream(w, r, events, "session", sessionID)
}

func (h *WSHandler) stream(w http.ResponseWriter, r *http.Request, events <-chan Event, scope, id string) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, scope+"_id", id)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, scope+"_id", id)
		}
	}()

	slog.Info("Event stream opened", "scope", scope, "id", id, "ip", r.RemoteAddr)

	// The client never sends application data; CloseRead watches for close
	// frames and cancels the context when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	for {
		select {
		case ev := <-events:
			if err := writeEvent(ctx, ws, ev); err != nil {
				slog.Debug("Event stream write failed", "error", err, "scope", scope, "id", id)
				return
			}
		case <-ctx.Done():
			slog.Info("Event stream closed", "scope", scope, "id", id)
			return
		}
	}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
