package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m-urubek/scio--progress-path/internal/domain"
)

type joinRequest struct {
	JoinToken   string `json:"join_token"`
	Nickname    string `json:"nickname"`
	DeviceToken string `json:"device_token"`
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

// GetGroupByToken returns the join preview for a group: enough for a client
// to render the group before the participant commits to a nickname.
func (h *Handler) GetGroupByToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	group, err := h.repo.GetGroupByJoinToken(r.Context(), token)
	if err != nil {
		serviceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"name":      group.Name,
		"goal_text": group.GoalText,
		"goal_kind": group.GoalKind,
		"confirmed": group.Confirmed,
	})
}

// Join creates or restores a participant session. The same device and group
// pair always resolves to the same session.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, restored, err := h.svc.Join(r.Context(), req.JoinToken, req.Nickname, req.DeviceToken)
	if err != nil {
		serviceError(w, err)
		return
	}

	status := http.StatusCreated
	if restored {
		status = http.StatusOK
	}
	slog.Info("Participant joined", "session_id", sess.ID, "group_id", sess.GroupID, "restored", restored)
	JSON(w, status, map[string]interface{}{
		"session":  sess,
		"restored": restored,
	})
}

// GetSession returns current session state for tab restore.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if err != nil {
		serviceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"session": sess})
}

// SendMessage processes one participant turn.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req sendMessageRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.ProcessTurn(r.Context(), sessionID, req.Body)
	if err != nil {
		serviceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"participant_message": result.ParticipantMessage,
		"assistant_message":   result.AssistantMessage,
		"progress":            result.Progress,
		"completed":           result.Completed,
		"degraded":            result.GatewayFailed,
	})
}

// ListMessages returns a session's conversation.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, h.repo.ListMessages)
}

// ListKeyMessages returns the participant messages that materially advanced
// progress - the facilitator's "key messages" view.
func (h *Handler) ListKeyMessages(w http.ResponseWriter, r *http.Request) {
	h.listMessages(w, r, h.repo.ListKeyMessages)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, sessionID string) ([]*domain.Message, error)) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.repo.GetSession(r.Context(), sessionID); err != nil {
		serviceError(w, err)
		return
	}

	messages, err := list(r.Context(), sessionID)
	if err != nil {
		serviceError(w, err)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
