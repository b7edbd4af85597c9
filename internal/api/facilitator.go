package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

type createGroupRequest struct {
	Name     string `json:"name"`
	GoalText string `json:"goal_text"`
}

type rejectGroupRequest struct {
	GoalText string `json:"goal_text"`
}

type groupResponse struct {
	Group *domain.Group     `json:"group"`
	Steps []domain.GoalStep `json:"steps,omitempty"`
}

// CreateGroup creates a group with a pending goal interpretation. The group
// cannot be joined until the interpretation is confirmed.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, steps, err := h.svc.CreateGroup(r.Context(), req.Name, req.GoalText)
	if err != nil {
		slog.Warn("Failed to create group", "error", err)
		serviceError(w, err)
		return
	}

	slog.Info("Group created", "group_id", group.ID, "goal_kind", group.GoalKind)
	JSON(w, http.StatusCreated, groupResponse{Group: group, Steps: steps})
}

// GetGroup returns a group with its interpreted steps.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	group, err := h.repo.GetGroup(r.Context(), groupID)
	if err != nil {
		serviceError(w, err)
		return
	}
	steps, err := h.repo.ListGroupSteps(r.Context(), groupID)
	if err != nil {
		serviceError(w, err)
		return
	}

	JSON(w, http.StatusOK, groupResponse{Group: group, Steps: steps})
}

// ConfirmGroup accepts the goal interpretation and opens the group for joining.
func (h *Handler) ConfirmGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	if err := h.svc.ConfirmGroup(r.Context(), groupID); err != nil {
		serviceError(w, err)
		return
	}

	slog.Info("Group interpretation confirmed", "group_id", groupID)
	JSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// RejectGroup re-interprets an unconfirmed group with revised goal text.
func (h *Handler) RejectGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req rejectGroupRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, steps, err := h.svc.RejectGroup(r.Context(), groupID, req.GoalText)
	if err != nil {
		serviceError(w, err)
		return
	}

	slog.Info("Group re-interpreted", "group_id", groupID, "goal_kind", group.GoalKind)
	JSON(w, http.StatusOK, groupResponse{Group: group, Steps: steps})
}

// ListSessions returns a group's sessions, alert-bearing sessions first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	if _, err := h.repo.GetGroup(r.Context(), groupID); err != nil {
		serviceError(w, err)
		return
	}

	sessions, err := h.repo.ListSessions(r.Context(), groupID)
	if err != nil {
		serviceError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*domain.ParticipantSession{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// ResolveAlert marks an alert resolved. Idempotent.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	alert, err := h.svc.ResolveAlert(r.Context(), alertID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("Failed to resolve alert", "error", err, "alert_id", alertID)
		}
		serviceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"alert": alert})
}
