// Package notify provides real-time state-change fan-out to observers.
package notify

import (
	"github.com/m-urubek/scio--progress-path/internal/domain"
)

// EventKind identifies a published state change.
type EventKind string

const (
	EventNewMessage      EventKind = "new_message"
	EventProgressUpdate  EventKind = "progress_update"
	EventAlertRaised     EventKind = "alert_raised"
	EventAlertResolved   EventKind = "alert_resolved"
	EventSessionJoined   EventKind = "session_joined"
	EventActivityResumed EventKind = "activity_resumed"
)

// ProgressUpdate reports a committed progress change.
type ProgressUpdate struct {
	Value     int  `json:"value"`
	Terminal  int  `json:"terminal"`
	Completed bool `json:"completed"`
}

// Event is one state-change notification. Consumers re-render from the latest
// state, so delivery is at-least-once and idempotent-safe.
type Event struct {
	Kind      EventKind       `json:"kind"`
	GroupID   string          `json:"group_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Nickname  string          `json:"nickname,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
	Progress  *ProgressUpdate `json:"progress,omitempty"`
	AlertID   string          `json:"alert_id,omitempty"`
	AlertKind domain.AlertKind `json:"alert_kind,omitempty"`
}
