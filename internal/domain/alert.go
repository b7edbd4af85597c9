package domain

import (
	"time"
)

// AlertKind classifies a disengagement alert.
type AlertKind string

const (
	AlertOffTopic   AlertKind = "off_topic"
	AlertInactivity AlertKind = "inactivity"
)

// Alert is a facilitator-visible disengagement signal for a session.
// At most one unresolved alert of a given kind exists per session.
type Alert struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Kind       AlertKind  `json:"kind"`
	Resolved   bool       `json:"resolved"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
