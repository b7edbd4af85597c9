package domain

import (
	"time"
)

// ParticipantSession tracks one participant's progress inside a group.
// One session exists per device per group; sessions are never deleted.
type ParticipantSession struct {
	ID                 string     `json:"id"`
	GroupID            string     `json:"group_id"`
	Nickname           string     `json:"nickname"`
	DeviceToken        string     `json:"-"`
	Progress           int        `json:"progress"` // 0-100, monotonically non-decreasing
	Completed          bool       `json:"completed"`
	OffTopicCount      int        `json:"off_topic_count"`
	ActiveAlert        bool       `json:"active_alert"`
	ActiveAlertKind    *AlertKind `json:"active_alert_kind,omitempty"`
	LastActivityAt     *time.Time `json:"last_activity_at,omitempty"` // nil until first message
	JoinedAt           time.Time  `json:"joined_at"`
	InactivityWarnedAt *time.Time `json:"-"`
}

// SilentSince returns the instant from which the session's silence is measured.
func (s *ParticipantSession) SilentSince() time.Time {
	if s.LastActivityAt != nil {
		return *s.LastActivityAt
	}
	return s.JoinedAt
}

// SilentFor reports how long the session has been without participant activity.
func (s *ParticipantSession) SilentFor(now time.Time) time.Duration {
	return now.Sub(s.SilentSince())
}
