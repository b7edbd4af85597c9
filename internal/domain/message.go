package domain

import (
	"time"
)

// SenderKind identifies who produced a message.
type SenderKind string

const (
	SenderParticipant SenderKind = "participant"
	SenderAssistant   SenderKind = "assistant"
	SenderSystem      SenderKind = "system"
)

// Message is one entry of a session's conversation. Append-only; ordering is
// by timestamp with ties broken by insertion order.
type Message struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Body        string     `json:"body"`
	Sender      SenderKind `json:"sender"`
	Contributor bool       `json:"contributor"` // materially advanced progress
	OffTopic    bool       `json:"off_topic"`   // meaningful only for participant messages
	CreatedAt   time.Time  `json:"created_at"`
}
