// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/m-urubek/scio--progress-path/internal/domain"
)

// Repository defines the interface for persisting groups, sessions, messages
// and alerts. It is the sole writer of durable state: every mutation below
// enforces its own invariant (monotonic progress, single open alert per kind,
// append-only messages) so callers never need field-level writes.
type Repository interface {
	// CreateGroup persists a new unconfirmed group with its interpreted steps.
	CreateGroup(ctx context.Context, group *domain.Group, steps []string) error

	// GetGroup retrieves a group by ID. Returns ErrNotFound if absent.
	GetGroup(ctx context.Context, groupID string) (*domain.Group, error)

	// GetGroupByJoinToken retrieves a group by its join token.
	GetGroupByJoinToken(ctx context.Context, token string) (*domain.Group, error)

	// ConfirmGroup marks a group's interpretation as confirmed. Idempotent.
	ConfirmGroup(ctx context.Context, groupID string) error

	// ReinterpretGroup replaces an unconfirmed group's goal text, kind and
	// steps. Returns ErrGroupConfirmed if the group was already confirmed.
	ReinterpretGroup(ctx context.Context, groupID, goalText string, kind domain.GoalKind, steps []string) error

	// ListGroupSteps returns a group's ordered step descriptions.
	ListGroupSteps(ctx context.Context, groupID string) ([]domain.GoalStep, error)

	// CreateSession creates a participant session. Returns ErrNicknameTaken
	// when the nickname is already used (case-insensitively) in the group.
	CreateSession(ctx context.Context, session *domain.ParticipantSession) error

	// GetSession retrieves a session by ID. Returns ErrNotFound if absent.
	GetSession(ctx context.Context, sessionID string) (*domain.ParticipantSession, error)

	// GetSessionByDevice retrieves the session bound to a device within a
	// group, or nil if the device has never joined.
	GetSessionByDevice(ctx context.Context, groupID, deviceToken string) (*domain.ParticipantSession, error)

	// ListSessions returns a group's sessions, alert-bearing sessions first,
	// then by most recent activity.
	ListSessions(ctx context.Context, groupID string) ([]*domain.ParticipantSession, error)

	// TouchActivity records participant activity: sets last_activity_at and
	// clears any pending inactivity-warning marker.
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error

	// ApplyProgress commits a proposed absolute progress value. Values not
	// exceeding the stored progress are silently ignored. Reaching the
	// terminal value sets completed in the same statement. Reports whether
	// the value was applied and whether completion newly occurred.
	ApplyProgress(ctx context.Context, sessionID string, value int) (applied, completedNow bool, err error)

	// IncrementOffTopic bumps the consecutive off-topic counter and returns
	// the new value.
	IncrementOffTopic(ctx context.Context, sessionID string) (int, error)

	// SetOffTopicCount overwrites the consecutive off-topic counter.
	SetOffTopicCount(ctx context.Context, sessionID string, count int) error

	// AppendMessage persists a message. Messages are append-only.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// SetMessageVerdict records the classification of a participant message.
	SetMessageVerdict(ctx context.Context, messageID string, offTopic, contributor bool) error

	// ListMessages returns a session's messages in conversation order.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// ListKeyMessages returns the participant messages flagged as material
	// progress contributors, in conversation order.
	ListKeyMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// CreateAlertIfNone creates an unresolved alert of the given kind unless
	// one is already open for the session. Returns the alert and whether a
	// new one was created; an already-open alert is a no-op, not an error.
	CreateAlertIfNone(ctx context.Context, sessionID string, kind domain.AlertKind) (*domain.Alert, bool, error)

	// HasUnresolvedAlert reports whether an open alert of the given kind
	// exists for the session.
	HasUnresolvedAlert(ctx context.Context, sessionID string, kind domain.AlertKind) (bool, error)

	// GetAlert retrieves an alert by ID. Returns ErrNotFound if absent.
	GetAlert(ctx context.Context, alertID string) (*domain.Alert, error)

	// ResolveAlert marks an alert resolved. Resolving an already-resolved
	// alert is a no-op. Reports whether resolution newly occurred.
	ResolveAlert(ctx context.Context, alertID string, at time.Time) (bool, *domain.Alert, error)

	// GetSilentSessions returns non-completed sessions with no open
	// inactivity alert whose silence started at or before the cutoff.
	// Filtering happens in the store, not in memory.
	GetSilentSessions(ctx context.Context, cutoff time.Time) ([]*domain.ParticipantSession, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
