// Package session implements the session orchestration core: group lifecycle,
// turn processing, off-topic escalation and the inactivity watchdog.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/inference"
	"github.com/m-urubek/scio--progress-path/internal/notify"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

var (
	// ErrEmptyMessage indicates a blank message body.
	ErrEmptyMessage = errors.New("message body cannot be empty")

	// ErrEmptyNickname indicates a blank nickname on join.
	ErrEmptyNickname = errors.New("nickname cannot be empty")

	// ErrSessionCompleted indicates a message sent to a completed session.
	ErrSessionCompleted = errors.New("session already completed its goal")

	// ErrGroupNotConfirmed indicates a join attempt before the facilitator
	// confirmed the goal interpretation.
	ErrGroupNotConfirmed = errors.New("group interpretation not yet confirmed")

	// ErrGoalTooLong indicates goal text over the accepted length.
	ErrGoalTooLong = fmt.Errorf("goal text exceeds %d characters", domain.MaxGoalTextLen)

	// ErrEmptyGoal indicates blank goal text.
	ErrEmptyGoal = errors.New("goal text cannot be empty")

	// ErrInferenceUnavailable indicates the inference client is not configured.
	ErrInferenceUnavailable = errors.New("inference service is not available")
)

// Service orchestrates groups, participant sessions and turns. All durable
// state flows through the Repository; all observers are reached through the
// Hub.
type Service struct {
	repo   store.Repository
	client inference.Client
	hub    *notify.Hub
}

// NewService creates a new session service. A nil client disables AI features:
// group creation fails and turns take the gateway-failure path.
func NewService(repo store.Repository, client inference.Client, hub *notify.Hub) *Service {
	return &Service{
		repo:   repo,
		client: client,
		hub:    hub,
	}
}

// CreateGroup interprets the goal text and persists a new pending group. The
// group cannot be joined until the facilitator confirms the interpretation.
func (s *Service) CreateGroup(ctx context.Context, name, goalText string) (*domain.Group, []domain.GoalStep, error) {
	name = strings.TrimSpace(name)
	goalText = strings.TrimSpace(goalText)
	if goalText == "" {
		return nil, nil, ErrEmptyGoal
	}
	if len(goalText) > domain.MaxGoalTextLen {
		return nil, nil, ErrGoalTooLong
	}

	interp, err := s.interpret(ctx, goalText)
	if err != nil {
		return nil, nil, err
	}

	group := &domain.Group{
		ID:        uuid.NewString(),
		Name:      name,
		GoalText:  goalText,
		GoalKind:  interp.Kind,
		JoinToken: newJoinToken(),
		CreatedAt: time.Now(),
	}
	if interp.Kind == domain.GoalPercentage {
		n := len(interp.Steps)
		group.StepCount = &n
	}

	if err := s.repo.CreateGroup(ctx, group, interp.Steps); err != nil {
		return nil, nil, fmt.Errorf("create group: %w", err)
	}

	steps, err := s.repo.ListGroupSteps(ctx, group.ID)
	if err != nil {
		return nil, nil, err
	}
	return group, steps, nil
}

// ConfirmGroup accepts the goal interpretation, opening the group for joining.
func (s *Service) ConfirmGroup(ctx context.Context, groupID string) error {
	return s.repo.ConfirmGroup(ctx, groupID)
}

// RejectGroup re-interprets an unconfirmed group with revised goal text.
// Rejection may be repeated until the facilitator confirms.
func (s *Service) RejectGroup(ctx context.Context, groupID, revisedGoalText string) (*domain.Group, []domain.GoalStep, error) {
	revisedGoalText = strings.TrimSpace(revisedGoalText)
	if revisedGoalText == "" {
		return nil, nil, ErrEmptyGoal
	}
	if len(revisedGoalText) > domain.MaxGoalTextLen {
		return nil, nil, ErrGoalTooLong
	}

	interp, err := s.interpret(ctx, revisedGoalText)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repo.ReinterpretGroup(ctx, groupID, revisedGoalText, interp.Kind, interp.Steps); err != nil {
		return nil, nil, err
	}

	group, err := s.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.repo.ListGroupSteps(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	return group, steps, nil
}

// Join creates a participant session, or restores the existing one when the
// same device joins the same group again.
func (s *Service) Join(ctx context.Context, joinToken, nickname, deviceToken string) (*domain.ParticipantSession, bool, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, false, ErrEmptyNickname
	}
	if deviceToken == "" {
		return nil, false, errors.New("device token cannot be empty")
	}

	group, err := s.repo.GetGroupByJoinToken(ctx, joinToken)
	if err != nil {
		return nil, false, err
	}
	if !group.Confirmed {
		return nil, false, ErrGroupNotConfirmed
	}

	if existing, err := s.repo.GetSessionByDevice(ctx, group.ID, deviceToken); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	sess := &domain.ParticipantSession{
		ID:          uuid.NewString(),
		GroupID:     group.ID,
		Nickname:    nickname,
		DeviceToken: deviceToken,
		JoinedAt:    time.Now(),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrNicknameTaken) {
			// The same device may have raced a concurrent join; a device
			// collision restores, a nickname collision is the caller's to fix.
			if existing, devErr := s.repo.GetSessionByDevice(ctx, group.ID, deviceToken); devErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}

	s.hub.PublishGroup(group.ID, notify.Event{
		Kind:      notify.EventSessionJoined,
		SessionID: sess.ID,
		Nickname:  sess.Nickname,
	})
	return sess, false, nil
}

// ResolveAlert marks an alert resolved and fans out the resolution. Resolving
// an already-resolved alert is a no-op.
func (s *Service) ResolveAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	resolvedNow, alert, err := s.repo.ResolveAlert(ctx, alertID, time.Now())
	if err != nil {
		return nil, err
	}
	if !resolvedNow {
		return alert, nil
	}

	// Resolution restarts the escalation cycle: the next off-topic verdict
	// must produce a fresh warning, not an immediate alert. The counter axis
	// handles that in applyOffTopicVerdict; nothing to reset here.
	sess, err := s.repo.GetSession(ctx, alert.SessionID)
	if err != nil {
		return nil, err
	}
	s.hub.Publish(sess.GroupID, sess.ID, notify.Event{
		Kind:      notify.EventAlertResolved,
		SessionID: sess.ID,
		Nickname:  sess.Nickname,
		AlertID:   alert.ID,
		AlertKind: alert.Kind,
	})
	return alert, nil
}

func (s *Service) interpret(ctx context.Context, goalText string) (*inference.Interpretation, error) {
	if s.client == nil {
		return nil, ErrInferenceUnavailable
	}
	interp, err := s.client.Interpret(ctx, goalText)
	if err != nil {
		return nil, fmt.Errorf("interpret goal: %w", err)
	}
	return interp, nil
}

func newJoinToken() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in no state to serve.
		panic(fmt.Sprintf("generate join token: %v", err))
	}
	return hex.EncodeToString(buf)
}
