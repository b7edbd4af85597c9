package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m-urubek/scio--progress-path/internal/domain"
	"github.com/m-urubek/scio--progress-path/internal/inference"
	"github.com/m-urubek/scio--progress-path/internal/notify"
)

// AssistantErrorMessage is the fixed, user-safe reply persisted when the
// inference gateway fails. The participant's own message is already saved and
// they may retry immediately.
const AssistantErrorMessage = "I couldn't process that just now - your message is saved, please try again in a moment."

// TurnResult reports the outcome of one processed turn.
type TurnResult struct {
	ParticipantMessage *domain.Message
	AssistantMessage   *domain.Message
	Progress           int
	Completed          bool
	GatewayFailed      bool
}

// ProcessTurn orchestrates one participant message end to end: persistence,
// inference, state-machine updates, alert creation and fan-out.
//
// The participant's message is persisted before the inference call and never
// rolled back. On gateway failure only the fixed assistant error message is
// added; progress, off-topic state and message classification are untouched.
func (s *Service) ProcessTurn(ctx context.Context, sessionID, body string) (*TurnResult, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Completed {
		return nil, ErrSessionCompleted
	}

	group, err := s.repo.GetGroup(ctx, sess.GroupID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	participantMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Body:      body,
		Sender:    domain.SenderParticipant,
		CreatedAt: now,
	}
	if err := s.repo.AppendMessage(ctx, participantMsg); err != nil {
		return nil, fmt.Errorf("persist participant message: %w", err)
	}

	// A message arriving while an inactivity alert is open is worth a
	// transient dashboard notice, independent of whether the facilitator
	// later resolves the alert.
	if open, alertErr := s.repo.HasUnresolvedAlert(ctx, sessionID, domain.AlertInactivity); alertErr != nil {
		slog.Warn("Failed to check inactivity alert", "error", alertErr, "session_id", sessionID)
	} else if open {
		s.hub.PublishGroup(group.ID, notify.Event{
			Kind:      notify.EventActivityResumed,
			SessionID: sessionID,
			Nickname:  sess.Nickname,
		})
	}

	// Sending a message is evidence of engagement even if the assistant
	// cannot respond, so activity is recorded before the inference call.
	if err := s.repo.TouchActivity(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	s.hub.Publish(group.ID, sessionID, notify.Event{
		Kind:      notify.EventNewMessage,
		SessionID: sessionID,
		Nickname:  sess.Nickname,
		Message:   participantMsg,
	})

	verdict, err := s.evaluate(ctx, group, sess)
	if err != nil {
		slog.Warn("Inference gateway failed, taking error path",
			"error", err, "session_id", sessionID)
		return s.failTurn(ctx, group, sess, participantMsg)
	}

	return s.commitVerdict(ctx, group, sess, participantMsg, verdict)
}

// failTurn is the gateway-failure path: a fixed assistant error message is
// persisted and fanned out, and nothing else changes.
func (s *Service) failTurn(ctx context.Context, group *domain.Group, sess *domain.ParticipantSession, participantMsg *domain.Message) (*TurnResult, error) {
	errMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Body:      AssistantErrorMessage,
		Sender:    domain.SenderAssistant,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, errMsg); err != nil {
		return nil, fmt.Errorf("persist assistant error message: %w", err)
	}

	s.hub.Publish(group.ID, sess.ID, notify.Event{
		Kind:      notify.EventNewMessage,
		SessionID: sess.ID,
		Nickname:  sess.Nickname,
		Message:   errMsg,
	})

	return &TurnResult{
		ParticipantMessage: participantMsg,
		AssistantMessage:   errMsg,
		Progress:           sess.Progress,
		GatewayFailed:      true,
	}, nil
}

// commitVerdict applies a successful gateway verdict: assistant message,
// message classification, off-topic escalation, progress, then fan-out in
// message/alert/progress order.
func (s *Service) commitVerdict(ctx context.Context, group *domain.Group, sess *domain.ParticipantSession, participantMsg *domain.Message, verdict *inference.Verdict) (*TurnResult, error) {
	assistantMsg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Body:      verdict.Guidance,
		Sender:    domain.SenderAssistant,
		CreatedAt: time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if err := s.repo.SetMessageVerdict(ctx, participantMsg.ID, verdict.OffTopic, verdict.SignificantContribution); err != nil {
		return nil, fmt.Errorf("record message verdict: %w", err)
	}
	participantMsg.OffTopic = verdict.OffTopic
	participantMsg.Contributor = verdict.SignificantContribution

	alert, alertCreated, err := s.applyOffTopicVerdict(ctx, sess, verdict.OffTopic)
	if err != nil {
		return nil, err
	}

	applied, completedNow, err := s.repo.ApplyProgress(ctx, sess.ID, verdict.Progress)
	if err != nil {
		return nil, fmt.Errorf("apply progress: %w", err)
	}

	progress := sess.Progress
	if applied {
		progress = verdict.Progress
		if progress > domain.TerminalProgress {
			progress = domain.TerminalProgress
		}
	}

	s.hub.Publish(group.ID, sess.ID, notify.Event{
		Kind:      notify.EventNewMessage,
		SessionID: sess.ID,
		Nickname:  sess.Nickname,
		Message:   assistantMsg,
	})
	if alertCreated {
		s.hub.Publish(group.ID, sess.ID, notify.Event{
			Kind:      notify.EventAlertRaised,
			SessionID: sess.ID,
			Nickname:  sess.Nickname,
			AlertID:   alert.ID,
			AlertKind: alert.Kind,
		})
	}
	if applied {
		s.hub.Publish(group.ID, sess.ID, notify.Event{
			Kind:      notify.EventProgressUpdate,
			SessionID: sess.ID,
			Nickname:  sess.Nickname,
			Progress: &notify.ProgressUpdate{
				Value:     progress,
				Terminal:  domain.TerminalProgress,
				Completed: completedNow,
			},
		})
	}

	return &TurnResult{
		ParticipantMessage: participantMsg,
		AssistantMessage:   assistantMsg,
		Progress:           progress,
		Completed:          completedNow,
	}, nil
}

// evaluate gathers the full turn context and calls the inference gateway.
func (s *Service) evaluate(ctx context.Context, group *domain.Group, sess *domain.ParticipantSession) (*inference.Verdict, error) {
	if s.client == nil {
		return nil, ErrInferenceUnavailable
	}

	steps, err := s.repo.ListGroupSteps(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	descriptions := make([]string, len(steps))
	for i, step := range steps {
		descriptions[i] = step.Description
	}

	messages, err := s.repo.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	history := make([]inference.HistoryEntry, len(messages))
	for i, msg := range messages {
		history[i] = inference.HistoryEntry{Sender: msg.Sender, Body: msg.Body}
	}

	verdict, err := s.client.Evaluate(ctx, inference.EvaluateRequest{
		GoalText:      group.GoalText,
		GoalKind:      group.GoalKind,
		Steps:         descriptions,
		Progress:      sess.Progress,
		OffTopicCount: sess.OffTopicCount,
		History:       history,
	})
	if err != nil {
		return nil, err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	return verdict, nil
}
