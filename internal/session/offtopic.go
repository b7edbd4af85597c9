package session

import (
	"context"
	"fmt"

	"github.com/m-urubek/scio--progress-path/internal/domain"
)

// applyOffTopicVerdict drives the warning-to-alert escalation for one turn.
//
// States per session: Clean (counter 0), Warned (counter 1), Escalated
// (counter >= 2 with an open OffTopic alert). An on-topic verdict resets the
// counter but never resolves an open alert; resolution is a facilitator
// action. The counter and the alert record are independent axes: after a
// resolution, a counter still >= 2 with no open alert means the cycle
// restarts at Warned rather than escalating immediately.
func (s *Service) applyOffTopicVerdict(ctx context.Context, sess *domain.ParticipantSession, offTopic bool) (*domain.Alert, bool, error) {
	if !offTopic {
		if sess.OffTopicCount > 0 {
			if err := s.repo.SetOffTopicCount(ctx, sess.ID, 0); err != nil {
				return nil, false, fmt.Errorf("reset off-topic counter: %w", err)
			}
		}
		return nil, false, nil
	}

	hasOpen, err := s.repo.HasUnresolvedAlert(ctx, sess.ID, domain.AlertOffTopic)
	if err != nil {
		return nil, false, fmt.Errorf("check off-topic alert: %w", err)
	}

	if !hasOpen && sess.OffTopicCount >= 2 {
		// The previous escalation was resolved; one fresh warning before the
		// next alert.
		if err := s.repo.SetOffTopicCount(ctx, sess.ID, 1); err != nil {
			return nil, false, fmt.Errorf("restart off-topic cycle: %w", err)
		}
		return nil, false, nil
	}

	count, err := s.repo.IncrementOffTopic(ctx, sess.ID)
	if err != nil {
		return nil, false, fmt.Errorf("increment off-topic counter: %w", err)
	}
	if count < 2 {
		return nil, false, nil
	}

	// Idempotent: an already-open alert makes this a no-op, which also keeps
	// concurrent turns from doubling up.
	alert, created, err := s.repo.CreateAlertIfNone(ctx, sess.ID, domain.AlertOffTopic)
	if err != nil {
		return nil, false, fmt.Errorf("create off-topic alert: %w", err)
	}
	return alert, created, nil
}
