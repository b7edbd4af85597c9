package domain

import (
	"testing"
	"time"
)

func TestNormalizeGoalKind_SingleStepBecomesBinary(t *testing.T) {
	kind, steps := NormalizeGoalKind(GoalPercentage, []string{"finish the worksheet"})
	if kind != GoalBinary {
		t.Errorf("Expected binary kind, got %v", kind)
	}
	if steps != nil {
		t.Errorf("Expected nil steps for binary goal, got %v", steps)
	}
}

func TestNormalizeGoalKind_MultiStepStaysPercentage(t *testing.T) {
	kind, steps := NormalizeGoalKind(GoalPercentage, []string{"read", "summarize", "present"})
	if kind != GoalPercentage {
		t.Errorf("Expected percentage kind, got %v", kind)
	}
	if len(steps) != 3 {
		t.Errorf("Expected 3 steps, got %d", len(steps))
	}
}

func TestNormalizeGoalKind_BinaryDropsSteps(t *testing.T) {
	kind, steps := NormalizeGoalKind(GoalBinary, []string{"a", "b"})
	if kind != GoalBinary {
		t.Errorf("Expected binary kind, got %v", kind)
	}
	if steps != nil {
		t.Errorf("Expected nil steps, got %v", steps)
	}
}

func TestSilentSince(t *testing.T) {
	joined := time.Now().Add(-time.Hour)
	sess := &ParticipantSession{JoinedAt: joined}

	if got := sess.SilentSince(); !got.Equal(joined) {
		t.Errorf("Expected silence measured from join, got %v", got)
	}

	active := time.Now().Add(-5 * time.Minute)
	sess.LastActivityAt = &active
	if got := sess.SilentSince(); !got.Equal(active) {
		t.Errorf("Expected silence measured from last activity, got %v", got)
	}
}
