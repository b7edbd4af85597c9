// Package domain contains core domain types for the progress-path application.
package domain

import (
	"time"
)

// GoalKind classifies how progress toward a group's goal is measured.
type GoalKind string

const (
	// GoalBinary is a single completion event: progress is 0 or 100.
	GoalBinary GoalKind = "binary"
	// GoalPercentage is progress expressed 0-100 over discrete steps.
	GoalPercentage GoalKind = "percentage"
)

// TerminalProgress is the progress value at which a session is complete.
// Both goal kinds are expressed on the 0-100 scale.
const TerminalProgress = 100

// MaxGoalTextLen is the maximum accepted length of a goal description.
const MaxGoalTextLen = 500

// Group represents a facilitator-owned learning goal that participants join.
// Immutable after creation except the confirmation flag and a one-time
// re-interpretation while still unconfirmed.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	GoalText  string    `json:"goal_text"`
	GoalKind  GoalKind  `json:"goal_kind"`
	StepCount *int      `json:"step_count,omitempty"` // nil for binary goals
	Confirmed bool      `json:"confirmed"`
	JoinToken string    `json:"join_token"`
	CreatedAt time.Time `json:"created_at"`
}

// GoalStep is one ordered step of a percentage goal.
type GoalStep struct {
	GroupID     string `json:"group_id"`
	Position    int    `json:"position"`
	Description string `json:"description"`
}

// NormalizeGoalKind collapses a single-step interpretation to a binary goal.
// A percentage goal needs at least two steps to be meaningful.
func NormalizeGoalKind(kind GoalKind, steps []string) (GoalKind, []string) {
	if kind == GoalPercentage && len(steps) <= 1 {
		return GoalBinary, nil
	}
	if kind == GoalBinary {
		return GoalBinary, nil
	}
	return kind, steps
}
