// Package inference adapts the external classification/guidance service.
package inference

import (
	"context"

	"github.com/m-urubek/scio--progress-path/internal/domain"
)

// Client is the boundary to the external inference provider. Both calls are
// slow and unreliable; callers bound them with a timeout and treat any error
// as a single failure signal.
type Client interface {
	// Interpret turns free-form goal text into a goal kind and ordered steps.
	Interpret(ctx context.Context, goalText string) (*Interpretation, error)

	// Evaluate classifies one participant turn and produces guidance.
	Evaluate(ctx context.Context, req EvaluateRequest) (*Verdict, error)
}

// Interpretation is the structured reading of a facilitator's goal text.
type Interpretation struct {
	Kind  domain.GoalKind
	Steps []string
}

// HistoryEntry is one conversation message passed to the evaluator.
type HistoryEntry struct {
	Sender domain.SenderKind
	Body   string
}

// EvaluateRequest carries the full per-turn context for the evaluator.
type EvaluateRequest struct {
	GoalText      string
	GoalKind      domain.GoalKind
	Steps         []string
	Progress      int // current 0-100
	OffTopicCount int
	History       []HistoryEntry // last entry is the message under evaluation
}

// Verdict is the evaluator's structured output for one turn. Progress is an
// absolute 0-100 value; the core never trusts it to be non-decreasing.
type Verdict struct {
	Guidance                string
	Progress                int
	OffTopic                bool
	SignificantContribution bool
}
