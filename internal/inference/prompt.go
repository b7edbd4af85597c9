package inference

import (
	"fmt"
	"strings"

	"github.com/m-urubek/scio--progress-path/internal/domain"
)

const (
	// maxVerbatimHistory is how many messages beyond which the older portion
	// of the conversation is condensed instead of sent in full.
	maxVerbatimHistory = 50
	// verbatimTail is how many recent messages are always sent verbatim.
	verbatimTail = 40
	// digestBodyLen is how much of each condensed message body is kept.
	digestBodyLen = 160
)

const evaluateSystemPrompt = "You evaluate one turn of a guided learning conversation. " +
	"Given the group's goal, its steps, the participant's current progress and the " +
	"conversation, produce guidance for the participant's next move and classify the " +
	"latest participant message. Report progress as an absolute value from 0 to 100, " +
	"never below the current value. A message that contains any on-topic substance at " +
	"all must be classified on-topic, even when mixed with unrelated content. Mark " +
	"significant_contribution only when the message itself materially advanced the goal."

func buildEvaluatePrompt(req EvaluateRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal (%s): %s\n", req.GoalKind, req.GoalText)
	if len(req.Steps) > 0 {
		b.WriteString("Steps:\n")
		for i, step := range req.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	fmt.Fprintf(&b, "Current progress: %d/100\n", req.Progress)
	fmt.Fprintf(&b, "Consecutive off-topic messages so far: %d\n\n", req.OffTopicCount)

	writeHistory(&b, req.History)

	b.WriteString("\nEvaluate the last participant message.")
	return b.String()
}

// writeHistory renders the conversation, condensing the older portion of a
// long transcript while keeping the most recent messages verbatim.
func writeHistory(b *strings.Builder, history []HistoryEntry) {
	if len(history) <= maxVerbatimHistory {
		b.WriteString("Conversation:\n")
		for _, entry := range history {
			writeEntry(b, entry, 0)
		}
		return
	}

	cut := len(history) - verbatimTail
	fmt.Fprintf(b, "Condensed earlier conversation (%d messages, truncated):\n", cut)
	for _, entry := range history[:cut] {
		writeEntry(b, entry, digestBodyLen)
	}
	b.WriteString("\nRecent conversation:\n")
	for _, entry := range history[cut:] {
		writeEntry(b, entry, 0)
	}
}

func writeEntry(b *strings.Builder, entry HistoryEntry, truncate int) {
	body := entry.Body
	if truncate > 0 && len(body) > truncate {
		body = body[:truncate] + "..."
	}
	fmt.Fprintf(b, "[%s] %s\n", senderLabel(entry.Sender), body)
}

func senderLabel(sender domain.SenderKind) string {
	switch sender {
	case domain.SenderParticipant:
		return "participant"
	case domain.SenderAssistant:
		return "assistant"
	default:
		return "system"
	}
}
