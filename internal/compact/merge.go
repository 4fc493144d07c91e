// Package compact merges a compaction summary with the user messages it
// replaced into a single consistent history prefix.
package compact

import (
	"github.com/mfateev/agent-rollout/internal/models"
	"github.com/mfateev/agent-rollout/internal/truncate"
)

// DefaultMaxUserMessageTokens bounds how much recovered user text is
// carried into a compacted base.
const DefaultMaxUserMessageTokens = 20_000

// MergePolicy controls which prior user messages seed a compacted base.
// The selection rule is a policy of this helper, not of the replay
// engine: newest messages are kept first until the token budget runs
// out, and the message that overflows the budget is tail-truncated.
type MergePolicy struct {
	MaxUserMessageTokens int
}

// DefaultMergePolicy returns the standard selection policy.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{MaxUserMessageTokens: DefaultMaxUserMessageTokens}
}

// CollectUserMessages extracts real user message texts from items,
// skipping compaction summaries.
func CollectUserMessages(items []models.ResponseItem) []string {
	var messages []string
	for _, item := range items {
		if item.Type != models.ItemTypeUserMessage || item.Content == "" {
			continue
		}
		if models.IsSummaryMessage(item.Content) {
			continue
		}
		messages = append(messages, item.Content)
	}
	return messages
}

// FormatSummaryText prepends the summary sentinel so readers can tell
// summary messages from real user input.
func FormatSummaryText(summary string) string {
	return models.SummaryPrefix + "\n" + summary
}

// BuildCompactedHistory produces the replacement prefix for compacted
// history: the budgeted selection of prior user messages in their
// original order, followed by the summary as a final user message.
func BuildCompactedHistory(userMessages []string, summaryText string, policy MergePolicy) []models.ResponseItem {
	var selected []string
	if policy.MaxUserMessageTokens > 0 {
		remaining := policy.MaxUserMessageTokens
		for i := len(userMessages) - 1; i >= 0 && remaining > 0; i-- {
			message := userMessages[i]
			tokens := truncate.ApproxTokenCount(message)
			if tokens <= remaining {
				selected = append(selected, message)
				remaining -= tokens
				continue
			}
			selected = append(selected, truncate.TruncateText(message, truncate.Tokens(remaining)))
			break
		}
		// Selection walked newest-first; restore original order.
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}

	history := make([]models.ResponseItem, 0, len(selected)+1)
	for _, message := range selected {
		history = append(history, models.UserMessage(message))
	}

	if summaryText == "" {
		summaryText = "(no summary available)"
	}
	history = append(history, models.UserMessage(summaryText))
	return history
}
