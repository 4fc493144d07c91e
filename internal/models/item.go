// Package models contains shared types for the agent-rollout project:
// the rollout record union, conversation response items, and the
// categorized error type used across the replay engine.
package models

import "strings"

// ResponseItemType discriminates the variants of ResponseItem.
type ResponseItemType string

const (
	ItemTypeUserMessage        ResponseItemType = "user_message"
	ItemTypeAssistantMessage   ResponseItemType = "assistant_message"
	ItemTypeFunctionCall       ResponseItemType = "function_call"
	ItemTypeFunctionCallOutput ResponseItemType = "function_call_output"
)

// FunctionCallOutputPayload carries the result of a tool call.
type FunctionCallOutputPayload struct {
	Content string `json:"content"`
	Success *bool  `json:"success,omitempty"`
}

// ResponseItem is one turn-level conversation entry. The replay engine
// treats it as opaque beyond "it belongs in history" and "it may open a
// new user turn".
//
// Variant field mapping:
//
//	UserMessage:        Content
//	AssistantMessage:   Content
//	FunctionCall:       CallID, Name, Arguments
//	FunctionCallOutput: CallID, Output
type ResponseItem struct {
	Type ResponseItemType `json:"type"`

	// UserMessage / AssistantMessage fields
	Content string `json:"content,omitempty"`

	// FunctionCall fields
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"` // raw JSON string

	// FunctionCallOutput fields (CallID is shared with FunctionCall)
	Output *FunctionCallOutputPayload `json:"output,omitempty"`

	// TurnID links the item to the turn that produced it, when known.
	TurnID string `json:"turn_id,omitempty"`
}

// SummaryPrefix is the sentinel line that opens every compaction summary
// message. Summary messages are stored as user messages but must not be
// mistaken for real user input.
const SummaryPrefix = "Here is a summary of the conversation so far, to bring you up to speed:"

// IsSummaryMessage reports whether a user message body is a compaction
// summary rather than real user input.
func IsSummaryMessage(content string) bool {
	return strings.HasPrefix(content, SummaryPrefix+"\n") || content == SummaryPrefix
}

// IsUserTurnBoundary reports whether an item opens a new user turn.
// Compaction summaries are stored with the user role but do not start
// turns.
func IsUserTurnBoundary(item ResponseItem) bool {
	return item.Type == ItemTypeUserMessage && !IsSummaryMessage(item.Content)
}

// RolloutItemType discriminates the variants of RolloutItem.
type RolloutItemType string

const (
	RolloutItemResponse    RolloutItemType = "response"
	RolloutItemRolledBack  RolloutItemType = "rolled_back"
	RolloutItemCompacted   RolloutItemType = "compacted"
	RolloutItemTurnContext RolloutItemType = "turn_context"
	RolloutItemSessionMeta RolloutItemType = "session_meta"
)

// RolledBackItem records that the user discarded the Count most-recent
// user turns. Multiple markers accumulate.
type RolledBackItem struct {
	Count int `json:"count"`
}

// CompactedItem records that history older than this marker was compacted.
// When ReplacementHistory is non-nil it is the literal replacement for
// everything older; when nil only the summary was persisted and the
// original items must be re-derived from the log itself. An empty but
// non-nil list is a valid literal replacement (the base becomes empty),
// so the field must keep nil and empty distinct on the wire.
type CompactedItem struct {
	SummaryText        string         `json:"summary_text"`
	ReplacementHistory []ResponseItem `json:"replacement_history"`
}

// TurnContextItem carries the per-turn context in effect when it was
// written. The most recent one going backward through the log is
// authoritative at resume time.
type TurnContextItem struct {
	Model           string `json:"model"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
	Cwd             string `json:"cwd,omitempty"`
	ApprovalPolicy  string `json:"approval_policy,omitempty"`
	SandboxPolicy   string `json:"sandbox_policy,omitempty"`
	Summary         string `json:"summary,omitempty"`
}

// SessionMetaItem is the head-of-file record identifying a rollout. It is
// metadata for session listings and never enters conversation history.
type SessionMetaItem struct {
	ID         string `json:"id"`
	Cwd        string `json:"cwd,omitempty"`
	Originator string `json:"originator,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// RolloutItem is one tagged record in the rollout log. Exactly one of the
// variant pointers matching Type is populated.
type RolloutItem struct {
	Type RolloutItemType `json:"type"`

	Response    *ResponseItem    `json:"response,omitempty"`
	RolledBack  *RolledBackItem  `json:"rolled_back,omitempty"`
	Compacted   *CompactedItem   `json:"compacted,omitempty"`
	TurnContext *TurnContextItem `json:"turn_context,omitempty"`
	SessionMeta *SessionMetaItem `json:"session_meta,omitempty"`
}

// NewResponseRolloutItem wraps a response item as a rollout record.
func NewResponseRolloutItem(item ResponseItem) RolloutItem {
	return RolloutItem{Type: RolloutItemResponse, Response: &item}
}

// NewRolledBackRolloutItem wraps a rollback marker as a rollout record.
func NewRolledBackRolloutItem(count int) RolloutItem {
	return RolloutItem{Type: RolloutItemRolledBack, RolledBack: &RolledBackItem{Count: count}}
}

// NewCompactedRolloutItem wraps a compaction marker as a rollout record.
func NewCompactedRolloutItem(summaryText string, replacement []ResponseItem) RolloutItem {
	return RolloutItem{Type: RolloutItemCompacted, Compacted: &CompactedItem{
		SummaryText:        summaryText,
		ReplacementHistory: replacement,
	}}
}

// NewTurnContextRolloutItem wraps a turn context as a rollout record.
func NewTurnContextRolloutItem(tc TurnContextItem) RolloutItem {
	return RolloutItem{Type: RolloutItemTurnContext, TurnContext: &tc}
}

// NewSessionMetaRolloutItem wraps session metadata as a rollout record.
func NewSessionMetaRolloutItem(meta SessionMetaItem) RolloutItem {
	return RolloutItem{Type: RolloutItemSessionMeta, SessionMeta: &meta}
}

// UserMessage builds a user message response item.
func UserMessage(content string) ResponseItem {
	return ResponseItem{Type: ItemTypeUserMessage, Content: content}
}

// AssistantMessage builds an assistant message response item.
func AssistantMessage(content string) ResponseItem {
	return ResponseItem{Type: ItemTypeAssistantMessage, Content: content}
}
