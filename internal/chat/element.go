// Package chat holds the display-ready conversation model: the deduplicated
// Element derived from raw events and historical messages, and the ordered
// Cache that stores them.
package chat

import "time"

// ElementType identifies the content variant of an Element.
type ElementType string

const (
	UserInput         ElementType = "userInput"
	AssistantText     ElementType = "assistantText"
	ToolCall          ElementType = "toolCall"
	ToolResult        ElementType = "toolResult"
	Diff              ElementType = "diff"
	Thinking          ElementType = "thinking"
	Interrupted       ElementType = "interrupted"
	ContextCompaction ElementType = "contextCompaction"
)

// ToolStatus is the lifecycle state of a tool call.
type ToolStatus string

const (
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// Element is the canonical de-duplicated unit of conversation history.
//
// ID is globally unique within a session's element set; construction rules
// (message uuid + block index, or tool-use id, or tool-use id + "-result")
// guarantee that the same logical item produces the same id whether it
// arrives via the real-time stream or a history page.
type Element struct {
	ID        string
	Type      ElementType
	Timestamp time.Time

	// Text carries the body for userInput, assistantText, thinking, and the
	// user-facing summary of a contextCompaction boundary.
	Text string

	// Tool fields (toolCall, toolResult, diff).
	ToolName  string
	ToolUseID string
	ToolInput string
	Status    ToolStatus
	Result    string
	IsError   bool

	// Diff fields.
	Path  string
	Patch string
}
