package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp is an ISO-8601 timestamp that tolerates the shapes different host
// versions emit: with or without fractional seconds, and with or without an
// explicit zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp string.
func ParseTimestamp(raw string) (Timestamp, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Timestamp{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// MessageRole identifies who produced a session message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ContentBlock is one structured block inside a session message.
//
// Block types: text, tool_use, tool_result, thinking. Which fields are
// populated depends on Type.
type ContentBlock struct {
	// Type identifies the block kind.
	Type string `json:"type"`
	// Text is the block text (type "text").
	Text string `json:"text,omitempty"`
	// Thinking is the reasoning text (type "thinking").
	Thinking string `json:"thinking,omitempty"`
	// ID is the tool-use id (type "tool_use").
	ID string `json:"id,omitempty"`
	// Name is the tool name (type "tool_use").
	Name string `json:"name,omitempty"`
	// Input is the tool input payload (type "tool_use").
	Input json.RawMessage `json:"input,omitempty"`
	// ToolUseID back-references the tool call (type "tool_result").
	ToolUseID string `json:"tool_use_id,omitempty"`
	// Content is the tool result payload (type "tool_result").
	Content json.RawMessage `json:"content,omitempty"`
	// IsError marks failed tool results.
	IsError bool `json:"is_error,omitempty"`
}

// Block type tags.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
)

// SessionMessage is one persisted conversation message, as returned by the
// history API and embedded in real-time message events.
type SessionMessage struct {
	// UUID is the stable message id.
	UUID string `json:"uuid"`
	// Type is the message role.
	Type MessageRole `json:"type"`
	// Timestamp is the message time (ISO-8601, fractional seconds optional).
	Timestamp Timestamp `json:"timestamp"`
	// IsContextCompaction marks a summarization-boundary message. The user
	// flavor carries the visible summary; the system flavor is the paired
	// server-side marker.
	IsContextCompaction bool `json:"is_context_compaction,omitempty"`
	// StopReason is the terminal stop reason of an assistant message. Empty
	// while the message is still streaming.
	StopReason string `json:"stop_reason,omitempty"`
	// Content is the ordered list of content blocks.
	Content []ContentBlock `json:"content"`
}

// HasThinking reports whether any content block is a thinking block.
func (m *SessionMessage) HasThinking() bool {
	for _, b := range m.Content {
		if b.Type == BlockThinking {
			return true
		}
	}
	return false
}

// ValidateContentBlocks ensures each block has a non-empty type.
func ValidateContentBlocks(blocks []ContentBlock) error {
	for i, block := range blocks {
		if block.Type == "" {
			return fmt.Errorf("content block %d missing type", i)
		}
	}
	return nil
}
