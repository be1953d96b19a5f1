package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lookout-sh/lookout/internal/wire"
)

// editToolNames are tools whose invocation is rendered as a diff element.
// Their tool results are synthetic (the diff already shows the outcome) and
// are dropped during history processing.
var editToolNames = map[string]struct{}{
	"Edit":         {},
	"MultiEdit":    {},
	"Write":        {},
	"NotebookEdit": {},
}

// IsEditTool reports whether a tool's calls are represented as diffs.
func IsEditTool(name string) bool {
	_, ok := editToolNames[name]
	return ok
}

// blockID builds the element id for the i-th content block of a message.
func blockID(messageUUID string, index int) string {
	return fmt.Sprintf("%s-%d", messageUUID, index)
}

// resultID builds the element id for a tool result from its tool-use id.
// Keying on the tool-use id (not the carrying message) makes the id stable
// across the real-time and history paths.
func resultID(toolUseID string) string {
	return toolUseID + "-result"
}

// ElementsFromMessage maps one session message to its display elements.
//
// Id rules: text/thinking blocks use message-uuid + block-index; tool calls
// use the tool-use id; tool results use tool-use id + "-result". A
// context-compaction user message yields a single compaction element; the
// paired system-side marker yields nothing.
func ElementsFromMessage(msg *wire.SessionMessage) []Element {
	if msg == nil {
		return nil
	}

	if msg.IsContextCompaction {
		if msg.Type != wire.RoleUser {
			// System-side boundary marker; exists only to delineate the
			// compaction server-side.
			return nil
		}
		return []Element{{
			ID:        msg.UUID + "-compaction",
			Type:      ContextCompaction,
			Timestamp: msg.Timestamp.Time,
			Text:      firstText(msg.Content),
		}}
	}

	var out []Element
	for i, block := range msg.Content {
		switch block.Type {
		case wire.BlockText:
			if strings.TrimSpace(block.Text) == "" {
				continue
			}
			elType := AssistantText
			if msg.Type == wire.RoleUser {
				elType = UserInput
			}
			out = append(out, Element{
				ID:        blockID(msg.UUID, i),
				Type:      elType,
				Timestamp: msg.Timestamp.Time,
				Text:      block.Text,
			})

		case wire.BlockThinking:
			if strings.TrimSpace(block.Thinking) == "" {
				continue
			}
			out = append(out, Element{
				ID:        blockID(msg.UUID, i),
				Type:      Thinking,
				Timestamp: msg.Timestamp.Time,
				Text:      block.Thinking,
			})

		case wire.BlockToolUse:
			id := block.ID
			if id == "" {
				id = blockID(msg.UUID, i)
			}
			if IsEditTool(block.Name) {
				out = append(out, Element{
					ID:        id,
					Type:      Diff,
					Timestamp: msg.Timestamp.Time,
					ToolName:  block.Name,
					ToolUseID: block.ID,
					Path:      inputPath(block.Input),
					Patch:     renderToolInput(block.Input),
				})
				continue
			}
			out = append(out, Element{
				ID:        id,
				Type:      ToolCall,
				Timestamp: msg.Timestamp.Time,
				ToolName:  block.Name,
				ToolUseID: block.ID,
				ToolInput: renderToolInput(block.Input),
				// History only records finished turns; the live status event
				// stream is what flips a call back to running.
				Status: ToolCompleted,
			})

		case wire.BlockToolResult:
			if block.ToolUseID == "" {
				continue
			}
			out = append(out, Element{
				ID:        resultID(block.ToolUseID),
				Type:      ToolResult,
				Timestamp: msg.Timestamp.Time,
				ToolUseID: block.ToolUseID,
				Result:    renderToolResult(block.Content),
				IsError:   block.IsError,
			})
		}
	}

	if msg.StopReason == "interrupted" || msg.StopReason == "aborted" {
		out = append(out, Element{
			ID:        msg.UUID + "-interrupted",
			Type:      Interrupted,
			Timestamp: msg.Timestamp.Time,
		})
	}
	return out
}

// ElementsFromPage maps one chronological history page to elements, dropping
// tool results whose tool call is represented as a diff element within the
// same page.
func ElementsFromPage(msgs []wire.SessionMessage) []Element {
	diffToolIDs := make(map[string]struct{})
	for _, msg := range msgs {
		if msg.IsContextCompaction {
			continue
		}
		for _, block := range msg.Content {
			if block.Type == wire.BlockToolUse && IsEditTool(block.Name) && block.ID != "" {
				diffToolIDs[block.ID] = struct{}{}
			}
		}
	}

	var out []Element
	for i := range msgs {
		for _, el := range ElementsFromMessage(&msgs[i]) {
			if el.Type == ToolResult {
				if _, synthetic := diffToolIDs[el.ToolUseID]; synthetic {
					continue
				}
			}
			out = append(out, el)
		}
	}
	return out
}

// ReversePage reorders a newest-first history page into chronological order
// in place.
func ReversePage(msgs []wire.SessionMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

// IsStreaming reports whether the session should display a streaming
// indicator given its most recent structured message: streaming iff the
// message has no terminal stop reason yet and contains a thinking segment.
// This is a derived value, recomputed on every structured-message event.
func IsStreaming(msg *wire.SessionMessage) bool {
	if msg == nil || msg.Type != wire.RoleAssistant {
		return false
	}
	return msg.StopReason == "" && msg.HasThinking()
}

func firstText(blocks []wire.ContentBlock) string {
	for _, b := range blocks {
		if b.Type == wire.BlockText && strings.TrimSpace(b.Text) != "" {
			return b.Text
		}
	}
	return ""
}

func inputPath(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var decoded struct {
		FilePath string `json:"file_path"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(input, &decoded); err != nil {
		return ""
	}
	if decoded.FilePath != "" {
		return decoded.FilePath
	}
	return decoded.Path
}

func renderToolInput(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, input); err != nil {
		return string(input)
	}
	return compact.String()
}

// renderToolResult flattens a tool result payload (string or block list)
// into display text.
func renderToolResult(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		return asString
	}
	var blocks []wire.ContentBlock
	if err := json.Unmarshal(content, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(content)
}
