package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookout-sh/lookout/internal/wire"
)

func mustTimestamp(t *testing.T, raw string) wire.Timestamp {
	t.Helper()
	ts, err := wire.ParseTimestamp(raw)
	require.NoError(t, err)
	return ts
}

func TestElementsFromMessage_UserText(t *testing.T) {
	t.Parallel()

	msg := &wire.SessionMessage{
		UUID:      "u1",
		Type:      wire.RoleUser,
		Timestamp: mustTimestamp(t, "2026-08-30T10:00:00Z"),
		Content:   []wire.ContentBlock{{Type: wire.BlockText, Text: "hi"}},
	}
	els := ElementsFromMessage(msg)
	require.Len(t, els, 1)
	require.Equal(t, UserInput, els[0].Type)
	require.Equal(t, "u1-0", els[0].ID)
}

func TestElementsFromMessage_AssistantBlocks(t *testing.T) {
	t.Parallel()

	msg := &wire.SessionMessage{
		UUID:       "a1",
		Type:       wire.RoleAssistant,
		Timestamp:  mustTimestamp(t, "2026-08-30T10:00:01Z"),
		StopReason: "end_turn",
		Content: []wire.ContentBlock{
			{Type: wire.BlockThinking, Thinking: "considering"},
			{Type: wire.BlockText, Text: "hello"},
			{Type: wire.BlockToolUse, ID: "toolu_1", Name: "Bash", Input: json.RawMessage(`{"command":"ls"}`)},
		},
	}
	els := ElementsFromMessage(msg)
	require.Len(t, els, 3)
	require.Equal(t, Thinking, els[0].Type)
	require.Equal(t, "a1-0", els[0].ID)
	require.Equal(t, AssistantText, els[1].Type)
	require.Equal(t, ToolCall, els[2].Type)
	require.Equal(t, "toolu_1", els[2].ID)
	require.Equal(t, ToolCompleted, els[2].Status)
}

func TestElementsFromMessage_ToolInputCompacted(t *testing.T) {
	t.Parallel()

	msg := &wire.SessionMessage{
		UUID:      "a3",
		Type:      wire.RoleAssistant,
		Timestamp: mustTimestamp(t, "2026-08-30T10:00:01Z"),
		Content: []wire.ContentBlock{
			{Type: wire.BlockToolUse, ID: "toolu_9", Name: "Bash", Input: json.RawMessage("{\n  \"command\": \"ls\"\n}")},
		},
	}
	els := ElementsFromMessage(msg)
	require.Len(t, els, 1)
	require.Equal(t, `{"command":"ls"}`, els[0].ToolInput)
}

func TestElementsFromMessage_ToolResultIDFromToolUse(t *testing.T) {
	t.Parallel()

	msg := &wire.SessionMessage{
		UUID:      "u2",
		Type:      wire.RoleUser,
		Timestamp: mustTimestamp(t, "2026-08-30T10:00:02Z"),
		Content: []wire.ContentBlock{
			{Type: wire.BlockToolResult, ToolUseID: "toolu_1", Content: json.RawMessage(`"file.txt"`)},
		},
	}
	els := ElementsFromMessage(msg)
	require.Len(t, els, 1)
	require.Equal(t, ToolResult, els[0].Type)
	require.Equal(t, "toolu_1-result", els[0].ID)
	require.Equal(t, "file.txt", els[0].Result)
}

func TestElementsFromMessage_EditToolBecomesDiff(t *testing.T) {
	t.Parallel()

	msg := &wire.SessionMessage{
		UUID:      "a2",
		Type:      wire.RoleAssistant,
		Timestamp: mustTimestamp(t, "2026-08-30T10:00:03Z"),
		Content: []wire.ContentBlock{
			{Type: wire.BlockToolUse, ID: "toolu_2", Name: "Edit", Input: json.RawMessage(`{"file_path":"main.go"}`)},
		},
	}
	els := ElementsFromMessage(msg)
	require.Len(t, els, 1)
	require.Equal(t, Diff, els[0].Type)
	require.Equal(t, "main.go", els[0].Path)
}

func TestElementsFromMessage_CompactionBoundary(t *testing.T) {
	t.Parallel()

	summary := &wire.SessionMessage{
		UUID:                "c1",
		Type:                wire.RoleUser,
		IsContextCompaction: true,
		Timestamp:           mustTimestamp(t, "2026-08-30T10:00:04Z"),
		Content:             []wire.ContentBlock{{Type: wire.BlockText, Text: "summary of earlier work"}},
	}
	els := ElementsFromMessage(summary)
	require.Len(t, els, 1)
	require.Equal(t, ContextCompaction, els[0].Type)
	require.Equal(t, "summary of earlier work", els[0].Text)

	marker := &wire.SessionMessage{
		UUID:                "c2",
		Type:                wire.RoleSystem,
		IsContextCompaction: true,
		Timestamp:           mustTimestamp(t, "2026-08-30T10:00:04Z"),
	}
	require.Empty(t, ElementsFromMessage(marker))
}

func TestElementsFromPage_DropsSyntheticEditResults(t *testing.T) {
	t.Parallel()

	msgs := []wire.SessionMessage{
		{
			UUID: "a3", Type: wire.RoleAssistant,
			Timestamp: mustTimestamp(t, "2026-08-30T10:00:05Z"),
			Content: []wire.ContentBlock{
				{Type: wire.BlockToolUse, ID: "toolu_e", Name: "Edit", Input: json.RawMessage(`{"file_path":"x.go"}`)},
				{Type: wire.BlockToolUse, ID: "toolu_b", Name: "Bash", Input: json.RawMessage(`{"command":"ls"}`)},
			},
		},
		{
			UUID: "u3", Type: wire.RoleUser,
			Timestamp: mustTimestamp(t, "2026-08-30T10:00:06Z"),
			Content: []wire.ContentBlock{
				{Type: wire.BlockToolResult, ToolUseID: "toolu_e", Content: json.RawMessage(`"ok"`)},
				{Type: wire.BlockToolResult, ToolUseID: "toolu_b", Content: json.RawMessage(`"x.go"`)},
			},
		},
	}
	els := ElementsFromPage(msgs)
	require.Len(t, els, 3)
	require.Equal(t, Diff, els[0].Type)
	require.Equal(t, ToolCall, els[1].Type)
	require.Equal(t, ToolResult, els[2].Type)
	require.Equal(t, "toolu_b-result", els[2].ID)
}

func TestReversePage(t *testing.T) {
	t.Parallel()

	msgs := []wire.SessionMessage{{UUID: "newest"}, {UUID: "mid"}, {UUID: "oldest"}}
	ReversePage(msgs)
	require.Equal(t, "oldest", msgs[0].UUID)
	require.Equal(t, "newest", msgs[2].UUID)
}

func TestIsStreaming(t *testing.T) {
	t.Parallel()

	streaming := &wire.SessionMessage{
		Type:    wire.RoleAssistant,
		Content: []wire.ContentBlock{{Type: wire.BlockThinking, Thinking: "..."}},
	}
	require.True(t, IsStreaming(streaming))

	stopped := &wire.SessionMessage{
		Type:       wire.RoleAssistant,
		StopReason: "end_turn",
		Content:    []wire.ContentBlock{{Type: wire.BlockThinking, Thinking: "..."}},
	}
	require.False(t, IsStreaming(stopped))

	noThinking := &wire.SessionMessage{
		Type:    wire.RoleAssistant,
		Content: []wire.ContentBlock{{Type: wire.BlockText, Text: "hi"}},
	}
	require.False(t, IsStreaming(noThinking))
	require.False(t, IsStreaming(nil))
}

func TestElementsFromMessage_Interrupted(t *testing.T) {
	t.Parallel()

	msg := &wire.SessionMessage{
		UUID:       "a4",
		Type:       wire.RoleAssistant,
		StopReason: "interrupted",
		Timestamp:  mustTimestamp(t, "2026-08-30T10:00:07Z"),
		Content:    []wire.ContentBlock{{Type: wire.BlockText, Text: "partial"}},
	}
	els := ElementsFromMessage(msg)
	require.Len(t, els, 2)
	require.Equal(t, Interrupted, els[1].Type)
	require.Equal(t, "a4-interrupted", els[1].ID)
}
