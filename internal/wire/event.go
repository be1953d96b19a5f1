// Package wire defines the typed payloads exchanged with the host: real-time
// events (discriminated by a `type` tag), historical session messages, and
// the HTTP request/response bodies of the history and run APIs.
package wire

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates inbound real-time events.
type EventType string

const (
	EventLog               EventType = "log"
	EventMessage           EventType = "message"
	EventStatus            EventType = "status"
	EventPermissionRequest EventType = "permission-request"
	EventDiff              EventType = "diff"
	EventFileChange        EventType = "file-change"
	EventSessionInfo       EventType = "session-info"
	EventWatchConfirmation EventType = "watch-confirmation"
	EventWatchStopped      EventType = "watch-stopped"
	EventError             EventType = "error"
)

// Event is the typed envelope for a real-time event.
//
// Exactly one payload pointer is non-nil, matching Type. SessionID may be
// empty for connection-scoped events (status, error).
type Event struct {
	// Type is the event discriminator.
	Type EventType `json:"type"`
	// ID is the server-assigned event id when present.
	ID string `json:"id,omitempty"`
	// SessionID scopes the event to a session when present.
	SessionID string `json:"sessionId,omitempty"`
	// Timestamp is the event time.
	Timestamp Timestamp `json:"timestamp,omitempty"`

	Log         *LogPayload               `json:"log,omitempty"`
	Message     *SessionMessage           `json:"message,omitempty"`
	Status      *StatusPayload            `json:"status,omitempty"`
	Permission  *PermissionRequestPayload `json:"permission,omitempty"`
	Diff        *DiffPayload              `json:"diff,omitempty"`
	FileChange  *FileChangePayload        `json:"fileChange,omitempty"`
	SessionInfo *SessionInfoPayload       `json:"sessionInfo,omitempty"`
	Error       *ErrorPayload             `json:"error,omitempty"`
}

// LogPayload is a plain log line emitted by the host process.
type LogPayload struct {
	// Text is the log line.
	Text string `json:"text"`
}

// AgentState describes the host agent's coarse activity state.
type AgentState string

const (
	AgentIdle     AgentState = "idle"
	AgentThinking AgentState = "thinking"
	// AgentWaiting means the agent is blocked on a user response (permission
	// prompt or question).
	AgentWaiting AgentState = "waiting"
)

// StatusPayload is the body of a status event.
type StatusPayload struct {
	// State is the agent activity state.
	State AgentState `json:"state"`
	// Detail optionally names what the agent is doing.
	Detail string `json:"detail,omitempty"`
}

// PermissionRequestPayload asks the user to approve a tool invocation.
type PermissionRequestPayload struct {
	// RequestID identifies the request for the eventual decision.
	RequestID string `json:"requestId"`
	// ToolName is the tool awaiting approval.
	ToolName string `json:"toolName"`
	// Input is the tool input payload.
	Input json.RawMessage `json:"input,omitempty"`
}

// DiffPayload describes a file edit performed by a tool.
type DiffPayload struct {
	// ToolUseID links the diff to the tool call that produced it.
	ToolUseID string `json:"toolUseId"`
	// Path is the edited file path.
	Path string `json:"path"`
	// Patch is the unified diff text.
	Patch string `json:"patch,omitempty"`
}

// FileChangePayload reports a filesystem change observed on the host.
type FileChangePayload struct {
	// Path is the changed file path.
	Path string `json:"path"`
	// Kind is the change kind ("created"/"modified"/"deleted").
	Kind string `json:"kind"`
}

// SessionInfoPayload carries session metadata pushed by the host.
type SessionInfoPayload struct {
	// Workspace is the session's working directory on the host.
	Workspace string `json:"workspace,omitempty"`
	// RepoName is the repository name when the workspace is a checkout.
	RepoName string `json:"repoName,omitempty"`
	// Title is the host-assigned session title.
	Title string `json:"title,omitempty"`
}

// ErrorPayload carries a server-reported error.
type ErrorPayload struct {
	// Message is the error text.
	Message string `json:"message"`
	// Code is an optional machine-readable code.
	Code string `json:"code,omitempty"`
}

// ParseEvent parses a raw socket payload into a typed Event.
//
// Transports deliver payloads as map[string]any; this round-trips through
// JSON so one decode path serves every delivery shape.
func ParseEvent(v any) (*Event, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("event missing type tag")
	}
	return &ev, nil
}
