package wire

// StatusResponse is the GET /v1/status response body.
type StatusResponse struct {
	// AgentState is the host agent's coarse state ("idle"/"thinking"/"waiting").
	AgentState string `json:"agentState"`
	// RepoName is the repository name of the active workspace when known.
	RepoName string `json:"repoName,omitempty"`
	// Workspace is the active workspace path when known.
	Workspace string `json:"workspace,omitempty"`
	// Version is the host version string.
	Version string `json:"version,omitempty"`
}

// SessionSummary is one entry in the session list.
type SessionSummary struct {
	// ID is the session id.
	ID string `json:"id"`
	// Workspace is the session's working directory.
	Workspace string `json:"workspace,omitempty"`
	// Title is the session title when set.
	Title string `json:"title,omitempty"`
	// UpdatedAtMs is the last-activity time in milliseconds since epoch.
	UpdatedAtMs int64 `json:"updatedAtMs,omitempty"`
}

// ListSessionsResponse is the GET /v1/sessions response body.
//
// Sessions are ordered most-recent-first. Current, when set, names the
// session the host considers active; it takes precedence over list order.
type ListSessionsResponse struct {
	Sessions   []SessionSummary `json:"sessions"`
	Current    string           `json:"current,omitempty"`
	Total      int              `json:"total"`
	HasMore    bool             `json:"hasMore"`
	NextOffset int              `json:"nextOffset"`
}

// SessionMessagesResponse is the GET /v1/sessions/{id}/messages response
// body. Messages are newest-first (reverse chronological).
type SessionMessagesResponse struct {
	Messages   []SessionMessage `json:"messages"`
	HasMore    bool             `json:"hasMore"`
	NextOffset int              `json:"nextOffset"`
	Total      int              `json:"total"`
}

// RunMode selects how a prompt starts or continues a managed session.
type RunMode string

const (
	// RunModeNew starts a fresh session with no session id.
	RunModeNew RunMode = "new"
	// RunModeResume continues the session named by SessionID.
	RunModeResume RunMode = "resume"
)

// RunRequest is the POST /v1/run request body.
type RunRequest struct {
	// Text is the prompt text.
	Text string `json:"text"`
	// Mode selects new vs resume.
	Mode RunMode `json:"mode"`
	// SessionID is required when Mode is "resume".
	SessionID string `json:"sessionId,omitempty"`
	// PermissionMode is the requested tool-permission mode, passed through to
	// the agent unchanged.
	PermissionMode string `json:"permissionMode,omitempty"`
	// LocalID is a client-generated idempotency key echoed back in message
	// events.
	LocalID string `json:"localId,omitempty"`
}

// RunResponse is the POST /v1/run response body.
type RunResponse struct {
	// SessionID is the session the prompt was routed to (server-assigned for
	// Mode "new").
	SessionID string `json:"sessionId"`
}

// PermissionResponseRequest is the POST /v1/permission request body.
type PermissionResponseRequest struct {
	// RequestID names the pending permission request.
	RequestID string `json:"requestId"`
	// Allow is the decision.
	Allow bool `json:"allow"`
	// Message optionally explains a denial.
	Message string `json:"message,omitempty"`
}
