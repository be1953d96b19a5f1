package agent

import (
	"errors"
	"sync"
)

// ErrNoLiveProcess is returned by injection when the target workspace has no
// running agent.
var ErrNoLiveProcess = errors.New("no live agent process")

// ProbeStatus classifies a live-session lookup.
type ProbeStatus int

const (
	// ProbeNotFound means no live candidate exists; safe to treat as "no
	// session yet".
	ProbeNotFound ProbeStatus = iota
	// ProbeFound means exactly one live candidate was resolved.
	ProbeFound
	// ProbeAmbiguous means more than one live candidate exists; the caller
	// must not pick one silently.
	ProbeAmbiguous
)

// ProbeResult is the outcome of a live-session lookup.
type ProbeResult struct {
	Status ProbeStatus
	// EffectiveSessionID is the id to use in place of the stale one. Set only
	// when Status is ProbeFound.
	EffectiveSessionID string
	// Workspace is the resolved workspace. Set only when Status is ProbeFound.
	Workspace string
}

// liveProcess is the slice of Process the tracker needs; narrowed so tests
// can register fakes without spawning PTYs.
type liveProcess interface {
	IsRunning() bool
	SessionID() string
	Workspace() string
	SendLine(text string) error
}

// Tracker keeps the set of agent processes this client spawned, keyed by
// workspace. It backs the live-process probe and prompt injection.
type Tracker struct {
	mu    sync.Mutex
	procs []liveProcess
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Register adds a process to the tracker.
func (t *Tracker) Register(p *Process) { t.register(p) }

func (t *Tracker) register(p liveProcess) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.procs = append(t.procs, p)
}

// live returns the currently running processes, dropping dead entries.
func (t *Tracker) live() []liveProcess {
	t.mu.Lock()
	defer t.mu.Unlock()

	alive := t.procs[:0]
	for _, p := range t.procs {
		if p.IsRunning() {
			alive = append(alive, p)
		}
	}
	t.procs = alive
	out := make([]liveProcess, len(alive))
	copy(out, alive)
	return out
}

// GetLiveSession resolves a session id against live-process evidence.
//
// A session whose file still exists is trusted as-is. When the file is gone
// (host restart renamed the logical session), the live processes decide:
// exactly one candidate is adopted, zero is not-found, several is ambiguous.
func (t *Tracker) GetLiveSession(sessionID, workspace string) ProbeResult {
	if sessionID != "" && workspace != "" && VerifySessionFile(workspace, sessionID) {
		return ProbeResult{
			Status:             ProbeFound,
			EffectiveSessionID: sessionID,
			Workspace:          workspace,
		}
	}

	live := t.live()
	switch len(live) {
	case 0:
		return ProbeResult{Status: ProbeNotFound}
	case 1:
		return ProbeResult{
			Status:             ProbeFound,
			EffectiveSessionID: live[0].SessionID(),
			Workspace:          live[0].Workspace(),
		}
	default:
		return ProbeResult{Status: ProbeAmbiguous}
	}
}

// LiveWorkspaces returns the distinct workspaces that currently have a
// running process, in registration order.
func (t *Tracker) LiveWorkspaces() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range t.live() {
		ws := p.Workspace()
		if _, dup := seen[ws]; dup {
			continue
		}
		seen[ws] = struct{}{}
		out = append(out, ws)
	}
	return out
}

// ResolveWorkspace finds the single workspace with live processes. Used by
// prompt dispatch when the stored session id's file lookup fails.
//
// ok is false when zero or more than one workspace qualifies.
func (t *Tracker) ResolveWorkspace() (workspace string, ok bool) {
	workspaces := t.LiveWorkspaces()
	if len(workspaces) != 1 {
		return "", false
	}
	return workspaces[0], true
}

// InjectIntoLive writes a prompt line into the live process serving the
// given workspace.
func (t *Tracker) InjectIntoLive(workspace, text string) error {
	for _, p := range t.live() {
		if p.Workspace() == workspace {
			return p.SendLine(text)
		}
	}
	return ErrNoLiveProcess
}

// HasLiveProcess reports whether any running process serves the workspace.
func (t *Tracker) HasLiveProcess(workspace string) bool {
	for _, p := range t.live() {
		if p.Workspace() == workspace {
			return true
		}
	}
	return false
}
