package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	running   bool
	sessionID string
	workspace string
	sent      []string
}

func (f *fakeProcess) IsRunning() bool   { return f.running }
func (f *fakeProcess) SessionID() string { return f.sessionID }
func (f *fakeProcess) Workspace() string { return f.workspace }
func (f *fakeProcess) SendLine(text string) error {
	f.sent = append(f.sent, text)
	return nil
}

// writeSessionFile creates a session file under a temp config dir and points
// CLAUDE_CONFIG_DIR at it.
func writeSessionFile(t *testing.T, workspace, sessionID string) {
	t.Helper()
	configDir := t.TempDir()
	t.Setenv("CLAUDE_CONFIG_DIR", configDir)
	dir := projectDir(workspace)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, sessionID+".jsonl"), []byte("{}\n"), 0o600))
}

func TestGetLiveSession_TrustsExistingSessionFile(t *testing.T) {
	writeSessionFile(t, "/w", "s1")

	tr := NewTracker()
	res := tr.GetLiveSession("s1", "/w")
	require.Equal(t, ProbeFound, res.Status)
	require.Equal(t, "s1", res.EffectiveSessionID)
	require.Equal(t, "/w", res.Workspace)
}

func TestGetLiveSession_AdoptsSingleLiveProcess(t *testing.T) {
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())

	tr := NewTracker()
	tr.register(&fakeProcess{running: true, sessionID: "s2", workspace: "/w"})

	res := tr.GetLiveSession("stale", "/w")
	require.Equal(t, ProbeFound, res.Status)
	require.Equal(t, "s2", res.EffectiveSessionID)
}

func TestGetLiveSession_NotFoundWithoutCandidates(t *testing.T) {
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())

	tr := NewTracker()
	res := tr.GetLiveSession("stale", "/w")
	require.Equal(t, ProbeNotFound, res.Status)
}

func TestGetLiveSession_AmbiguousWithSeveralCandidates(t *testing.T) {
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())

	tr := NewTracker()
	tr.register(&fakeProcess{running: true, sessionID: "a", workspace: "/w1"})
	tr.register(&fakeProcess{running: true, sessionID: "b", workspace: "/w2"})

	res := tr.GetLiveSession("stale", "/w1")
	require.Equal(t, ProbeAmbiguous, res.Status)
}

func TestGetLiveSession_IgnoresDeadProcesses(t *testing.T) {
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())

	tr := NewTracker()
	tr.register(&fakeProcess{running: false, sessionID: "dead", workspace: "/w"})
	tr.register(&fakeProcess{running: true, sessionID: "live", workspace: "/w"})

	res := tr.GetLiveSession("", "")
	require.Equal(t, ProbeFound, res.Status)
	require.Equal(t, "live", res.EffectiveSessionID)
}

func TestResolveWorkspace(t *testing.T) {
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())

	tr := NewTracker()
	_, ok := tr.ResolveWorkspace()
	require.False(t, ok)

	tr.register(&fakeProcess{running: true, sessionID: "a", workspace: "/w1"})
	ws, ok := tr.ResolveWorkspace()
	require.True(t, ok)
	require.Equal(t, "/w1", ws)

	// Two processes in the same workspace still resolve to it.
	tr.register(&fakeProcess{running: true, sessionID: "b", workspace: "/w1"})
	ws, ok = tr.ResolveWorkspace()
	require.True(t, ok)
	require.Equal(t, "/w1", ws)

	// A second workspace makes resolution fail.
	tr.register(&fakeProcess{running: true, sessionID: "c", workspace: "/w2"})
	_, ok = tr.ResolveWorkspace()
	require.False(t, ok)
}

func TestInjectIntoLive(t *testing.T) {
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())

	tr := NewTracker()
	p := &fakeProcess{running: true, sessionID: "a", workspace: "/w"}
	tr.register(p)

	require.NoError(t, tr.InjectIntoLive("/w", "hello"))
	require.Equal(t, []string{"hello"}, p.sent)

	require.ErrorIs(t, tr.InjectIntoLive("/other", "hello"), ErrNoLiveProcess)
}

func TestVerifySessionFile(t *testing.T) {
	writeSessionFile(t, "/w", "s1")
	require.True(t, VerifySessionFile("/w", "s1"))
	require.False(t, VerifySessionFile("/w", "missing"))
}
