package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookout-sh/lookout/internal/agent"
	"github.com/lookout-sh/lookout/internal/wire"
)

type fakeAPI struct {
	sessions []wire.SessionSummary
	current  string
	err      error
	calls    []int
}

func (f *fakeAPI) GetSessions(ctx context.Context, limit, offset int) (*wire.ListSessionsResponse, error) {
	f.calls = append(f.calls, limit)
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.sessions)
	if limit < n {
		n = limit
	}
	return &wire.ListSessionsResponse{
		Sessions: f.sessions[:n],
		Current:  f.current,
		Total:    len(f.sessions),
	}, nil
}

type memStore struct {
	id      string
	ok      bool
	saveErr error
}

func (m *memStore) Load() (string, bool, error) { return m.id, m.ok, nil }
func (m *memStore) Save(id string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.id, m.ok = id, true
	return nil
}
func (m *memStore) Clear() error {
	m.id, m.ok = "", false
	return nil
}

type fakeProbe struct {
	result agent.ProbeResult
}

func (f *fakeProbe) GetLiveSession(sessionID, workspace string) agent.ProbeResult {
	return f.result
}

func newRegistry(api *fakeAPI, store *memStore) *Registry {
	return New(api, store, &fakeProbe{}, "/w", 100)
}

func TestResolveForPrompt_ForceNewWinsAndClears(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{sessions: []wire.SessionSummary{{ID: "s1"}}}
	store := &memStore{id: "s1", ok: true}
	r := newRegistry(api, store)
	r.SetForceNew()

	res, err := r.ResolveForPrompt(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.RunModeNew, res.Mode)
	require.Empty(t, res.SessionID)

	// Flag is one-shot: the next prompt resumes the valid selection.
	res, err = r.ResolveForPrompt(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.RunModeResume, res.Mode)
	require.Equal(t, "s1", res.SessionID)
}

func TestResolveForPrompt_ValidSelectionResumes(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{sessions: []wire.SessionSummary{{ID: "s2"}, {ID: "s1"}}}
	store := &memStore{id: "s1", ok: true}
	r := newRegistry(api, store)

	res, err := r.ResolveForPrompt(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.RunModeResume, res.Mode)
	require.Equal(t, "s1", res.SessionID)
}

func TestResolveForPrompt_StaleSelectionFallsBackToCurrent(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{sessions: []wire.SessionSummary{{ID: "s9"}}, current: "s9"}
	store := &memStore{id: "gone", ok: true}
	r := newRegistry(api, store)

	res, err := r.ResolveForPrompt(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.RunModeResume, res.Mode)
	require.Equal(t, "s9", res.SessionID)

	// Adoption went through the single setter: store holds the new id.
	require.Equal(t, "s9", store.id)
}

func TestResolveForPrompt_NoSessionsStartsFresh(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	store := &memStore{}
	r := newRegistry(api, store)

	res, err := r.ResolveForPrompt(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.RunModeNew, res.Mode)
}

func TestResolveForPrompt_ValidationErrorTreatedAsStale(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{err: errors.New("gateway timeout")}
	store := &memStore{id: "s1", ok: true}
	r := newRegistry(api, store)

	_, err := r.ResolveForPrompt(context.Background())
	// The fallback lookup fails too, so the error surfaces, but the stale
	// selection must already be cleared.
	require.Error(t, err)
	_, ok := r.Selected()
	require.False(t, ok)
}

func TestResolveForHistory_IdempotentOnReconnect(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{current: "s1", sessions: []wire.SessionSummary{{ID: "s1"}}}
	store := &memStore{}
	r := newRegistry(api, store)

	id, reload, err := r.ResolveForHistory(context.Background(), "s1", true)
	require.NoError(t, err)
	require.Equal(t, "s1", id)
	require.False(t, reload)
}

func TestResolveForHistory_NewSessionTriggersReload(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{current: "s2", sessions: []wire.SessionSummary{{ID: "s2"}}}
	store := &memStore{id: "s1", ok: true}
	r := newRegistry(api, store)

	id, reload, err := r.ResolveForHistory(context.Background(), "s1", true)
	require.NoError(t, err)
	require.Equal(t, "s2", id)
	require.True(t, reload)
	require.Equal(t, "s2", store.id)
}

func TestResolveForHistory_PrefersCurrentOverListOrder(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{current: "s5", sessions: []wire.SessionSummary{{ID: "s1"}}}
	store := &memStore{}
	r := newRegistry(api, store)

	id, reload, err := r.ResolveForHistory(context.Background(), "", false)
	require.NoError(t, err)
	require.Equal(t, "s5", id)
	require.True(t, reload)
}

func TestResolveForHistory_NoSessions(t *testing.T) {
	t.Parallel()

	r := newRegistry(&fakeAPI{}, &memStore{})
	_, _, err := r.ResolveForHistory(context.Background(), "", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveLive_MapsProbeOutcomes(t *testing.T) {
	t.Parallel()

	found := New(&fakeAPI{}, &memStore{}, &fakeProbe{result: agent.ProbeResult{
		Status:             agent.ProbeFound,
		EffectiveSessionID: "live-1",
		Workspace:          "/w",
	}}, "/w", 100)
	id, ws, err := found.ResolveLive("stale")
	require.NoError(t, err)
	require.Equal(t, "live-1", id)
	require.Equal(t, "/w", ws)

	ambiguous := New(&fakeAPI{}, &memStore{}, &fakeProbe{result: agent.ProbeResult{
		Status: agent.ProbeAmbiguous,
	}}, "/w", 100)
	_, _, err = ambiguous.ResolveLive("stale")
	require.ErrorIs(t, err, ErrAmbiguous)

	missing := New(&fakeAPI{}, &memStore{}, &fakeProbe{result: agent.ProbeResult{
		Status: agent.ProbeNotFound,
	}}, "/w", 100)
	_, _, err = missing.ResolveLive("stale")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetSelected_FailedPersistLeavesMemoryUnchanged(t *testing.T) {
	t.Parallel()

	store := &memStore{id: "old", ok: true, saveErr: errors.New("disk full")}
	r := newRegistry(&fakeAPI{}, store)

	require.Error(t, r.SetSelected("new"))
	id, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, "old", id)
}

func TestNewLoadsPersistedSelection(t *testing.T) {
	t.Parallel()

	r := newRegistry(&fakeAPI{}, &memStore{id: "persisted", ok: true})
	id, ok := r.Selected()
	require.True(t, ok)
	require.Equal(t, "persisted", id)
}
