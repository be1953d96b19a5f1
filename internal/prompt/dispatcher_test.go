package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lookout-sh/lookout/internal/api"
	"github.com/lookout-sh/lookout/internal/registry"
	"github.com/lookout-sh/lookout/internal/wire"
)

type fakeInjector struct {
	workspaces []string
	injectErr  error
	injected   []string
}

func (f *fakeInjector) HasLiveProcess(workspace string) bool {
	for _, ws := range f.workspaces {
		if ws == workspace {
			return true
		}
	}
	return false
}

func (f *fakeInjector) LiveWorkspaces() []string { return f.workspaces }

func (f *fakeInjector) InjectIntoLive(workspace, text string) error {
	if f.injectErr != nil {
		return f.injectErr
	}
	f.injected = append(f.injected, workspace+":"+text)
	return nil
}

type fakeResolver struct {
	res registry.Resolution
	err error
}

func (f *fakeResolver) ResolveForPrompt(ctx context.Context) (registry.Resolution, error) {
	return f.res, f.err
}

type fakeRunAPI struct {
	resp *wire.RunResponse
	err  error
	reqs []*wire.RunRequest
}

func (f *fakeRunAPI) Run(ctx context.Context, req *wire.RunRequest) (*wire.RunResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestSend_InjectsIntoOwnWorkspaceFirst(t *testing.T) {
	t.Parallel()

	inj := &fakeInjector{workspaces: []string{"/other", "/w"}}
	runAPI := &fakeRunAPI{}
	d := New(inj, &fakeResolver{}, runAPI, "/w")

	res, err := d.Send(context.Background(), "hi", "acceptEdits")
	require.NoError(t, err)
	require.True(t, res.Injected)
	require.Equal(t, "/w", res.Workspace)
	require.Equal(t, []string{"/w:hi"}, inj.injected)
	require.Empty(t, runAPI.reqs)
}

func TestSend_InjectionIsModeIndependent(t *testing.T) {
	t.Parallel()

	inj := &fakeInjector{workspaces: []string{"/w"}}
	d := New(inj, &fakeResolver{}, &fakeRunAPI{}, "/w")

	// Interactive permission modes still inject.
	res, err := d.Send(context.Background(), "hi", "default")
	require.NoError(t, err)
	require.True(t, res.Injected)
}

func TestSend_SingleForeignWorkspaceIsAdopted(t *testing.T) {
	t.Parallel()

	inj := &fakeInjector{workspaces: []string{"/elsewhere"}}
	d := New(inj, &fakeResolver{}, &fakeRunAPI{}, "/w")

	res, err := d.Send(context.Background(), "hi", "")
	require.NoError(t, err)
	require.True(t, res.Injected)
	require.Equal(t, "/elsewhere", res.Workspace)
}

func TestSend_MultipleWorkspacesAmbiguous(t *testing.T) {
	t.Parallel()

	inj := &fakeInjector{workspaces: []string{"/a", "/b"}}
	runAPI := &fakeRunAPI{}
	d := New(inj, &fakeResolver{}, runAPI, "/w")

	_, err := d.Send(context.Background(), "hi", "")
	require.ErrorIs(t, err, ErrWorkspaceAmbiguous)
	require.Empty(t, runAPI.reqs)
}

func TestSend_FallsBackToManagedRun(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{res: registry.Resolution{Mode: wire.RunModeResume, SessionID: "s1"}}
	runAPI := &fakeRunAPI{resp: &wire.RunResponse{SessionID: "s1"}}
	d := New(&fakeInjector{}, resolver, runAPI, "/w")

	res, err := d.Send(context.Background(), "hi", "acceptEdits")
	require.NoError(t, err)
	require.False(t, res.Injected)
	require.Equal(t, "s1", res.SessionID)
	require.NotEmpty(t, res.LocalID)

	require.Len(t, runAPI.reqs, 1)
	req := runAPI.reqs[0]
	require.Equal(t, wire.RunModeResume, req.Mode)
	require.Equal(t, "s1", req.SessionID)
	require.Equal(t, "acceptEdits", req.PermissionMode)
	require.Equal(t, res.LocalID, req.LocalID)
}

func TestSend_InjectionFailureFallsBackToManagedRun(t *testing.T) {
	t.Parallel()

	inj := &fakeInjector{workspaces: []string{"/w"}, injectErr: errors.New("pty gone")}
	resolver := &fakeResolver{res: registry.Resolution{Mode: wire.RunModeNew}}
	runAPI := &fakeRunAPI{resp: &wire.RunResponse{SessionID: "fresh"}}
	d := New(inj, resolver, runAPI, "/w")

	res, err := d.Send(context.Background(), "hi", "")
	require.NoError(t, err)
	require.Equal(t, "fresh", res.SessionID)
}

func TestSend_AlreadyRunningPropagatesSentinel(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{res: registry.Resolution{Mode: wire.RunModeResume, SessionID: "s1"}}
	runAPI := &fakeRunAPI{err: api.ErrAlreadyRunning}
	d := New(&fakeInjector{}, resolver, runAPI, "/w")

	_, err := d.Send(context.Background(), "hi", "")
	require.ErrorIs(t, err, api.ErrAlreadyRunning)
}
