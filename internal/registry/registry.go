// Package registry resolves which session id is the one true target for the
// next read or write, reconciling the persisted selection, server state, and
// live-process evidence.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/lookout-sh/lookout/internal/agent"
	"github.com/lookout-sh/lookout/internal/storage"
	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

var (
	// ErrNotFound means no session candidate exists; safe to treat as "no
	// session yet".
	ErrNotFound = errors.New("no session found")
	// ErrAmbiguous means several live candidates exist and the caller must
	// disambiguate rather than pick one.
	ErrAmbiguous = errors.New("ambiguous session candidates")
)

// SessionAPI is the slice of the HTTP client the registry needs.
type SessionAPI interface {
	GetSessions(ctx context.Context, limit, offset int) (*wire.ListSessionsResponse, error)
}

// LiveProbe answers whether live-process evidence can stand in for a stale
// session id.
type LiveProbe interface {
	GetLiveSession(sessionID, workspace string) agent.ProbeResult
}

// SelectionStore persists the selected session id across restarts.
type SelectionStore interface {
	Load() (sessionID string, ok bool, err error)
	Save(sessionID string) error
	Clear() error
}

// FileStore is the storage-backed SelectionStore for one workspace. A
// non-nil Key seals records at rest.
type FileStore struct {
	Home      string
	Workspace string
	Key       *[32]byte
}

func (s *FileStore) Load() (string, bool, error) {
	sel, ok, err := storage.LoadSelectedSession(s.Home, s.Workspace, s.Key)
	if err != nil || !ok {
		return "", false, err
	}
	return sel.SessionID, true, nil
}

func (s *FileStore) Save(sessionID string) error {
	return storage.SaveSelectedSession(s.Home, storage.SelectedSession{
		SessionID: sessionID,
		Workspace: s.Workspace,
	}, s.Key)
}

func (s *FileStore) Clear() error {
	return storage.ClearSelectedSession(s.Home, s.Workspace)
}

// Resolution is the outcome of ResolveForPrompt: the run mode and, for
// resume, the session id.
type Resolution struct {
	Mode      wire.RunMode
	SessionID string
}

// Registry owns the selected session id. All mutation goes through one
// setter that persists and updates memory together, so the persisted and
// in-memory values never disagree.
type Registry struct {
	api         SessionAPI
	store       SelectionStore
	probe       LiveProbe
	workspace   string
	searchLimit int

	mu       sync.Mutex
	selected string
	forceNew bool
}

// New creates a registry. searchLimit bounds how many recent sessions a
// validation pass inspects.
func New(api SessionAPI, store SelectionStore, probe LiveProbe, workspace string, searchLimit int) *Registry {
	if searchLimit <= 0 {
		searchLimit = 100
	}
	r := &Registry{
		api:         api,
		store:       store,
		probe:       probe,
		workspace:   workspace,
		searchLimit: searchLimit,
	}
	if id, ok, err := store.Load(); err == nil && ok {
		r.selected = id
	} else if err != nil {
		logger.Warnf("registry: failed to load persisted selection: %v", err)
	}
	return r
}

// Selected returns the current selection.
func (r *Registry) Selected() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected, r.selected != ""
}

// SetSelected persists and installs a new selection. Persistence happens
// before the in-memory update; a failed write leaves both sides on the old
// value.
func (r *Registry) SetSelected(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Save(sessionID); err != nil {
		return err
	}
	r.selected = sessionID
	return nil
}

// ClearSelection drops the selection from disk and memory. Used on 404s and
// explicit resets.
func (r *Registry) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Clear(); err != nil {
		logger.Warnf("registry: failed to clear persisted selection: %v", err)
	}
	r.selected = ""
}

// SetForceNew makes the next prompt start a fresh session. The flag clears
// after one use.
func (r *Registry) SetForceNew() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceNew = true
}

// ResolveForPrompt produces the run mode and session id for the next prompt.
//
// Order: the force-new flag wins; then a persisted selection is validated
// against the server's recent-session list; then the server's current or
// most-recent session is adopted; finally a fresh session.
func (r *Registry) ResolveForPrompt(ctx context.Context) (Resolution, error) {
	r.mu.Lock()
	if r.forceNew {
		r.forceNew = false
		r.mu.Unlock()
		return Resolution{Mode: wire.RunModeNew}, nil
	}
	selected := r.selected
	r.mu.Unlock()

	if selected != "" {
		valid, err := r.validate(ctx, selected)
		if err != nil {
			// A hung or failed validation must not block prompt sending;
			// treat as invalid and fall through.
			logger.Warnf("registry: validation of %s failed: %v", selected, err)
			valid = false
		}
		if valid {
			return Resolution{Mode: wire.RunModeResume, SessionID: selected}, nil
		}
		logger.Infof("registry: selection %s is stale, clearing", selected)
		r.ClearSelection()
	}

	id, err := r.serverCurrent(ctx)
	if err != nil {
		return Resolution{}, err
	}
	if id == "" {
		return Resolution{Mode: wire.RunModeNew}, nil
	}
	if err := r.SetSelected(id); err != nil {
		return Resolution{}, err
	}
	return Resolution{Mode: wire.RunModeResume, SessionID: id}, nil
}

// ResolveForHistory resolves the session whose history should be shown after
// a (re)connect.
//
// reload is false when the resolved id matches loadedID and history is
// already non-empty, so reconnects do not refetch and flicker. A resolved id
// is installed as the selection before returning.
func (r *Registry) ResolveForHistory(ctx context.Context, loadedID string, historyNonEmpty bool) (sessionID string, reload bool, err error) {
	id, err := r.serverCurrent(ctx)
	if err != nil {
		return "", false, err
	}
	if id == "" {
		return "", false, ErrNotFound
	}
	if id == loadedID && historyNonEmpty {
		return id, false, nil
	}
	if err := r.SetSelected(id); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// ResolveLive consults the live-process probe when a session id's file lookup
// fails. It returns the effective id and workspace, or ErrNotFound /
// ErrAmbiguous.
func (r *Registry) ResolveLive(sessionID string) (effectiveID, workspace string, err error) {
	res := r.probe.GetLiveSession(sessionID, r.workspace)
	switch res.Status {
	case agent.ProbeFound:
		return res.EffectiveSessionID, res.Workspace, nil
	case agent.ProbeAmbiguous:
		return "", "", ErrAmbiguous
	default:
		return "", "", ErrNotFound
	}
}

// validate checks that a session id appears in the server's recent list.
// The search is bounded to searchLimit entries by recency.
func (r *Registry) validate(ctx context.Context, sessionID string) (bool, error) {
	resp, err := r.api.GetSessions(ctx, r.searchLimit, 0)
	if err != nil {
		return false, err
	}
	for _, s := range resp.Sessions {
		if s.ID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

// serverCurrent asks the server for its current session, preferring an
// explicit current marker over list order.
func (r *Registry) serverCurrent(ctx context.Context) (string, error) {
	resp, err := r.api.GetSessions(ctx, 1, 0)
	if err != nil {
		return "", err
	}
	if resp.Current != "" {
		return resp.Current, nil
	}
	if len(resp.Sessions) > 0 {
		return resp.Sessions[0].ID, nil
	}
	return "", nil
}
