// Package sdk is the client facade. It wires the transport supervisor, the
// session registry, the event reconciler, the watch protocol, and the prompt
// dispatcher behind a single serialized owner.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lookout-sh/lookout/internal/agent"
	"github.com/lookout-sh/lookout/internal/api"
	"github.com/lookout-sh/lookout/internal/chat"
	"github.com/lookout-sh/lookout/internal/config"
	"github.com/lookout-sh/lookout/internal/crypto"
	"github.com/lookout-sh/lookout/internal/prompt"
	"github.com/lookout-sh/lookout/internal/reconcile"
	"github.com/lookout-sh/lookout/internal/registry"
	"github.com/lookout-sh/lookout/internal/storage"
	"github.com/lookout-sh/lookout/internal/transport"
	"github.com/lookout-sh/lookout/internal/watch"
	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

// defaultDispatcherQueueSize is the mailbox size used by client dispatchers.
const defaultDispatcherQueueSize = 256

// ErrNoPendingPermission is returned when a permission decision arrives with
// no request outstanding.
var ErrNoPendingPermission = errors.New("no pending permission request")

// Listener receives client events. Methods are invoked one at a time from the
// callback queue and must not call back into the Client synchronously.
type Listener interface {
	// OnConnectionState reports transport transitions
	// ("connected"/"disconnected"/"reconnecting"/"failed"/...).
	OnConnectionState(state string)
	// OnElementsChanged signals that Elements() has new content.
	OnElementsChanged()
	// OnSessionChanged reports that the selected session switched.
	OnSessionChanged(sessionID string)
	// OnStatus delivers the agent's coarse activity state.
	OnStatus(state string, detail string)
	// OnPermissionRequest asks the user to approve a tool invocation.
	OnPermissionRequest(requestID, toolName, inputJSON string)
	// OnError delivers non-fatal errors for display/logging.
	OnError(message string)
}

// Client owns all per-session client state.
//
// The event stream, connection-state stream, and the pending permission slot
// live on the dispatch queue. Network round trips (prompt sends, history
// loads) stay off the queue so events keep draining while they are in
// flight; the registry and reconciler guard their own state.
type Client struct {
	cfg       *config.Config
	workspace string

	identity *crypto.Identity
	apiCli   *api.Client
	tracker  *agent.Tracker
	reg      *registry.Registry
	rec      *reconcile.Reconciler
	prompts  *prompt.Dispatcher
	sup      *transport.Supervisor
	watcher  *watch.Protocol

	dispatch  *dispatcher
	callbacks *dispatcher

	// mu guards listener; notifications originate from the dispatch queue
	// and from the reconciler's batch goroutine.
	mu       sync.Mutex
	listener Listener

	// pending is the at-most-one outstanding permission request. Dispatch
	// queue only.
	pending *wire.PermissionRequestPayload

	stopCh chan struct{}
}

// NewClient creates a client anchored to the current working directory.
func NewClient(cfg *config.Config) (*Client, error) {
	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	return NewClientForWorkspace(cfg, workspace)
}

// NewClientForWorkspace creates a client anchored to an explicit workspace.
func NewClientForWorkspace(cfg *config.Config, workspace string) (*Client, error) {
	secret, err := storage.GetOrCreateSecretKey(cfg.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("load access key: %w", err)
	}
	identity, err := crypto.NewIdentity(secret)
	if err != nil {
		return nil, fmt.Errorf("derive identity: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		workspace: workspace,
		identity:  identity,
		apiCli:    api.NewClient(cfg.ServerURL, cfg.RequestTimeout),
		tracker:   agent.NewTracker(),
		dispatch:  newDispatcher(defaultDispatcherQueueSize),
		callbacks: newDispatcher(defaultDispatcherQueueSize),
		stopCh:    make(chan struct{}),
	}

	contentKey, err := crypto.DeriveContentKey(secret)
	if err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	store := &registry.FileStore{Home: cfg.LookoutHome, Workspace: workspace, Key: contentKey}
	c.reg = registry.New(c.apiCli, store, c.tracker, workspace, cfg.SessionSearchLimit)
	if cfg.ForceNewSession {
		c.reg.SetForceNew()
	}

	cache := chat.NewCache(cfg.MaxCacheElements)
	c.rec = reconcile.New(cache, c.apiCli, cfg.HistoryPageSize, cfg.DebounceWindow, func() {
		c.emit(func(l Listener) { l.OnElementsChanged() })
	})

	c.prompts = prompt.New(c.tracker, c.reg, c.apiCli, workspace)
	return c, nil
}

// SetListener registers the listener for client events.
func (c *Client) SetListener(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// emit schedules a listener notification on the callback queue.
func (c *Client) emit(fn func(Listener)) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	if l == nil {
		return
	}
	_ = c.callbacks.do(func() { fn(l) })
}

// Identity returns the account identity.
func (c *Client) Identity() *crypto.Identity { return c.identity }

// Tracker returns the live-process tracker so spawned agents can register.
func (c *Client) Tracker() *agent.Tracker { return c.tracker }

// Workspace returns the workspace the client is anchored to.
func (c *Client) Workspace() string { return c.workspace }

// API exposes the underlying HTTP client for out-of-band requests.
func (c *Client) API() *api.Client { return c.apiCli }

// Connect authenticates and brings up the real-time connection. History and
// watch state resume once the transport reports connected.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	c.rec.Start()

	machineID, err := storage.GetOrCreateMachineID(filepath.Join(c.cfg.LookoutHome, "machine.id"))
	if err != nil {
		return fmt.Errorf("load machine id: %w", err)
	}
	c.sup = transport.NewSupervisor(c.cfg.ServerURL, c.apiCli.Token(), machineID, c.cfg.WatchAckTimeout)
	c.watcher = watch.New(c.sup)
	c.watcher.Start()

	if err := c.sup.Connect(); err != nil {
		return err
	}

	go c.consumeStates()
	go c.consumeEvents()
	return nil
}

// WaitForConnect blocks until the transport reports connected or the timeout
// elapses.
func (c *Client) WaitForConnect(timeout time.Duration) bool {
	if c.sup == nil {
		return false
	}
	return c.sup.WaitForConnect(timeout)
}

func (c *Client) consumeStates() {
	for {
		select {
		case <-c.stopCh:
			return
		case state, ok := <-c.sup.States():
			if !ok {
				return
			}
			_ = c.dispatch.do(func() { c.onConnectionState(state) })
		}
	}
}

func (c *Client) consumeEvents() {
	for {
		select {
		case <-c.stopCh:
			return
		case ev, ok := <-c.sup.Events():
			if !ok {
				return
			}
			_ = c.dispatch.do(func() { c.onEvent(ev) })
		}
	}
}

func (c *Client) onConnectionState(state transport.ConnectionState) {
	logger.Debugf("sdk: connection state %s", state)
	c.watcher.HandleConnectionState(state)
	c.emit(func(l Listener) { l.OnConnectionState(string(state)) })
	if state == transport.StateConnected {
		c.resumeHistory()
	}
}

// resumeHistory re-resolves the selected session after (re)connect and
// reloads history unless the loaded session still matches. Runs off the
// dispatch queue so a slow server never stalls event processing; the results
// are applied back on the queue.
func (c *Client) resumeHistory() {
	loaded := c.rec.SessionID()
	nonEmpty := c.rec.Loaded()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()

		id, reload, err := c.reg.ResolveForHistory(ctx, loaded, nonEmpty)
		if err != nil {
			if !errors.Is(err, registry.ErrNotFound) {
				logger.Warnf("sdk: history resolution failed: %v", err)
			}
			return
		}
		if reload {
			if err := c.loadSession(ctx, id); err != nil {
				return
			}
			c.emit(func(l Listener) { l.OnSessionChanged(id) })
		}
		c.watcher.StartWatching(id)
	}()
}

// loadSession loads the first history page for a session. A vanished session
// clears the persisted selection instead of surfacing repeatedly.
func (c *Client) loadSession(ctx context.Context, sessionID string) error {
	err := c.rec.LoadInitial(ctx, sessionID)
	if err == nil {
		return nil
	}
	if errors.Is(err, api.ErrSessionNotFound) {
		logger.Infof("sdk: session %s vanished, clearing selection", sessionID)
		c.reg.ClearSelection()
		c.rec.Reset()
		return err
	}
	logger.Warnf("sdk: history load for %s failed: %v", sessionID, err)
	return err
}

func (c *Client) onEvent(ev *wire.Event) {
	if c.watcher != nil && c.watcher.HandleEvent(ev) {
		return
	}
	if c.rec.HandleEvent(ev) {
		return
	}

	switch ev.Type {
	case wire.EventStatus:
		if ev.Status == nil {
			return
		}
		// Leaving the waiting state retires the pending interaction.
		if ev.Status.State != wire.AgentWaiting {
			c.pending = nil
		}
		state, detail := ev.Status.State, ev.Status.Detail
		c.emit(func(l Listener) { l.OnStatus(string(state), detail) })

	case wire.EventPermissionRequest:
		if ev.Permission == nil {
			return
		}
		// At most one request is pending; a newer one supersedes it.
		c.pending = ev.Permission
		req := ev.Permission
		c.emit(func(l Listener) {
			l.OnPermissionRequest(req.RequestID, req.ToolName, string(req.Input))
		})

	case wire.EventSessionInfo:
		if ev.SessionInfo != nil {
			logger.Debugf("sdk: session info workspace=%s title=%q", ev.SessionInfo.Workspace, ev.SessionInfo.Title)
		}

	case wire.EventLog:
		if ev.Log != nil {
			logger.Tracef("host: %s", ev.Log.Text)
		}

	case wire.EventError:
		if ev.Error == nil {
			return
		}
		logger.Errorf("sdk: server error: %s", ev.Error.Message)
		msg := ev.Error.Message
		c.emit(func(l Listener) { l.OnError(msg) })
	}
}

// Elements returns the current ordered conversation elements.
func (c *Client) Elements() []chat.Element { return c.rec.Elements() }

// Streaming reports whether the watched session is mid-stream.
func (c *Client) Streaming() bool { return c.rec.Streaming() }

// HasMoreHistory reports whether older pages remain.
func (c *Client) HasMoreHistory() bool { return c.rec.HasMore() }

// SelectedSession returns the currently selected session id, if any.
func (c *Client) SelectedSession() (string, bool) { return c.reg.Selected() }

// SendPrompt routes a prompt: live injection when a terminal process is
// detected, managed run otherwise. When the managed run lands in a session
// other than the loaded one, history is reloaded and the watch moves over.
//
// The network round trips run on the caller's goroutine, never on the
// dispatch queue, so live events keep draining while a send is in flight.
//
// A 404 on the selected session consults the live-process probe once: a host
// restart renames the logical session, and the probe recovers the effective
// id.
func (c *Client) SendPrompt(ctx context.Context, text, permissionMode string) (*prompt.Result, error) {
	res, err := c.prompts.Send(ctx, text, permissionMode)
	if errors.Is(err, api.ErrSessionNotFound) {
		res, err = c.retryWithLiveSession(ctx, text, permissionMode)
	}
	if err != nil {
		return nil, err
	}
	if res.SessionID == "" {
		return res, nil
	}

	if err := c.reg.SetSelected(res.SessionID); err != nil {
		logger.Warnf("sdk: failed to persist session %s: %v", res.SessionID, err)
	}
	if c.rec.SessionID() != res.SessionID {
		if err := c.loadSession(ctx, res.SessionID); err == nil {
			c.emit(func(l Listener) { l.OnSessionChanged(res.SessionID) })
		}
	}
	if c.watcher != nil {
		c.watcher.StartWatching(res.SessionID)
	}
	return res, nil
}

// retryWithLiveSession swaps a vanished selection for the live process's
// effective session id and retries the send once. Without live evidence the
// stale selection is cleared so the next prompt starts clean.
func (c *Client) retryWithLiveSession(ctx context.Context, text, permissionMode string) (*prompt.Result, error) {
	stale, _ := c.reg.Selected()
	effective, _, err := c.reg.ResolveLive(stale)
	if err != nil || effective == stale {
		logger.Infof("sdk: session %s vanished with no live replacement, clearing selection", stale)
		c.reg.ClearSelection()
		c.rec.Reset()
		return nil, fmt.Errorf("session %s: %w", stale, api.ErrSessionNotFound)
	}

	logger.Infof("sdk: adopting live session %s in place of %s", effective, stale)
	if err := c.reg.SetSelected(effective); err != nil {
		return nil, err
	}
	return c.prompts.Send(ctx, text, permissionMode)
}

// RespondPermission answers the pending permission request.
func (c *Client) RespondPermission(ctx context.Context, allow bool, message string) error {
	value, err := c.dispatch.call(func() (interface{}, error) {
		if c.pending == nil {
			return nil, ErrNoPendingPermission
		}
		req := c.pending
		c.pending = nil
		return req, nil
	})
	if err != nil {
		return err
	}
	req := value.(*wire.PermissionRequestPayload)
	return c.apiCli.PermissionResponse(ctx, &wire.PermissionResponseRequest{
		RequestID: req.RequestID,
		Allow:     allow,
		Message:   message,
	})
}

// LoadMoreHistory prepends the next older history page.
func (c *Client) LoadMoreHistory(ctx context.Context) error {
	return c.rec.LoadMore(ctx)
}

// SwitchSession selects a different session, reloading history and moving
// the watch.
func (c *Client) SwitchSession(ctx context.Context, sessionID string) error {
	if err := c.reg.SetSelected(sessionID); err != nil {
		return err
	}
	if err := c.loadSession(ctx, sessionID); err != nil {
		return err
	}
	if c.watcher != nil {
		c.watcher.StartWatching(sessionID)
	}
	c.emit(func(l Listener) { l.OnSessionChanged(sessionID) })
	return nil
}

// NewSession makes the next prompt start a fresh session and clears local
// conversation state.
func (c *Client) NewSession() {
	_, _ = c.dispatch.call(func() (interface{}, error) {
		c.reg.SetForceNew()
		c.rec.Reset()
		if c.watcher != nil {
			c.watcher.StopWatching()
		}
		return nil, nil
	})
}

// Sessions lists recent sessions, most-recent-first.
func (c *Client) Sessions(ctx context.Context, limit, offset int) (*wire.ListSessionsResponse, error) {
	return c.apiCli.GetSessions(ctx, limit, offset)
}

// Status fetches the host agent's coarse status.
func (c *Client) Status(ctx context.Context) (*wire.StatusResponse, error) {
	return c.apiCli.FetchStatus(ctx)
}

// StopAgent interrupts the selected session's active turn.
func (c *Client) StopAgent(ctx context.Context) error {
	id, ok := c.reg.Selected()
	if !ok {
		return registry.ErrNotFound
	}
	return c.apiCli.StopAgent(ctx, id)
}

// DeleteSession removes a session server-side. When it is the selected one,
// local selection and conversation state are cleared too.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.apiCli.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, api.ErrSessionNotFound) {
		return err
	}
	_, _ = c.dispatch.call(func() (interface{}, error) {
		if selected, ok := c.reg.Selected(); ok && selected == sessionID {
			c.clearLocalSession()
		}
		return nil, nil
	})
	return nil
}

// DeleteAllSessions removes every session for the account.
func (c *Client) DeleteAllSessions(ctx context.Context) error {
	if err := c.apiCli.DeleteAllSessions(ctx); err != nil {
		return err
	}
	_, _ = c.dispatch.call(func() (interface{}, error) {
		c.clearLocalSession()
		return nil, nil
	})
	return nil
}

// clearLocalSession drops the selection, cache, and watch. Dispatch queue
// only.
func (c *Client) clearLocalSession() {
	c.reg.ClearSelection()
	c.rec.Reset()
	c.pending = nil
	if c.watcher != nil {
		c.watcher.StopWatching()
	}
}

// Close tears down the connection and stops all loops.
func (c *Client) Close() error {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	if c.watcher != nil {
		c.watcher.Stop()
	}
	c.rec.Stop()
	if c.sup != nil {
		return c.sup.Close()
	}
	return nil
}
