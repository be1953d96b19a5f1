// Package transport maintains the real-time Socket.IO connection to the
// Lookout server. The Supervisor owns the socket lifecycle, surfaces
// connection-state transitions and parsed events on channels, and exposes the
// watch RPCs.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

// ErrNotConnected is returned by emit operations when no live socket exists.
var ErrNotConnected = errors.New("not connected")

// ConnectionState is the supervisor's view of the socket lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// Supervisor wraps a Socket.IO client connection. Reconnection itself is the
// engine's job; the supervisor tracks the resulting state transitions and
// republishes them so session-level logic can reconcile after every recovery.
type Supervisor struct {
	serverURL  string
	token      string
	machineID  string
	ackTimeout time.Duration

	mu        sync.RWMutex
	socket    *socket.Socket
	state     ConnectionState
	everUp    bool
	closeOnce sync.Once
	done      chan struct{}

	stateCh chan ConnectionState
	eventCh chan *wire.Event
}

// NewSupervisor creates a supervisor for the given server. machineID
// identifies this device to the server; ackTimeout bounds the wait for watch
// RPC acks.
func NewSupervisor(serverURL, token, machineID string, ackTimeout time.Duration) *Supervisor {
	if ackTimeout <= 0 {
		ackTimeout = 10 * time.Second
	}
	return &Supervisor{
		serverURL:  serverURL,
		token:      token,
		machineID:  machineID,
		ackTimeout: ackTimeout,
		state:      StateDisconnected,
		done:       make(chan struct{}),
		stateCh:    make(chan ConnectionState, 16),
		eventCh:    make(chan *wire.Event, 256),
	}
}

// States delivers connection-state transitions in order. The channel is
// buffered; the supervisor never blocks on a slow consumer and instead drops
// intermediate transitions, keeping the latest.
func (s *Supervisor) States() <-chan ConnectionState { return s.stateCh }

// Events delivers parsed real-time events.
func (s *Supervisor) Events() <-chan *wire.Event { return s.eventCh }

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect establishes the Socket.IO connection. The engine reconnects on its
// own after drops; Connect is called once per supervisor.
func (s *Supervisor) Connect() error {
	s.setState(StateConnecting)

	opts := socket.DefaultOptions()
	opts.SetPath("/v1/updates")
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]interface{}{
		"token":      s.token,
		"clientType": "observer",
		"machineId":  s.machineID,
	})

	sock, err := socket.Connect(s.serverURL, opts)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.mu.Lock()
	s.socket = sock
	s.mu.Unlock()

	sock.On(types.EventName("connect"), func(args ...any) {
		logger.Debugf("transport: connected (id=%s)", sock.Id())
		s.mu.Lock()
		s.everUp = true
		s.mu.Unlock()
		s.setState(StateConnected)
	})

	sock.On(types.EventName("disconnect"), func(args ...any) {
		reason := ""
		if len(args) > 0 {
			if r, ok := args[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("transport: disconnected: %s", reason)
		s.setState(StateReconnecting)
	})

	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("transport: connection error: %v", args[0])
		}
		s.mu.RLock()
		everUp := s.everUp
		s.mu.RUnlock()
		if everUp {
			s.setState(StateReconnecting)
		}
	})

	sock.On(types.EventName("event"), func(args ...any) {
		if len(args) == 0 {
			return
		}
		ev, err := wire.ParseEvent(args[0])
		if err != nil {
			logger.Warnf("transport: dropping malformed event: %v", err)
			return
		}
		select {
		case s.eventCh <- ev:
		case <-s.done:
		default:
			logger.Warnf("transport: event buffer full, dropping %s", ev.Type)
		}
	})

	return nil
}

// WaitForConnect waits for the socket to report connected or times out.
func (s *Supervisor) WaitForConnect(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == StateConnected {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return s.State() == StateConnected
}

// WatchSession asks the server to start streaming a session's events to this
// connection. The ack is authoritative: a nil error means the server accepted
// the watch.
func (s *Supervisor) WatchSession(sessionID string) error {
	resp, err := s.emitWithAck("watch-session", map[string]interface{}{
		"sessionId": sessionID,
	})
	if err != nil {
		return fmt.Errorf("watch-session %s: %w", sessionID, err)
	}
	return ackResult("watch-session", resp)
}

// UnwatchSession asks the server to stop streaming a session's events.
func (s *Supervisor) UnwatchSession(sessionID string) error {
	resp, err := s.emitWithAck("unwatch-session", map[string]interface{}{
		"sessionId": sessionID,
	})
	if err != nil {
		return fmt.Errorf("unwatch-session %s: %w", sessionID, err)
	}
	return ackResult("unwatch-session", resp)
}

func ackResult(op string, resp map[string]interface{}) error {
	if resp == nil {
		return fmt.Errorf("%s: missing ack", op)
	}
	result, _ := resp["result"].(string)
	if result != "success" {
		msg, _ := resp["message"].(string)
		return fmt.Errorf("%s failed: %s %s", op, result, msg)
	}
	return nil
}

func (s *Supervisor) emitWithAck(event string, data map[string]interface{}) (map[string]interface{}, error) {
	s.mu.RLock()
	sock := s.socket
	state := s.state
	s.mu.RUnlock()

	if sock == nil || state != StateConnected {
		return nil, ErrNotConnected
	}

	resultCh := make(chan map[string]interface{}, 1)
	errCh := make(chan error, 1)

	sock.Emit(event, data, func(args []any, err error) {
		if err != nil {
			errCh <- err
			return
		}
		if len(args) == 0 {
			resultCh <- nil
			return
		}
		if payload, ok := args[0].(map[string]interface{}); ok {
			resultCh <- payload
			return
		}
		resultCh <- nil
	})

	select {
	case res := <-resultCh:
		return res, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(s.ackTimeout):
		return nil, fmt.Errorf("ack timeout")
	}
}

func (s *Supervisor) setState(state ConnectionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	select {
	case s.stateCh <- state:
	default:
		// Slow consumer: drop the oldest queued transition so the newest
		// always lands.
		select {
		case <-s.stateCh:
		default:
		}
		select {
		case s.stateCh <- state:
		default:
		}
	}
}

// Close tears down the connection and stops event delivery.
func (s *Supervisor) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.mu.Lock()
	if s.socket != nil {
		s.socket.Disconnect()
		s.socket = nil
	}
	s.mu.Unlock()

	// Publish the explicit-disconnect transition like any other.
	s.setState(StateDisconnected)
	return nil
}
