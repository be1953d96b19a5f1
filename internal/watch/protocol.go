package watch

import (
	"context"

	"github.com/lookout-sh/lookout/internal/actor"
	"github.com/lookout-sh/lookout/internal/transport"
	"github.com/lookout-sh/lookout/internal/wire"
	"github.com/lookout-sh/lookout/pkg/logger"
)

// Transport is the slice of the connection supervisor the protocol needs.
type Transport interface {
	WatchSession(sessionID string) error
	UnwatchSession(sessionID string) error
}

// rpcRuntime interprets send effects by issuing the watch RPCs off the loop
// and feeding acks back in.
type rpcRuntime struct {
	tr Transport
}

func (r *rpcRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case sendWatchEffect:
			go func(id string) {
				err := r.tr.WatchSession(id)
				if err != nil {
					logger.Infof("watch: request for %s failed: %v", id, err)
				}
				select {
				case <-ctx.Done():
				default:
					emit(evWatchAck{SessionID: id, OK: err == nil})
				}
			}(e.SessionID)

		case sendStopEffect:
			go func(id string) {
				if err := r.tr.UnwatchSession(id); err != nil {
					// Local state is already cleared; the failure is logged
					// and the server's async watch-stopped settles the rest.
					logger.Infof("watch: stop for %s failed: %v", id, err)
				}
			}(e.SessionID)
		}
	}
}

func (r *rpcRuntime) Stop() {}

// Protocol drives the watch state machine over a transport.
type Protocol struct {
	act *actor.Actor[State]
}

// New creates the protocol. Call Start before use.
func New(tr Transport) *Protocol {
	return &Protocol{
		act: actor.New(State{Phase: PhaseIdle}, reduce, &rpcRuntime{tr: tr}),
	}
}

// Start launches the state machine loop.
func (p *Protocol) Start() { p.act.Start() }

// Stop shuts the loop down.
func (p *Protocol) Stop() { p.act.Stop() }

// StartWatching requests a watch on the session. A no-op when already
// watching the same id; disconnected requests are retried on reconnect.
func (p *Protocol) StartWatching(sessionID string) {
	p.act.Enqueue(cmdStart{SessionID: sessionID})
}

// StopWatching stops the current watch, clearing local state even if the
// server request fails.
func (p *Protocol) StopWatching() {
	p.act.Enqueue(cmdStop{})
}

// HandleConnectionState feeds transport transitions into the machine.
func (p *Protocol) HandleConnectionState(state transport.ConnectionState) {
	switch state {
	case transport.StateConnected:
		p.act.Enqueue(evConnected{})
	case transport.StateDisconnected, transport.StateReconnecting, transport.StateFailed:
		p.act.Enqueue(evDisconnected{})
	}
}

// HandleEvent consumes watch-confirmation and watch-stopped events. It
// reports whether the event was consumed.
func (p *Protocol) HandleEvent(ev *wire.Event) bool {
	if ev == nil {
		return false
	}
	switch ev.Type {
	case wire.EventWatchConfirmation:
		p.act.Enqueue(evWatchConfirmed{SessionID: ev.SessionID})
		return true
	case wire.EventWatchStopped:
		p.act.Enqueue(evWatchStopped{SessionID: ev.SessionID})
		return true
	}
	return false
}

// Watching returns the watched session id, if any.
func (p *Protocol) Watching() (string, bool) {
	s := p.act.State()
	if s.Phase != PhaseWatching {
		return "", false
	}
	return s.SessionID, true
}
