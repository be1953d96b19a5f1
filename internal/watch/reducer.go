// Package watch implements the client side of the session watch handshake as
// a reducer-driven state machine: idle, requestingWatch, watching. The direct
// RPC ack is authoritative for local transitions; the async confirmation and
// stopped events reconcile state after reconnects.
package watch

import (
	"github.com/lookout-sh/lookout/internal/actor"
)

// Phase is the watch handshake state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRequesting Phase = "requestingWatch"
	PhaseWatching   Phase = "watching"
)

// State is the watch machine's full state. SessionID is the session being
// requested or watched; Desired survives disconnects so reconnection can
// re-issue the watch.
type State struct {
	Phase     Phase
	SessionID string
	Desired   string
	Connected bool
}

// Inputs.

// cmdStart asks to watch a session.
type cmdStart struct {
	actor.InputBase
	SessionID string
}

// cmdStop asks to stop watching.
type cmdStop struct {
	actor.InputBase
}

// evWatchAck is the direct RPC acknowledgment of a watch request.
type evWatchAck struct {
	actor.InputBase
	SessionID string
	OK        bool
}

// evWatchConfirmed is the async server-pushed confirmation.
type evWatchConfirmed struct {
	actor.InputBase
	SessionID string
}

// evWatchStopped is the async server-pushed stop notification.
type evWatchStopped struct {
	actor.InputBase
	SessionID string
}

// evConnected reports the transport coming up.
type evConnected struct {
	actor.InputBase
}

// evDisconnected reports the transport going down.
type evDisconnected struct {
	actor.InputBase
}

// Effects.

// sendWatchEffect issues the watch RPC for a session.
type sendWatchEffect struct {
	actor.EffectBase
	SessionID string
}

// sendStopEffect issues the unwatch RPC for a session.
type sendStopEffect struct {
	actor.EffectBase
	SessionID string
}

// reduce is the watch state machine. A session switch stops the old watch
// before requesting the new one; it never updates a watch in place.
func reduce(s State, in actor.Input) (State, []actor.Effect) {
	switch in := in.(type) {
	case cmdStart:
		if in.SessionID == "" {
			return s, nil
		}
		s.Desired = in.SessionID
		if !s.Connected {
			// Fails silently; reconnection re-issues the watch.
			return s, nil
		}
		if s.SessionID == in.SessionID && (s.Phase == PhaseWatching || s.Phase == PhaseRequesting) {
			return s, nil
		}
		// Stop the previous target even while its request is still unacked:
		// the server may have accepted it already.
		var effects []actor.Effect
		if s.Phase != PhaseIdle && s.SessionID != "" {
			effects = append(effects, sendStopEffect{SessionID: s.SessionID})
		}
		s.Phase = PhaseRequesting
		s.SessionID = in.SessionID
		effects = append(effects, sendWatchEffect{SessionID: in.SessionID})
		return s, effects

	case cmdStop:
		s.Desired = ""
		if s.Phase == PhaseIdle {
			return s, nil
		}
		// Force-clear local state regardless of whether the RPC succeeds:
		// "assume not watching" beats a stuck true state.
		stopped := s.SessionID
		s.Phase = PhaseIdle
		s.SessionID = ""
		return s, []actor.Effect{sendStopEffect{SessionID: stopped}}

	case evWatchAck:
		if s.Phase != PhaseRequesting || s.SessionID != in.SessionID {
			return s, nil
		}
		if in.OK {
			s.Phase = PhaseWatching
		} else {
			s.Phase = PhaseIdle
			s.SessionID = ""
		}
		return s, nil

	case evWatchConfirmed:
		s.Phase = PhaseWatching
		s.SessionID = in.SessionID
		return s, nil

	case evWatchStopped:
		if s.SessionID != in.SessionID {
			return s, nil
		}
		s.Phase = PhaseIdle
		s.SessionID = ""
		return s, nil

	case evConnected:
		// The server is the source of truth after any connectivity gap:
		// force idle and re-issue the watch rather than assuming prior state
		// survived.
		s.Connected = true
		s.Phase = PhaseIdle
		s.SessionID = ""
		if s.Desired == "" {
			return s, nil
		}
		s.Phase = PhaseRequesting
		s.SessionID = s.Desired
		return s, []actor.Effect{sendWatchEffect{SessionID: s.Desired}}

	case evDisconnected:
		s.Connected = false
		s.Phase = PhaseIdle
		s.SessionID = ""
		return s, nil
	}
	return s, nil
}
