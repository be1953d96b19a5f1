// Package actor provides a small event-loop scaffold built around pure state
// reducers and declarative side-effects.
//
// One goroutine (the loop) owns all mutable state. A reducer maps
// (state, input) to (next state, effects). A Runtime interprets effects off
// the loop and feeds resulting observations back in as inputs. Reducers stay
// deterministic and synchronous, which keeps state transitions unit-testable
// without goroutines or sleeps.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to an actor mailbox: either a command from a
// caller or an event observed by the runtime.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer. Effects are
// data; execution belongs to the Runtime.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines, or read wall-clock time;
// timestamps are injected through inputs.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs back to the actor.
//
// HandleEffects must return quickly; blocking work runs asynchronously.
// Implementations stop emitting once the context is canceled.
type Runtime interface {
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))
	Stop()
}

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime

	mu     sync.Mutex
	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New creates an actor with initial state, reducer, and runtime.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithMailboxSize sets the mailbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// Start launches the actor loop. Start is idempotent.
func (a *Actor[S]) Start() {
	a.once.Do(func() { go a.loop() })
}

// Stop cancels the actor context and stops the runtime. Safe to call
// multiple times.
func (a *Actor[S]) Stop() {
	a.cancel()
	if a.runtime != nil {
		a.runtime.Stop()
	}
}

// Done returns a channel that closes when the loop exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue delivers an input to the mailbox. It returns false if the actor is
// stopped or the mailbox is full; callers that need backpressure should use a
// larger mailbox.
func (a *Actor[S]) Enqueue(input Input) bool {
	if input == nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	default:
	}
	select {
	case a.inbox <- input:
		return true
	default:
		return false
	}
}

// State returns a snapshot of the current actor state. Intended for tests and
// observability; production code should derive behavior from reducer outputs.
func (a *Actor[S]) State() S {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Actor[S]) loop() {
	defer close(a.done)

	emit := func(in Input) { _ = a.Enqueue(in) }

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			if in == nil {
				continue
			}
			a.mu.Lock()
			prev := a.state
			a.mu.Unlock()

			next, effects := a.reduce(prev, in)

			a.mu.Lock()
			a.state = next
			a.mu.Unlock()

			if a.runtime != nil && len(effects) > 0 {
				a.runtime.HandleEffects(a.ctx, effects, emit)
			}
		}
	}
}

// ErrStopped is returned by helpers when the actor has been stopped.
var ErrStopped = errors.New("actor stopped")
