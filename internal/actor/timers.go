package actor

import (
	"context"
	"sync"
	"time"
)

// StartTimerEffect arms (or re-arms) a named timer. When the timer fires, a
// TimerFired input carrying the same name is emitted back to the actor.
// Re-arming an already-armed name replaces the pending timer, which gives
// reducers reset-on-activity debounce semantics for free.
type StartTimerEffect struct {
	EffectBase
	Name  string
	After time.Duration
}

// CancelTimerEffect disarms a named timer. Canceling a timer that is not
// armed is a no-op.
type CancelTimerEffect struct {
	EffectBase
	Name string
}

// TimerFired is emitted when a named timer elapses without being replaced or
// canceled.
type TimerFired struct {
	InputBase
	Name string
	// NowMs is the wall-clock fire time in milliseconds since epoch.
	NowMs int64
}

// TimerRuntime wraps another Runtime and interprets timer effects, delegating
// everything else to the inner runtime.
type TimerRuntime struct {
	inner Runtime
	clock Clock

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewTimerRuntime creates a TimerRuntime around inner. A nil clock defaults
// to RealClock.
func NewTimerRuntime(inner Runtime, clock Clock) *TimerRuntime {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimerRuntime{
		inner:  inner,
		clock:  clock,
		timers: make(map[string]*time.Timer),
	}
}

// HandleEffects implements Runtime.
func (r *TimerRuntime) HandleEffects(ctx context.Context, effects []Effect, emit func(Input)) {
	var rest []Effect
	for _, eff := range effects {
		switch e := eff.(type) {
		case StartTimerEffect:
			r.arm(ctx, e, emit)
		case CancelTimerEffect:
			r.cancel(e.Name)
		default:
			rest = append(rest, eff)
		}
	}
	if len(rest) > 0 && r.inner != nil {
		r.inner.HandleEffects(ctx, rest, emit)
	}
}

// Stop implements Runtime. It cancels all pending timers and stops the inner
// runtime.
func (r *TimerRuntime) Stop() {
	r.mu.Lock()
	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	r.mu.Unlock()
	if r.inner != nil {
		r.inner.Stop()
	}
}

func (r *TimerRuntime) arm(ctx context.Context, eff StartTimerEffect, emit func(Input)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.timers[eff.Name]; ok {
		prev.Stop()
	}
	name := eff.Name
	r.timers[name] = time.AfterFunc(eff.After, func() {
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return
		default:
		}
		emit(TimerFired{Name: name, NowMs: r.clock.Now().UnixMilli()})
	})
}

func (r *TimerRuntime) cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
}
