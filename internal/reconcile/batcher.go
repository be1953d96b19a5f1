package reconcile

import (
	"context"
	"time"

	"github.com/lookout-sh/lookout/internal/actor"
	"github.com/lookout-sh/lookout/internal/chat"
)

const debounceTimer = "debounce"

// batchState is the debounce actor's state: elements queued but not yet
// flushed into the cache.
type batchState struct {
	pending []chat.Element
}

// elementsQueued delivers freshly mapped elements to the debounce actor.
type elementsQueued struct {
	actor.InputBase
	Elements []chat.Element
}

// flushNow forces an immediate flush, bypassing the quiet window.
type flushNow struct {
	actor.InputBase
}

// flushBatchEffect hands a coalesced batch to the runtime for cache append.
type flushBatchEffect struct {
	actor.EffectBase
	Elements []chat.Element
}

// batchReducer coalesces bursts: every arrival re-arms the debounce timer,
// so the flush happens one quiet window after the last element.
func batchReducer(window time.Duration) actor.ReducerFunc[batchState] {
	return func(s batchState, in actor.Input) (batchState, []actor.Effect) {
		switch in := in.(type) {
		case elementsQueued:
			if len(in.Elements) == 0 {
				return s, nil
			}
			s.pending = append(append([]chat.Element(nil), s.pending...), in.Elements...)
			return s, []actor.Effect{actor.StartTimerEffect{Name: debounceTimer, After: window}}

		case actor.TimerFired:
			if in.Name != debounceTimer || len(s.pending) == 0 {
				return s, nil
			}
			els := s.pending
			s.pending = nil
			return s, []actor.Effect{flushBatchEffect{Elements: els}}

		case flushNow:
			if len(s.pending) == 0 {
				return s, []actor.Effect{actor.CancelTimerEffect{Name: debounceTimer}}
			}
			els := s.pending
			s.pending = nil
			return s, []actor.Effect{
				actor.CancelTimerEffect{Name: debounceTimer},
				flushBatchEffect{Elements: els},
			}
		}
		return s, nil
	}
}

// flushRuntime interprets flush effects by applying the batch.
type flushRuntime struct {
	apply func([]chat.Element)
}

func (r *flushRuntime) HandleEffects(ctx context.Context, effects []actor.Effect, emit func(actor.Input)) {
	for _, eff := range effects {
		if flush, ok := eff.(flushBatchEffect); ok {
			r.apply(flush.Elements)
		}
	}
}

func (r *flushRuntime) Stop() {}

// batcher is the debounce actor plus its runtime wiring.
type batcher struct {
	act *actor.Actor[batchState]
}

func newBatcher(window time.Duration, apply func([]chat.Element)) *batcher {
	runtime := actor.NewTimerRuntime(&flushRuntime{apply: apply}, nil)
	return &batcher{
		act: actor.New(batchState{}, batchReducer(window), runtime),
	}
}

func (b *batcher) start() { b.act.Start() }
func (b *batcher) stop()  { b.act.Stop() }

func (b *batcher) queue(els []chat.Element) {
	if len(els) == 0 {
		return
	}
	b.act.Enqueue(elementsQueued{Elements: els})
}

func (b *batcher) flush() {
	b.act.Enqueue(flushNow{})
}
