package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lookout-sh/lookout/internal/actor"
	"github.com/lookout-sh/lookout/internal/chat"
)

func TestBatchReducer_QueueArmsDebounceTimer(t *testing.T) {
	t.Parallel()

	reduce := batchReducer(100 * time.Millisecond)
	state, effects := actor.Step(batchState{}, elementsQueued{
		Elements: []chat.Element{{ID: "a"}},
	}, reduce)

	require.Len(t, state.pending, 1)
	require.Len(t, effects, 1)
	timer, ok := effects[0].(actor.StartTimerEffect)
	require.True(t, ok)
	require.Equal(t, debounceTimer, timer.Name)
	require.Equal(t, 100*time.Millisecond, timer.After)
}

func TestBatchReducer_EachArrivalRearmsTimer(t *testing.T) {
	t.Parallel()

	reduce := batchReducer(100 * time.Millisecond)
	state, _ := actor.Step(batchState{}, elementsQueued{Elements: []chat.Element{{ID: "a"}}}, reduce)
	state, effects := actor.Step(state, elementsQueued{Elements: []chat.Element{{ID: "b"}}}, reduce)

	require.Len(t, state.pending, 2)
	// The new arrival restarts the quiet window rather than stacking timers.
	require.Len(t, effects, 1)
	_, ok := effects[0].(actor.StartTimerEffect)
	require.True(t, ok)
}

func TestBatchReducer_TimerFiredFlushesPending(t *testing.T) {
	t.Parallel()

	reduce := batchReducer(100 * time.Millisecond)
	state, _ := actor.Step(batchState{}, elementsQueued{Elements: []chat.Element{{ID: "a"}, {ID: "b"}}}, reduce)
	state, effects := actor.Step(state, actor.TimerFired{Name: debounceTimer}, reduce)

	require.Empty(t, state.pending)
	require.Len(t, effects, 1)
	flush, ok := effects[0].(flushBatchEffect)
	require.True(t, ok)
	require.Len(t, flush.Elements, 2)
}

func TestBatchReducer_SpuriousTimerIsIgnored(t *testing.T) {
	t.Parallel()

	reduce := batchReducer(100 * time.Millisecond)
	state, effects := actor.Step(batchState{}, actor.TimerFired{Name: debounceTimer}, reduce)
	require.Empty(t, state.pending)
	require.Empty(t, effects)
}

func TestBatchReducer_FlushNowCancelsTimerAndFlushes(t *testing.T) {
	t.Parallel()

	reduce := batchReducer(100 * time.Millisecond)
	state, _ := actor.Step(batchState{}, elementsQueued{Elements: []chat.Element{{ID: "a"}}}, reduce)
	state, effects := actor.Step(state, flushNow{}, reduce)

	require.Empty(t, state.pending)
	require.Len(t, effects, 2)
	_, ok := effects[0].(actor.CancelTimerEffect)
	require.True(t, ok)
	flush, ok := effects[1].(flushBatchEffect)
	require.True(t, ok)
	require.Len(t, flush.Elements, 1)
}
