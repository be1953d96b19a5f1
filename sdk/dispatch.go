package sdk

import (
	"fmt"
	"sync"
)

type dispatchResult struct {
	value interface{}
	err   error
}

// dispatcher serializes all client work onto a single goroutine.
//
// The event stream, connection-state stream, and user-initiated actions all
// funnel through this queue, so session state, the element cache, and the
// watch machine never see concurrent mutation.
type dispatcher struct {
	once sync.Once
	q    chan func()
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q: make(chan func(), queueSize),
	}
	d.once.Do(func() {
		go func() {
			for fn := range d.q {
				if fn != nil {
					fn()
				}
			}
		}()
	})
	return d
}

// do enqueues work without waiting for it.
func (d *dispatcher) do(fn func()) error {
	if d == nil {
		return fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil
	}
	d.q <- fn
	return nil
}

// call enqueues work and waits for its result.
func (d *dispatcher) call(fn func() (interface{}, error)) (interface{}, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil, nil
	}
	done := make(chan dispatchResult, 1)
	d.q <- func() {
		value, err := fn()
		done <- dispatchResult{value: value, err: err}
	}
	res := <-done
	return res.value, res.err
}
