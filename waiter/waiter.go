// Package waiter provides a one-shot, replayable future: callers block
// until a value becomes available, re-checking on every change signal.
//
// A Waiter wraps a getter for a value that may not exist yet. Await
// returns immediately when the getter already yields a value; otherwise
// it suspends until Broadcast fires and re-checks, because a single
// signal may not carry the final value. Any number of goroutines may
// await concurrently, and a waiter registered after the value became
// available still observes it immediately (no lost wakeup).
package waiter

import (
	"context"
	"sync"
)

// Waiter is a replayable future over a value of type V. The zero value
// is not usable; create waiters with New.
type Waiter[V any] struct {
	mu  sync.Mutex
	ch  chan struct{}
	get func() (V, bool)
}

// New creates a Waiter over the given getter. The getter must be safe
// for concurrent use and reports whether the value is available yet.
func New[V any](get func() (V, bool)) *Waiter[V] {
	return &Waiter[V]{
		ch:  make(chan struct{}),
		get: get,
	}
}

// GetIfReady returns the value without blocking, reporting whether it
// was available.
func (w *Waiter[V]) GetIfReady() (V, bool) {
	return w.get()
}

// Await returns the value, blocking until it becomes available or the
// context is cancelled. The getter is re-checked on every Broadcast.
func (w *Waiter[V]) Await(ctx context.Context) (V, error) {
	for {
		// Capture the current signal channel before checking the getter.
		// A Broadcast racing the check closes the captured channel, so the
		// value can never appear without waking this waiter.
		w.mu.Lock()
		ch := w.ch
		w.mu.Unlock()

		if v, ok := w.get(); ok {
			return v, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
}

// Broadcast wakes all pending awaiters so they re-check the getter.
// Safe to call whether or not the value actually changed.
func (w *Waiter[V]) Broadcast() {
	w.mu.Lock()
	close(w.ch)
	w.ch = make(chan struct{})
	w.mu.Unlock()
}
