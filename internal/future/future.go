// Package future provides single-settlement results shared between the
// goroutine that produces a value and any number of goroutines waiting on it.
package future

import (
	"context"
	"sync"
)

// Future holds a value or error that becomes available exactly once
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New creates an unsettled future
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future with v.
// Returns false if the future was already settled.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject settles the future with err.
// Returns false if the future was already settled.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done returns a channel closed once the future settles
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled returns true if the future has a value or error
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx is done.
// Cancelling ctx only abandons this wait, the future still settles.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
