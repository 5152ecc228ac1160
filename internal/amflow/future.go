package amflow

import (
	"context"
	"sync"
)

// Future is a single-settlement deferred result.
//
// The first settlement wins; later ones are silently ignored. The goroutine
// that settles is whichever one the wrapped backend invokes its callback on;
// Future starts no goroutines of its own.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// settle records the outcome if the future is still pending. Returns whether
// this call settled it.
func (f *Future[T]) settle(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// callback returns a ResultCallback that settles f. A nil error resolves;
// anything else rejects with that exact error value.
func (f *Future[T]) callback() ResultCallback[T] {
	return func(value T, err error) {
		if err != nil {
			var zero T
			f.settle(zero, err)
			return
		}
		f.settle(value, nil)
	}
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends. A ctx error only stops
// the wait; the underlying operation is not cancelled.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Settled reports whether the future has an outcome.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
