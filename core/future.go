package core

import (
	"context"
	"sync"
	"time"
)

// Future is the result handle returned by Commit. It resolves exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

func (f *Future[T]) fail(err error) {
	var zero T
	f.resolve(zero, err)
}

// Get blocks until the task has run and returns its result.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// GetContext is Get bounded by ctx.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) Wait() {
	<-f.done
}

// WaitTimeout reports whether the future resolved within d.
func (f *Future[T]) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-f.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// capture runs fn and converts a panic into a FOUNDATION_TASK_PANICKED error.
func capture[T any](owner string, fn func() (T, error)) (value T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			value = zero
			err = errTaskPanicked(owner, rec)
		}
	}()
	return fn()
}
