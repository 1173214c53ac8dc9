package core

import (
	"context"
	"sync"
	"time"
)

// Event is an auto-reset signal with a sticky broadcast mode.
//
// Notify releases exactly one waiter, present or future; the waiter consumes
// the signal. NotifyAll releases every current and future waiter until Reset.
// The zero value is ready to use.
type Event struct {
	mu     sync.Mutex
	signal chan struct{}
	all    chan struct{}
	allSet bool
}

// NewEvent returns a ready Event.
func NewEvent() *Event {
	e := &Event{}
	e.init()
	return e
}

func (e *Event) init() {
	if e.signal == nil {
		e.signal = make(chan struct{}, 1)
		e.all = make(chan struct{})
	}
}

func (e *Event) channels() (chan struct{}, chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.init()
	return e.signal, e.all
}

// Notify wakes one waiter. Repeated calls with no waiter collapse into one.
func (e *Event) Notify() {
	signal, _ := e.channels()
	select {
	case signal <- struct{}{}:
	default:
	}
}

// NotifyAll wakes all waiters and keeps the event set until Reset.
func (e *Event) NotifyAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.init()
	if !e.allSet {
		close(e.all)
		e.allSet = true
	}
}

// Reset clears both the pending single signal and the broadcast flag.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.init()
	select {
	case <-e.signal:
	default:
	}
	if e.allSet {
		e.all = make(chan struct{})
		e.allSet = false
	}
}

// Wait blocks until the event is signalled.
func (e *Event) Wait() {
	signal, all := e.channels()
	select {
	case <-signal:
	case <-all:
	}
}

// WaitTimeout blocks until the event is signalled or d elapses.
// It reports whether the event was signalled.
func (e *Event) WaitTimeout(d time.Duration) bool {
	signal, all := e.channels()
	if d <= 0 {
		select {
		case <-signal:
			return true
		case <-all:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-signal:
		return true
	case <-all:
		return true
	case <-timer.C:
		return false
	}
}

// WaitUntil blocks until the event is signalled or the deadline passes.
func (e *Event) WaitUntil(deadline time.Time) bool {
	return e.WaitTimeout(time.Until(deadline))
}

// WaitContext blocks until the event is signalled or ctx is done.
func (e *Event) WaitContext(ctx context.Context) error {
	signal, all := e.channels()
	select {
	case <-signal:
		return nil
	case <-all:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
