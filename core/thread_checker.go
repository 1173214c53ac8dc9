package core

import "sync/atomic"

// ThreadChecker asserts that calls happen on a single OS thread.
//
// A checker created detached binds to the first thread that calls IsCurrent.
// Thread identity is only stable for goroutines locked with
// runtime.LockOSThread, which is the case for every pool worker, dedicated
// thread and timer loop.
type ThreadChecker struct {
	threadID atomic.Uint64
}

// NewThreadChecker returns a checker, attached to the calling thread when
// attach is true.
func NewThreadChecker(attach bool) *ThreadChecker {
	c := &ThreadChecker{}
	if attach {
		c.threadID.Store(CurrentThreadID())
	}
	return c
}

// IsCurrent reports whether the caller runs on the attached thread.
func (c *ThreadChecker) IsCurrent() bool {
	current := CurrentThreadID()
	if c.threadID.CompareAndSwap(0, current) {
		return true
	}
	return c.threadID.Load() == current
}

// Detach releases the binding; the next IsCurrent call re-attaches.
func (c *ThreadChecker) Detach() {
	c.threadID.Store(0)
}
