package core

import (
	"sync"
	"time"
)

// Latch is a countdown synchronizer: waiters are released once the count
// reaches zero.
type Latch struct {
	mu    sync.Mutex
	count int
	done  chan struct{}
}

// NewLatch returns a latch that opens after count calls to CountDown.
func NewLatch(count int) *Latch {
	l := &Latch{count: count, done: make(chan struct{})}
	if count <= 0 {
		l.count = 0
		close(l.done)
	}
	return l
}

// CountDown decrements the count, releasing waiters when it hits zero.
// Calls past zero are ignored.
func (l *Latch) CountDown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return
	}
	l.count--
	if l.count == 0 {
		close(l.done)
	}
}

// Reset forces the count to zero and releases every waiter.
func (l *Latch) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return
	}
	l.count = 0
	close(l.done)
}

// Count returns the remaining count.
func (l *Latch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Latch) Wait() {
	<-l.done
}

// WaitTimeout reports whether the latch opened within d.
func (l *Latch) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.done:
		return true
	case <-timer.C:
		return false
	}
}

func (l *Latch) WaitUntil(deadline time.Time) bool {
	return l.WaitTimeout(time.Until(deadline))
}
