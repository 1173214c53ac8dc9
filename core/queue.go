package core

import (
	"sync"

	"github.com/eapache/queue"
)

// TaskQueue is a FIFO of TaskItems with an optional bound.
//
// Producers using PushWait block while the queue holds Capacity items.
// Interrupt releases every blocked producer without enqueuing its item.
type TaskQueue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	items    *queue.Queue
	capacity int
	epoch    uint64
}

// NewTaskQueue returns an unbounded queue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{items: queue.New()}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// SetCapacity sets the bound checked by PushWait. Zero or negative means
// unbounded.
func (q *TaskQueue) SetCapacity(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < 0 {
		n = 0
	}
	q.capacity = n
	q.notFull.Broadcast()
}

func (q *TaskQueue) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Push enqueues item regardless of the bound.
func (q *TaskQueue) Push(item TaskItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Add(item)
}

// PushWait enqueues item, blocking while the queue is full. It returns false
// if Interrupt was called while it waited; the item is not enqueued then.
func (q *TaskQueue) PushWait(item TaskItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	epoch := q.epoch
	for q.capacity > 0 && q.items.Length() >= q.capacity {
		q.notFull.Wait()
		if q.epoch != epoch {
			return false
		}
	}
	q.items.Add(item)
	return true
}

// Pop removes the oldest item. It never blocks.
func (q *TaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return TaskItem{}, false
	}
	item := q.items.Remove().(TaskItem)
	q.notFull.Signal()
	return item, true
}

func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

func (q *TaskQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Interrupt wakes every producer blocked in PushWait and makes it give up.
func (q *TaskQueue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.epoch++
	q.notFull.Broadcast()
}

// Clear removes and returns every queued item in FIFO order.
func (q *TaskQueue) Clear() []TaskItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.items.Length()
	if n == 0 {
		return nil
	}
	out := make([]TaskItem, 0, n)
	for q.items.Length() > 0 {
		out = append(out, q.items.Remove().(TaskItem))
	}
	q.notFull.Broadcast()
	return out
}
