package core

import "container/heap"

// timerTask is one registered timer entry. All mutable fields are guarded by
// the owning timer's mutex.
type timerTask struct {
	id       TimerID
	name     string
	due      int64 // clock reading in nanoseconds
	anchor   int64 // registration time, then the due time of the last firing
	period   int64 // zero for one-shot tasks
	fired    uint64
	max      uint64 // zero means unlimited
	callback func(count uint64) bool

	index    int // heap slot, -1 while not queued
	inFlight bool
	removed  bool
	runner   uint64        // thread executing the current firing
	finished chan struct{} // closed when the current firing returns
}

// timerHeap orders tasks by due time, then by id.
type timerHeap []*timerTask

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].id < h[j].id
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	item := x.(*timerTask)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[:n-1]
	return item
}

func (h *timerHeap) Peek() *timerTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

func (h *timerHeap) schedule(t *timerTask) {
	if t.index >= 0 {
		heap.Fix(h, t.index)
		return
	}
	heap.Push(h, t)
}

func (h *timerHeap) unschedule(t *timerTask) {
	if t.index >= 0 {
		heap.Remove(h, t.index)
	}
}

func (h *timerHeap) popDue(now int64) *timerTask {
	if top := h.Peek(); top != nil && top.due <= now {
		return heap.Pop(h).(*timerTask)
	}
	return nil
}

func (h *timerHeap) clear() {
	for _, t := range *h {
		t.index = -1
	}
	*h = (*h)[:0]
}
