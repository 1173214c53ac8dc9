package core

import (
	"strconv"
	"sync/atomic"
)

// Task is the unit of work executed by pools, dedicated threads and timers.
type Task func()

// TaskID identifies a queued task for history and tracing.
type TaskID uint64

var taskIDCounter atomic.Uint64

// GenerateTaskID returns a process-unique, non-zero TaskID.
func GenerateTaskID() TaskID {
	return TaskID(taskIDCounter.Add(1))
}

func (id TaskID) IsZero() bool { return id == 0 }

func (id TaskID) String() string {
	return "task-" + strconv.FormatUint(uint64(id), 10)
}

// TimerID is the handle returned when a timer task is registered.
// The zero value is never issued and means "no task".
type TimerID uint64

func (id TimerID) IsZero() bool { return id == 0 }

func (id TimerID) String() string {
	return "timer-" + strconv.FormatUint(uint64(id), 10)
}

// TaskItem is a queued unit of work together with its bookkeeping.
type TaskItem struct {
	ID   TaskID
	Task Task
	Name string

	// OnDrop runs when the item is discarded without being executed,
	// for example when the owning pool or thread is stopped.
	OnDrop func()
}

func (item TaskItem) drop() {
	if item.OnDrop != nil {
		item.OnDrop()
	}
}
