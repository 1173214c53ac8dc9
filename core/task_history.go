package core

import (
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// recentExecutions is the per-runner window returned by RecentTasks.
const recentExecutions = 100

// executionHistory keeps the last len(ring) records.
type executionHistory struct {
	mu   sync.Mutex
	ring []TaskExecutionRecord
	next int
	full bool
}

func newExecutionHistory(size int) *executionHistory {
	return &executionHistory{ring: make([]TaskExecutionRecord, max(size, 1))}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[h.next] = record
	h.next++
	if h.next == len(h.ring) {
		h.next = 0
		h.full = true
	}
}

// Recent returns up to limit records, newest first. A limit of zero or less
// returns everything kept.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	if h.full {
		size = len(h.ring)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]TaskExecutionRecord, limit)
	pos := h.next
	for i := range out {
		pos--
		if pos < 0 {
			pos = len(h.ring) - 1
		}
		out[i] = h.ring[pos]
	}
	return out
}

// resolveTaskName prefers explicit, then the function's symbol without its
// import path ("foundation/core.TestX" -> "core.TestX").
func resolveTaskName(task any, explicit string) string {
	const anonymous = "anonymous"
	if explicit != "" {
		return explicit
	}
	v := reflect.ValueOf(task)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return anonymous
	}
	fn := runtime.FuncForPC(v.Pointer())
	if fn == nil || fn.Name() == "" {
		return anonymous
	}
	name := fn.Name()
	return name[strings.LastIndexByte(name, '/')+1:]
}

// taskObserver runs tasks with panic recovery and publishes a record of
// every execution to the history ring, the metrics hooks and the sink.
type taskObserver struct {
	runnerName string
	runnerType string
	hooks      Hooks
	history    *executionHistory

	completed atomic.Uint64
	panicked  atomic.Uint64
}

func newTaskObserver(runnerName, runnerType string, hooks Hooks) *taskObserver {
	return &taskObserver{
		runnerName: runnerName,
		runnerType: runnerType,
		hooks:      hooks,
		history:    newExecutionHistory(recentExecutions),
	}
}

// run executes fn and reports whether it panicked. Panics never escape.
func (o *taskObserver) run(id TaskID, name string, workerID int, fn func()) (panicked bool) {
	startedAt := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			panicked = true
			o.panicked.Add(1)
			o.hooks.PanicHandler.HandlePanic(o.runnerName, workerID, rec, debug.Stack())
			o.hooks.Metrics.RecordTaskPanic(o.runnerName, rec)
		}
		finishedAt := time.Now()
		record := TaskExecutionRecord{
			TaskID:     id,
			Name:       name,
			RunnerName: o.runnerName,
			RunnerType: o.runnerType,
			ThreadID:   CurrentThreadID(),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   finishedAt.Sub(startedAt),
			Panicked:   panicked,
		}
		o.history.Add(record)
		o.hooks.Metrics.RecordTaskDuration(o.runnerName, record.Duration)
		if o.hooks.Sink != nil {
			o.hooks.Sink.Record(record)
		}
		o.completed.Add(1)
	}()

	fn()
	return false
}

func (o *taskObserver) runItem(item TaskItem, workerID int) bool {
	return o.run(item.ID, resolveTaskName(item.Task, item.Name), workerID, item.Task)
}

func (o *taskObserver) reject(reason string) {
	o.hooks.RejectedTaskHandler.HandleRejectedTask(o.runnerName, reason)
	o.hooks.Metrics.RecordTaskRejected(o.runnerName, reason)
}
