package foundation

import "github.com/zeus-go/foundation/core"

// Re-export commonly used types from core so most callers need a single
// import.

// Task is the unit of work.
type Task = core.Task

// TimerID identifies a timer task; the zero value is never issued.
type TimerID = core.TimerID

type (
	ThreadPool     = core.ThreadPool
	PoolOptions    = core.PoolOptions
	AdvancedThread = core.AdvancedThread
	ThreadOptions  = core.ThreadOptions
	RelativeTimer  = core.RelativeTimer
	AbsoluteTimer  = core.AbsoluteTimer
	TimerOptions   = core.TimerOptions
	LocalTime      = core.LocalTime
	PeriodOption   = core.PeriodOption
	Hooks          = core.Hooks
	Logger         = core.Logger
)

// Synchronization helpers.
type (
	Event         = core.Event
	Latch         = core.Latch
	ThreadChecker = core.ThreadChecker
)

// MutexObject guards a value with a mutex.
type MutexObject[T any] = core.MutexObject[T]

// Future is the pending result of Commit or InvokeValue.
type Future[T any] = core.Future[T]

// Snapshot types.
type (
	PoolStats           = core.PoolStats
	ThreadStats         = core.ThreadStats
	TimerStats          = core.TimerStats
	TaskExecutionRecord = core.TaskExecutionRecord
)

var (
	NewThreadPool     = core.NewThreadPool
	NewAdvancedThread = core.NewAdvancedThread
	NewRelativeTimer  = core.NewRelativeTimer
	NewAbsoluteTimer  = core.NewAbsoluteTimer
	NewEvent          = core.NewEvent
	NewLatch          = core.NewLatch
	NewThreadChecker  = core.NewThreadChecker
	WithMaxFirings    = core.WithMaxFirings
	WithTaskName      = core.WithTaskName
	CurrentThreadID   = core.CurrentThreadID
	LocalTimeOf       = core.LocalTimeOf
)

// NewMutexObject wraps value in a MutexObject.
func NewMutexObject[T any](value T) *MutexObject[T] {
	return core.NewMutexObject(value)
}

// Commit runs fn on the pool and returns its pending result.
func Commit[T any](p *ThreadPool, fn func() (T, error)) *Future[T] {
	return core.Commit(p, fn)
}

// InvokeValue runs fn on the thread and waits for its result.
func InvokeValue[T any](t *AdvancedThread, fn func() (T, error)) (T, error) {
	return core.InvokeValue(t, fn)
}
