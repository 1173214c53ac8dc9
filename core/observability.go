package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	RunnerName string
	RunnerType string
	ThreadID   uint64
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// Runner types reported in TaskExecutionRecord.RunnerType.
const (
	RunnerTypeThreadPool     = "thread_pool"
	RunnerTypeAdvancedThread = "advanced_thread"
	RunnerTypeRelativeTimer  = "relative_timer"
	RunnerTypeAbsoluteTimer  = "absolute_timer"
)

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	Name          string
	Workers       int
	CoreWorkers   int
	MaxWorkers    int
	Idle          int
	Active        int
	Queued        int
	QueueCapacity int
	Completed     uint64
	Panicked      uint64
	Dropped       uint64
	Running       bool
	Closed        bool
	CollectedAt   time.Time
}

// ThreadStats represents runtime observability state for an AdvancedThread.
type ThreadStats struct {
	Name        string
	ThreadID    uint64
	Queued      int
	Completed   uint64
	Panicked    uint64
	Dropped     uint64
	Running     bool
	Automatic   bool
	CollectedAt time.Time
}

// TimerStats represents runtime observability state for a timer.
type TimerStats struct {
	Name        string
	Pending     int
	InFlight    int
	Fired       uint64
	Panicked    uint64
	Running     bool
	Automatic   bool
	CollectedAt time.Time
}
