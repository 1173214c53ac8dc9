package core

import "time"

// RelativeTimer fires callbacks after delays and at fixed periods measured
// on the monotonic clock.
//
// Periodic tasks are rescheduled from their previous due time, never from
// the moment the callback returned, so they do not drift. Periods missed
// while a callback overran are skipped rather than replayed.
type RelativeTimer struct {
	*timerEngine
}

// NewRelativeTimer returns a timer. Manual timers must be started with
// Start before any task fires.
func NewRelativeTimer(opts TimerOptions) *RelativeTimer {
	return &RelativeTimer{timerEngine: newTimerEngine(RunnerTypeRelativeTimer, steadyClock{}, opts)}
}

// PeriodOption tunes a periodic task.
type PeriodOption func(t *timerTask)

// WithMaxFirings stops the task after n firings. Zero means unlimited.
func WithMaxFirings(n uint64) PeriodOption {
	return func(t *timerTask) { t.max = n }
}

// WithTaskName sets the name reported in execution history.
func WithTaskName(name string) PeriodOption {
	return func(t *timerTask) { t.name = name }
}

// AddPeriodTimerTask fires cb every period until cb returns false, the task
// is removed, or its firing limit is reached. cb receives the zero-based
// number of previous firings.
func (r *RelativeTimer) AddPeriodTimerTask(cb func(count uint64) bool, period time.Duration, opts ...PeriodOption) TimerID {
	if cb == nil || period <= 0 {
		return 0
	}
	now := r.clock.now()
	t := &timerTask{
		name:     resolveTaskName(cb, ""),
		anchor:   now,
		due:      now + int64(period),
		period:   int64(period),
		callback: cb,
	}
	for _, opt := range opts {
		opt(t)
	}
	return r.add(t)
}

// AddSimplePeriodTimerTask fires cb every period until removed.
func (r *RelativeTimer) AddSimplePeriodTimerTask(cb func(), period time.Duration, opts ...PeriodOption) TimerID {
	if cb == nil {
		return 0
	}
	opts = append([]PeriodOption{WithTaskName(resolveTaskName(cb, ""))}, opts...)
	return r.AddPeriodTimerTask(func(uint64) bool {
		cb()
		return true
	}, period, opts...)
}

// AddDelayTimerTask fires cb once after delay. A non-positive delay fires
// as soon as the loop runs.
func (r *RelativeTimer) AddDelayTimerTask(cb func(), delay time.Duration) TimerID {
	if cb == nil {
		return 0
	}
	if delay < 0 {
		delay = 0
	}
	now := r.clock.now()
	return r.add(&timerTask{
		name:   resolveTaskName(cb, ""),
		anchor: now,
		due:    now + int64(delay),
		callback: func(uint64) bool {
			cb()
			return false
		},
	})
}

// RemoveTimerTask cancels a task. It returns false for unknown ids. A firing
// already in progress completes but the task is not rescheduled.
func (r *RelativeTimer) RemoveTimerTask(id TimerID) bool {
	return r.remove(id, false)
}

// RemoveTimerTaskWait is RemoveTimerTask that also waits for a firing in
// progress on another thread.
func (r *RelativeTimer) RemoveTimerTaskWait(id TimerID) bool {
	return r.remove(id, true)
}

// UpdateTimerTaskPeriod changes the period of a task. A pending task is
// re-timed to its last due time (or registration time) plus the new period;
// a firing task uses the new period for its next due time. For a delay task
// the new value replaces the delay.
func (r *RelativeTimer) UpdateTimerTaskPeriod(id TimerID, period time.Duration) bool {
	if period <= 0 {
		return false
	}
	return r.reschedule(id, func(t *timerTask) bool {
		if t.period > 0 {
			t.period = int64(period)
		}
		if t.index >= 0 {
			t.due = t.anchor + int64(period)
		}
		return true
	})
}
