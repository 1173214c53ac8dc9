package core

import "time"

// LocalTime is a broken-down calendar time in the local time zone.
type LocalTime struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	Second int
}

// Time converts lt to a time.Time in time.Local. Out-of-range fields are
// normalized the way time.Date does.
func (lt LocalTime) Time() time.Time {
	return time.Date(lt.Year, lt.Month, lt.Day, lt.Hour, lt.Minute, lt.Second, 0, time.Local)
}

// LocalTimeOf breaks t down in the local time zone.
func LocalTimeOf(t time.Time) LocalTime {
	t = t.Local()
	return LocalTime{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}
}

// AbsoluteTimer fires callbacks once at wall-clock instants. Targets in the
// past fire as soon as the loop runs.
type AbsoluteTimer struct {
	*timerEngine
}

func NewAbsoluteTimer(opts TimerOptions) *AbsoluteTimer {
	return &AbsoluteTimer{timerEngine: newTimerEngine(RunnerTypeAbsoluteTimer, wallClock{}, opts)}
}

// AddAbsoluteTimerTask schedules cb at target. It returns 0 for a nil
// callback or a zero target.
func (a *AbsoluteTimer) AddAbsoluteTimerTask(cb func(), target time.Time) TimerID {
	if cb == nil || target.IsZero() {
		return 0
	}
	due := target.UnixNano()
	return a.add(&timerTask{
		name:   resolveTaskName(cb, ""),
		anchor: due,
		due:    due,
		callback: func(uint64) bool {
			cb()
			return false
		},
	})
}

// AddAbsoluteTimerTaskLocal schedules cb at a local calendar time.
func (a *AbsoluteTimer) AddAbsoluteTimerTaskLocal(cb func(), at LocalTime) TimerID {
	if at.Year <= 0 {
		return 0
	}
	return a.AddAbsoluteTimerTask(cb, at.Time())
}

// UpdateTimerTaskTarget moves a pending task to a new instant.
func (a *AbsoluteTimer) UpdateTimerTaskTarget(id TimerID, target time.Time) bool {
	if target.IsZero() {
		return false
	}
	due := target.UnixNano()
	return a.reschedule(id, func(t *timerTask) bool {
		if t.index < 0 {
			return false
		}
		t.anchor = due
		t.due = due
		return true
	})
}

// RemoveTimerTask cancels a pending task. It returns false for unknown ids.
func (a *AbsoluteTimer) RemoveTimerTask(id TimerID) bool {
	return a.remove(id, false)
}
