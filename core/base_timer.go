package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// TimerOptions configures a RelativeTimer or AbsoluteTimer.
type TimerOptions struct {
	Name string

	// Manual timers run nothing until Start. Other timers start on the
	// first added task and stop their loop after IdleTimeout without
	// registered tasks.
	Manual bool

	// Pool runs callbacks when set; otherwise they run on the timer thread
	// and must be short.
	Pool *ThreadPool

	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	Hooks
}

// timerClock abstracts the time base of a timer.
type timerClock interface {
	now() int64
	// wait blocks until due, a mutation signal on ev, or an intermediate
	// wake-up chosen by the clock.
	wait(ev *Event, now, due int64)
}

var steadyBase = time.Now()

// steadyClock reads the monotonic clock as an offset from process start.
type steadyClock struct{}

func (steadyClock) now() int64 { return int64(time.Since(steadyBase)) }

func (steadyClock) wait(ev *Event, now, due int64) {
	ev.WaitTimeout(time.Duration(due - now))
}

// wallClock reads the adjustable system clock.
type wallClock struct{}

func (wallClock) now() int64 { return time.Now().UnixNano() }

// wait re-checks the wall clock at least every tenth of the remaining time
// once more than a second is left, so clock adjustments are noticed.
func (wallClock) wait(ev *Event, now, due int64) {
	d := time.Duration(due - now)
	if d > time.Second {
		d /= 10
	}
	ev.WaitTimeout(d)
}

// timerEngine is the scheduling loop shared by both timer kinds.
type timerEngine struct {
	name       string
	runnerType string
	opts       TimerOptions
	clock      timerClock
	observer   *taskObserver

	mu    sync.Mutex
	heap  timerHeap
	tasks map[TimerID]*timerTask

	controlMu  sync.Mutex
	running    atomic.Bool
	generation atomic.Uint64
	done       chan struct{}
	threadID   atomic.Uint64
	wake       *Event

	nextID atomic.Uint64
	fired  atomic.Uint64
}

func newTimerEngine(runnerType string, clock timerClock, opts TimerOptions) *timerEngine {
	if opts.Name == "" {
		opts.Name = runnerType
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	opts.Hooks = opts.Hooks.withDefaults()

	return &timerEngine{
		name:       opts.Name,
		runnerType: runnerType,
		opts:       opts,
		clock:      clock,
		observer:   newTaskObserver(opts.Name, runnerType, opts.Hooks),
		tasks:      make(map[TimerID]*timerTask),
		wake:       NewEvent(),
	}
}

func (e *timerEngine) Name() string { return e.name }

func (e *timerEngine) IsRunning() bool { return e.running.Load() }

// IsCurrent reports whether the caller is the timer's scheduling thread.
func (e *timerEngine) IsCurrent() bool {
	id := e.threadID.Load()
	return id != 0 && id == CurrentThreadID()
}

// Start launches the scheduling thread. It is a no-op when running or when
// called from the scheduling thread.
func (e *timerEngine) Start() {
	if e.IsCurrent() {
		return
	}
	e.controlMu.Lock()
	defer e.controlMu.Unlock()
	if e.running.Load() {
		return
	}

	gen := e.generation.Add(1)
	e.done = make(chan struct{})
	e.running.Store(true)
	go e.loop(gen, e.done)

	e.opts.Logger.Debug("timer started", F("timer", e.name))
}

// Stop ends the scheduling thread and forgets every registered task.
// A callback already running finishes but is not rescheduled.
func (e *timerEngine) Stop() {
	e.controlMu.Lock()
	defer e.controlMu.Unlock()

	if e.running.Swap(false) {
		e.generation.Add(1)
		e.wake.Notify()
		if !e.IsCurrent() {
			<-e.done
		}
	}

	e.mu.Lock()
	cleared := len(e.tasks)
	for id, t := range e.tasks {
		t.removed = true
		delete(e.tasks, id)
	}
	e.heap.clear()
	e.mu.Unlock()

	e.opts.Logger.Debug("timer stopped",
		F("timer", e.name),
		F("cleared", cleared))
}

func (e *timerEngine) add(t *timerTask) TimerID {
	t.id = TimerID(e.nextID.Add(1))
	t.index = -1

	e.mu.Lock()
	e.tasks[t.id] = t
	e.heap.schedule(t)
	e.mu.Unlock()

	e.wake.Notify()
	if !e.opts.Manual {
		e.Start()
	}
	return t.id
}

// remove forgets a task. With wait set it also waits for a firing of that
// task that is in progress on another thread.
func (e *timerEngine) remove(id TimerID, wait bool) bool {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	delete(e.tasks, id)
	e.heap.unschedule(t)
	t.removed = true

	var finished chan struct{}
	if wait && t.inFlight && t.runner != CurrentThreadID() {
		finished = t.finished
	}
	e.mu.Unlock()

	e.wake.Notify()
	if finished != nil {
		<-finished
	}
	return true
}

// reschedule changes the next due time of a pending task via fn. A task
// that is firing keeps the change for its next computation.
func (e *timerEngine) reschedule(id TimerID, fn func(t *timerTask) bool) bool {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	if !fn(t) {
		e.mu.Unlock()
		return false
	}
	if t.index >= 0 {
		e.heap.schedule(t)
	}
	e.mu.Unlock()

	e.wake.Notify()
	return true
}

// TaskCount returns the number of registered tasks, firing ones included.
func (e *timerEngine) TaskCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *timerEngine) Stats() TimerStats {
	e.mu.Lock()
	pending := e.heap.Len()
	inFlight := len(e.tasks) - pending
	e.mu.Unlock()

	return TimerStats{
		Name:        e.name,
		Pending:     pending,
		InFlight:    inFlight,
		Fired:       e.fired.Load(),
		Panicked:    e.observer.panicked.Load(),
		Running:     e.running.Load(),
		Automatic:   !e.opts.Manual,
		CollectedAt: timecache.CachedTime(),
	}
}

// RecentTasks returns up to limit firing records, newest first.
func (e *timerEngine) RecentTasks(limit int) []TaskExecutionRecord {
	return e.observer.history.Recent(limit)
}

type dueFiring struct {
	task  *timerTask
	count uint64
	due   int64
}

func (e *timerEngine) loop(gen uint64, done chan struct{}) {
	defer close(done)

	tid := lockThread(e.name + "-Timer")
	e.threadID.Store(tid)
	defer e.threadID.CompareAndSwap(tid, 0)

	var batch []dueFiring
	for e.generation.Load() == gen {
		e.mu.Lock()
		top := e.heap.Peek()
		if top == nil {
			e.mu.Unlock()
			if e.waitIdle(gen) {
				return
			}
			continue
		}

		now := e.clock.now()
		if top.due > now {
			e.mu.Unlock()
			e.clock.wait(e.wake, now, top.due)
			continue
		}

		batch = batch[:0]
		for t := e.heap.popDue(now); t != nil; t = e.heap.popDue(now) {
			t.inFlight = true
			t.finished = make(chan struct{})
			batch = append(batch, dueFiring{task: t, count: t.fired, due: t.due})
		}
		e.mu.Unlock()

		for _, f := range batch {
			e.opts.Metrics.RecordTimerLateness(e.name, time.Duration(now-f.due))
			e.dispatch(f)
		}
	}
}

// waitIdle parks the loop while no task is queued. An automatic timer with
// no registered task exits after IdleTimeout; waitIdle then returns true.
func (e *timerEngine) waitIdle(gen uint64) bool {
	if e.opts.Manual {
		e.wake.Wait()
		return false
	}
	if e.wake.WaitTimeout(e.opts.IdleTimeout) {
		return false
	}
	if !e.controlMu.TryLock() {
		return false
	}
	defer e.controlMu.Unlock()

	if e.generation.Load() != gen {
		return true
	}
	e.mu.Lock()
	empty := len(e.tasks) == 0
	e.mu.Unlock()
	if !empty {
		return false
	}
	e.running.Store(false)
	e.generation.Add(1)
	e.opts.Logger.Debug("idle timer exited", F("timer", e.name))
	return true
}

func (e *timerEngine) dispatch(f dueFiring) {
	pool := e.opts.Pool
	if pool == nil {
		e.fire(f)
		return
	}
	err := pool.commit(TaskItem{
		Name:   f.task.name,
		Task:   func() { e.fire(f) },
		OnDrop: func() { e.skip(f) },
	})
	if err != nil && !HasCode(err, ErrCodeTaskDropped) {
		e.opts.Logger.Warn("timer dispatch failed, running inline",
			F("timer", e.name),
			F("task", f.task.id.String()),
			F("error", err))
		e.fire(f)
	}
}

// fire runs one callback and puts the task back in the heap when it is
// still wanted.
func (e *timerEngine) fire(f dueFiring) {
	t := f.task

	e.mu.Lock()
	t.runner = CurrentThreadID()
	e.mu.Unlock()

	keep := true
	panicked := e.observer.run(TaskID(t.id), t.name, -1, func() {
		keep = t.callback(f.count)
	})
	if panicked {
		keep = true
	}
	e.fired.Add(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	t.fired++
	e.settleLocked(t)
	if t.removed {
		return
	}
	if !keep || t.period <= 0 || (t.max > 0 && t.fired >= t.max) {
		delete(e.tasks, t.id)
		return
	}
	e.scheduleNextLocked(t)
}

// skip handles a firing the pool discarded before running it, because the
// pool was stopped. The firing is not counted. A period task moves on to
// its next period; a one-shot task is queued again at its due time and
// fires on the next dispatch.
func (e *timerEngine) skip(f dueFiring) {
	t := f.task

	e.mu.Lock()
	defer e.mu.Unlock()

	e.settleLocked(t)
	if t.removed {
		return
	}
	if t.period <= 0 {
		e.heap.schedule(t)
		e.wake.Notify()
		return
	}
	e.scheduleNextLocked(t)
	e.opts.Logger.Debug("timer firing dropped by pool",
		F("timer", e.name),
		F("task", t.id.String()))
}

// settleLocked ends the in-flight state of t and releases
// RemoveTimerTaskWait callers.
func (e *timerEngine) settleLocked(t *timerTask) {
	t.inFlight = false
	t.runner = 0
	close(t.finished)
}

// scheduleNextLocked moves t one period past its last due time, skipping
// periods already in the past.
func (e *timerEngine) scheduleNextLocked(t *timerTask) {
	t.anchor = t.due
	next := t.anchor + t.period
	if now := e.clock.now(); next <= now {
		skipped := (now-t.anchor)/t.period + 1
		next = t.anchor + skipped*t.period
	}
	t.due = next
	e.heap.schedule(t)
	e.wake.Notify()
}
