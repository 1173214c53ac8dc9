package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// ThreadOptions configures an AdvancedThread.
type ThreadOptions struct {
	// Automatic threads start on the first Post or Invoke and stop
	// themselves after IdleTimeout without work.
	Automatic bool

	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	Hooks
}

// AdvancedThread is one dedicated OS thread with its own FIFO task queue.
type AdvancedThread struct {
	name     string
	opts     ThreadOptions
	queue    *TaskQueue
	wake     *Event
	observer *taskObserver

	// stateMu is held for reading while a task is enqueued, so Stop can
	// drain the queue knowing nothing else is being added behind it.
	stateMu    sync.RWMutex
	running    atomic.Bool
	generation atomic.Uint64
	done       chan struct{}
	threadID   atomic.Uint64
	dropped    atomic.Uint64
}

// NewAdvancedThread returns a stopped thread.
func NewAdvancedThread(name string, opts ThreadOptions) *AdvancedThread {
	if name == "" {
		name = "thread"
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	opts.Hooks = opts.Hooks.withDefaults()

	return &AdvancedThread{
		name:     name,
		opts:     opts,
		queue:    NewTaskQueue(),
		wake:     NewEvent(),
		observer: newTaskObserver(name, RunnerTypeAdvancedThread, opts.Hooks),
	}
}

func (t *AdvancedThread) Name() string { return t.name }

// ID returns the OS thread id while running, zero otherwise.
func (t *AdvancedThread) ID() uint64 { return t.threadID.Load() }

func (t *AdvancedThread) IsRunning() bool { return t.running.Load() }

// IsCurrent reports whether the caller runs on this thread.
func (t *AdvancedThread) IsCurrent() bool {
	id := t.threadID.Load()
	return id != 0 && id == CurrentThreadID()
}

// Start launches the thread. It returns false when already running, and
// true without doing anything when called from the thread itself.
func (t *AdvancedThread) Start() bool {
	if t.IsCurrent() {
		return true
	}

	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	if t.running.Load() {
		return false
	}
	t.startLocked()
	return true
}

func (t *AdvancedThread) startLocked() {
	gen := t.generation.Add(1)
	t.done = make(chan struct{})
	t.running.Store(true)

	ready := make(chan struct{})
	go t.loop(gen, t.done, ready)
	<-ready

	t.opts.Logger.Debug("thread started", F("thread", t.name))
}

// Stop ends the thread. The running task finishes, queued tasks are
// dropped and the thread is joined unless Stop runs on the thread itself.
func (t *AdvancedThread) Stop() {
	t.stateMu.Lock()
	if !t.running.Load() {
		t.stateMu.Unlock()
		return
	}
	t.running.Store(false)
	t.generation.Add(1)
	done := t.done
	// Cleared before unlocking: a Post that restarts an automatic thread
	// after this point belongs to the new run.
	dropped := t.queue.Clear()
	t.stateMu.Unlock()

	t.wake.Notify()
	if !t.IsCurrent() {
		<-done
	}

	for _, item := range dropped {
		item.drop()
	}
	if n := len(dropped); n > 0 {
		t.dropped.Add(uint64(n))
		t.observer.reject(fmt.Sprintf("stopped with %d queued tasks", n))
	}
	t.opts.Logger.Debug("thread stopped",
		F("thread", t.name),
		F("dropped", len(dropped)))
}

// Post queues task without waiting for it. A stopped thread rejects the
// task unless it is automatic, in which case it is started.
func (t *AdvancedThread) Post(task Task) error {
	return t.enqueue(TaskItem{Task: task})
}

// PostNamedTask is Post with an explicit name for execution history.
func (t *AdvancedThread) PostNamedTask(name string, task Task) error {
	return t.enqueue(TaskItem{Task: task, Name: name})
}

func (t *AdvancedThread) enqueue(item TaskItem) error {
	if item.Task == nil {
		return errNilTask(t.name)
	}
	if item.ID.IsZero() {
		item.ID = GenerateTaskID()
	}

	for {
		t.stateMu.RLock()
		if t.running.Load() {
			t.queue.Push(item)
			t.stateMu.RUnlock()
			t.wake.Notify()
			return nil
		}
		t.stateMu.RUnlock()

		if !t.opts.Automatic {
			t.observer.reject("not running")
			return errThreadStopped(t.name)
		}
		t.Start()
	}
}

// Invoke runs task on the thread and waits for it to finish. Called from
// the thread itself it runs task inline. A panic in task is returned as a
// FOUNDATION_TASK_PANICKED error.
func (t *AdvancedThread) Invoke(task Task) error {
	if task == nil {
		return errNilTask(t.name)
	}
	if t.IsCurrent() {
		_, err := capture(t.name, func() (struct{}, error) {
			task()
			return struct{}{}, nil
		})
		return err
	}

	result := make(chan error, 1)
	item := TaskItem{
		Name: resolveTaskName(task, ""),
		Task: func() {
			_, err := capture(t.name, func() (struct{}, error) {
				task()
				return struct{}{}, nil
			})
			result <- err
		},
		OnDrop: func() {
			result <- errTaskDropped(t.name)
		},
	}
	if err := t.enqueue(item); err != nil {
		return err
	}
	return <-result
}

// InvokeValue runs fn on the thread and returns its result.
func InvokeValue[T any](t *AdvancedThread, fn func() (T, error)) (T, error) {
	var (
		value T
		ferr  error
	)
	if fn == nil {
		return value, errNilTask(t.name)
	}
	err := t.Invoke(func() {
		value, ferr = fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value, ferr
}

func (t *AdvancedThread) loop(gen uint64, done chan struct{}, ready chan struct{}) {
	defer close(done)

	tid := lockThread(t.name)
	t.threadID.Store(tid)
	close(ready)
	defer t.threadID.CompareAndSwap(tid, 0)

	for t.generation.Load() == gen {
		item, ok := t.queue.Pop()
		if ok {
			if t.generation.Load() != gen {
				t.dropped.Add(1)
				item.drop()
				return
			}
			t.observer.runItem(item, -1)
			continue
		}

		if !t.opts.Automatic {
			t.wake.Wait()
			continue
		}
		if t.wake.WaitTimeout(t.opts.IdleTimeout) {
			continue
		}
		if t.retire(gen) {
			return
		}
	}
}

// retire stops an automatic thread that ran out of work.
func (t *AdvancedThread) retire(gen uint64) bool {
	if !t.stateMu.TryLock() {
		return false
	}
	defer t.stateMu.Unlock()

	if t.generation.Load() != gen {
		return true
	}
	if !t.queue.IsEmpty() {
		return false
	}
	t.running.Store(false)
	t.generation.Add(1)
	t.opts.Logger.Debug("idle thread exited", F("thread", t.name))
	return true
}

// Stats returns a point-in-time snapshot.
func (t *AdvancedThread) Stats() ThreadStats {
	return ThreadStats{
		Name:        t.name,
		ThreadID:    t.threadID.Load(),
		Queued:      t.queue.Len(),
		Completed:   t.observer.completed.Load(),
		Panicked:    t.observer.panicked.Load(),
		Dropped:     t.dropped.Load(),
		Running:     t.running.Load(),
		Automatic:   t.opts.Automatic,
		CollectedAt: timecache.CachedTime(),
	}
}

// RecentTasks returns up to limit execution records, newest first.
func (t *AdvancedThread) RecentTasks(limit int) []TaskExecutionRecord {
	return t.observer.history.Recent(limit)
}
