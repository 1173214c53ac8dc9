package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

const (
	// DefaultIdleTimeout is how long a temporary worker waits for work
	// before exiting.
	DefaultIdleTimeout = time.Minute

	defaultCoreSize           = 2
	defaultExpansionThreshold = 1
)

// PoolOptions configures a ThreadPool.
type PoolOptions struct {
	Name string

	// CoreSize workers live from Start until Stop. Zero is allowed only with
	// AutoExpansion, which turns the pool into an on-demand thread.
	CoreSize int

	// AutoExpansion lets the pool add temporary workers up to MaxSize when
	// tasks queue up faster than they are consumed.
	AutoExpansion bool

	// MaxSize caps the number of workers. Zero means runtime.GOMAXPROCS(0).
	MaxSize int

	// Manual pools do not start on first submission; tasks stay queued
	// until Start is called.
	Manual bool

	// QueueCapacity bounds the number of queued tasks. Submitters outside the
	// pool block while the queue is full. Zero means unbounded.
	QueueCapacity int

	// ExpansionThreshold is the number of queued tasks tolerated before a
	// temporary worker is added.
	ExpansionThreshold int

	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	Hooks
}

// DefaultPoolOptions mirrors a plain two-worker automatic pool.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		Name:               "pool",
		CoreSize:           defaultCoreSize,
		ExpansionThreshold: defaultExpansionThreshold,
		IdleTimeout:        DefaultIdleTimeout,
	}
}

// Validate checks the option combination.
func (o PoolOptions) Validate() error {
	switch {
	case o.CoreSize < 0:
		return errors.New(ErrCodeInvalidConfig, "core size must not be negative").WithContext("pool", o.Name)
	case o.CoreSize == 0 && !o.AutoExpansion:
		return errors.New(ErrCodeInvalidConfig, "a pool without core workers needs auto expansion").WithContext("pool", o.Name)
	case o.MaxSize < 0:
		return errors.New(ErrCodeInvalidConfig, "max size must not be negative").WithContext("pool", o.Name)
	case o.QueueCapacity < 0:
		return errors.New(ErrCodeInvalidConfig, "queue capacity must not be negative").WithContext("pool", o.Name)
	case o.IdleTimeout < 0:
		return errors.New(ErrCodeInvalidConfig, "idle timeout must not be negative").WithContext("pool", o.Name)
	}
	return nil
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.Name == "" {
		o.Name = "pool"
	}
	if o.MaxSize == 0 {
		o.MaxSize = runtime.GOMAXPROCS(0)
	}
	if o.MaxSize < o.CoreSize {
		o.MaxSize = o.CoreSize
	}
	if o.MaxSize < 1 {
		o.MaxSize = 1
	}
	if o.ExpansionThreshold < 0 {
		o.ExpansionThreshold = 0
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	o.Hooks = o.Hooks.withDefaults()
	return o
}

// ThreadPool runs tasks on a set of dedicated OS threads.
//
// Tasks are consumed in submission order. Stop discards queued tasks, waits
// for running ones and joins the workers; a later Start brings up fresh
// workers without replaying anything.
type ThreadPool struct {
	opts     PoolOptions
	queue    *TaskQueue
	observer *taskObserver

	controlMu   sync.Mutex
	running     atomic.Bool
	closed      atomic.Bool
	generation  atomic.Uint64
	wake        atomic.Pointer[Event]
	wg          *sync.WaitGroup
	workerCount atomic.Int32
	nextWorker  int

	threadMu  sync.RWMutex
	threadIDs map[uint64]struct{}

	idle    atomic.Int32
	active  atomic.Int32
	dropped atomic.Uint64
}

// NewThreadPool builds a pool. Automatic pools start on the first
// submission.
func NewThreadPool(opts PoolOptions) (*ThreadPool, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	p := &ThreadPool{
		opts:      opts,
		queue:     NewTaskQueue(),
		observer:  newTaskObserver(opts.Name, RunnerTypeThreadPool, opts.Hooks),
		wg:        &sync.WaitGroup{},
		threadIDs: make(map[uint64]struct{}),
	}
	p.queue.SetCapacity(opts.QueueCapacity)
	p.wake.Store(NewEvent())
	return p, nil
}

// MustNewThreadPool is NewThreadPool that panics on invalid options.
func MustNewThreadPool(opts PoolOptions) *ThreadPool {
	p, err := NewThreadPool(opts)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *ThreadPool) Name() string { return p.opts.Name }

// SetTaskBlockQueueSize sets the queue bound; 0 means unbounded.
func (p *ThreadPool) SetTaskBlockQueueSize(n int) {
	p.queue.SetCapacity(n)
}

// IsRunning reports whether the pool has live workers.
func (p *ThreadPool) IsRunning() bool {
	return p.running.Load()
}

// IsPoolThread reports whether the caller is one of this pool's workers.
func (p *ThreadPool) IsPoolThread() bool {
	id := CurrentThreadID()
	p.threadMu.RLock()
	defer p.threadMu.RUnlock()
	_, ok := p.threadIDs[id]
	return ok
}

// Start brings up the core workers. It is a no-op when the pool is already
// running, closed, or when called from one of its own workers.
func (p *ThreadPool) Start() {
	if p.closed.Load() || p.IsPoolThread() {
		return
	}
	p.controlMu.Lock()
	defer p.controlMu.Unlock()
	if !p.running.Load() {
		p.startLocked()
	}
}

func (p *ThreadPool) startLocked() {
	p.generation.Add(1)
	p.wake.Store(NewEvent())
	p.wg = &sync.WaitGroup{}
	p.workerCount.Store(0)
	p.running.Store(true)

	for range p.opts.CoreSize {
		p.spawnLocked(true)
	}
	if p.opts.CoreSize == 0 && p.queue.Len() > 0 {
		p.spawnLocked(false)
	}
	p.opts.Logger.Debug("thread pool started",
		F("pool", p.opts.Name),
		F("core", p.opts.CoreSize),
		F("max", p.opts.MaxSize))
}

func (p *ThreadPool) spawnLocked(core bool) {
	n := p.workerCount.Add(1)
	p.nextWorker++
	p.wg.Add(1)
	go p.workerLoop(p.generation.Load(), p.nextWorker, core, p.wg, p.wake.Load())
	p.opts.Metrics.RecordWorkerCount(p.opts.Name, int(n))
}

// Stop discards queued tasks, lets running tasks finish and joins the
// workers. Called from a worker it does not wait for that worker.
func (p *ThreadPool) Stop() {
	p.controlMu.Lock()
	defer p.controlMu.Unlock()
	p.stopLocked()
}

func (p *ThreadPool) stopLocked() {
	wasRunning := p.running.Swap(false)
	if wasRunning {
		p.generation.Add(1)
		p.wake.Load().NotifyAll()
	}

	p.queue.Interrupt()
	dropped := p.queue.Clear()
	for _, item := range dropped {
		item.drop()
	}
	if n := len(dropped); n > 0 {
		p.dropped.Add(uint64(n))
		p.observer.reject(fmt.Sprintf("stopped with %d queued tasks", n))
	}

	if wasRunning {
		if !p.IsPoolThread() {
			p.wg.Wait()
		}
		p.workerCount.Store(0)
		p.opts.Metrics.RecordWorkerCount(p.opts.Name, 0)
	}
	p.opts.Logger.Debug("thread pool stopped",
		F("pool", p.opts.Name),
		F("dropped", len(dropped)))
}

// Close stops the pool and rejects every later submission.
func (p *ThreadPool) Close() {
	p.controlMu.Lock()
	defer p.controlMu.Unlock()
	p.closed.Store(true)
	p.stopLocked()
}

// CommitTask queues task for execution.
//
// From outside the pool it blocks while the bounded queue is full and
// returns a FOUNDATION_TASK_DROPPED error if Stop interrupts the wait. From
// a pool worker it never blocks, so tasks may submit follow-up tasks
// without deadlocking.
func (p *ThreadPool) CommitTask(task Task) error {
	return p.commit(TaskItem{Task: task})
}

// CommitNamedTask is CommitTask with an explicit name for execution history.
func (p *ThreadPool) CommitNamedTask(name string, task Task) error {
	return p.commit(TaskItem{Task: task, Name: name})
}

func (p *ThreadPool) commit(item TaskItem) error {
	if item.Task == nil {
		return errNilTask(p.opts.Name)
	}
	if p.closed.Load() {
		p.observer.reject("closed")
		return errPoolClosed(p.opts.Name)
	}
	if item.ID.IsZero() {
		item.ID = GenerateTaskID()
	}

	inPool := p.IsPoolThread()
	if inPool {
		p.queue.Push(item)
	} else if !p.queue.PushWait(item) {
		p.dropped.Add(1)
		p.observer.reject("stopped while waiting for queue space")
		item.drop()
		return errTaskDropped(p.opts.Name)
	}

	p.wake.Load().Notify()
	p.opts.Metrics.RecordQueueDepth(p.opts.Name, p.queue.Len())

	if !inPool {
		p.ensureWorkers()
	}
	return nil
}

// ensureWorkers starts an automatic pool and adds a temporary worker when
// the backlog outgrows the idle workers.
func (p *ThreadPool) ensureWorkers() {
	if p.running.Load() && !p.opts.AutoExpansion {
		return
	}

	p.controlMu.Lock()
	defer p.controlMu.Unlock()

	if !p.running.Load() {
		if p.opts.Manual || p.closed.Load() {
			return
		}
		p.startLocked()
	}
	workers := int(p.workerCount.Load())
	if !p.opts.AutoExpansion || workers >= p.opts.MaxSize {
		return
	}

	queued := p.queue.Len()
	if queued == 0 {
		return
	}
	if workers == 0 || (queued > p.opts.ExpansionThreshold && queued > int(p.idle.Load())) {
		p.spawnLocked(false)
		p.opts.Logger.Debug("thread pool expanded",
			F("pool", p.opts.Name),
			F("workers", workers+1),
			F("queued", queued))
	}
}

func (p *ThreadPool) workerLoop(gen uint64, workerID int, core bool, wg *sync.WaitGroup, wake *Event) {
	defer wg.Done()

	kind := "temp"
	if core {
		kind = "core"
	}
	tid := lockThread(fmt.Sprintf("TP[%s]%s", p.opts.Name, kind))
	p.registerThread(tid)
	defer p.unregisterThread(tid)

	for p.generation.Load() == gen {
		item, ok := p.queue.Pop()
		if ok {
			if p.generation.Load() != gen {
				p.dropped.Add(1)
				item.drop()
				return
			}
			if !p.queue.IsEmpty() {
				wake.Notify()
			}
			p.active.Add(1)
			p.observer.runItem(item, workerID)
			p.active.Add(-1)
			continue
		}

		p.idle.Add(1)
		woken := true
		if core {
			wake.Wait()
		} else {
			woken = wake.WaitTimeout(p.opts.IdleTimeout)
		}
		p.idle.Add(-1)

		if !woken && p.retire(gen) {
			return
		}
	}
}

// retire removes an idle temporary worker. It fails when the pool is busy
// changing state or work arrived in the meantime.
func (p *ThreadPool) retire(gen uint64) bool {
	if !p.controlMu.TryLock() {
		return false
	}
	defer p.controlMu.Unlock()

	if p.generation.Load() != gen {
		return true
	}
	if !p.queue.IsEmpty() {
		return false
	}
	n := p.workerCount.Add(-1)
	p.opts.Metrics.RecordWorkerCount(p.opts.Name, int(n))
	p.opts.Logger.Debug("idle worker exited",
		F("pool", p.opts.Name),
		F("workers", n))
	return true
}

func (p *ThreadPool) registerThread(id uint64) {
	p.threadMu.Lock()
	defer p.threadMu.Unlock()
	p.threadIDs[id] = struct{}{}
}

func (p *ThreadPool) unregisterThread(id uint64) {
	p.threadMu.Lock()
	defer p.threadMu.Unlock()
	delete(p.threadIDs, id)
}

// WorkerCount returns the number of workers owned by the current run.
func (p *ThreadPool) WorkerCount() int {
	return int(p.workerCount.Load())
}

func (p *ThreadPool) QueuedTaskCount() int { return p.queue.Len() }

func (p *ThreadPool) ActiveTaskCount() int { return int(p.active.Load()) }

// Stats returns a point-in-time snapshot.
func (p *ThreadPool) Stats() PoolStats {
	return PoolStats{
		Name:          p.opts.Name,
		Workers:       p.WorkerCount(),
		CoreWorkers:   p.opts.CoreSize,
		MaxWorkers:    p.opts.MaxSize,
		Idle:          int(p.idle.Load()),
		Active:        int(p.active.Load()),
		Queued:        p.queue.Len(),
		QueueCapacity: p.queue.Capacity(),
		Completed:     p.observer.completed.Load(),
		Panicked:      p.observer.panicked.Load(),
		Dropped:       p.dropped.Load(),
		Running:       p.running.Load(),
		Closed:        p.closed.Load(),
		CollectedAt:   timecache.CachedTime(),
	}
}

// RecentTasks returns up to limit execution records, newest first.
func (p *ThreadPool) RecentTasks(limit int) []TaskExecutionRecord {
	return p.observer.history.Recent(limit)
}

// Commit runs fn on the pool and returns a Future for its result. A panic in
// fn resolves the future with a FOUNDATION_TASK_PANICKED error; a task
// discarded by Stop resolves it with FOUNDATION_TASK_DROPPED.
func Commit[T any](p *ThreadPool, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	if fn == nil {
		f.fail(errNilTask(p.opts.Name))
		return f
	}

	item := TaskItem{
		Name: resolveTaskName(fn, ""),
		Task: func() {
			f.resolve(capture(p.opts.Name, fn))
		},
		OnDrop: func() {
			f.fail(errTaskDropped(p.opts.Name))
		},
	}
	if err := p.commit(item); err != nil {
		f.fail(err)
	}
	return f
}

// Submit is Commit for a task without a result.
func (p *ThreadPool) Submit(task Task) *Future[struct{}] {
	if task == nil {
		f := newFuture[struct{}]()
		f.fail(errNilTask(p.opts.Name))
		return f
	}
	return Commit(p, func() (struct{}, error) {
		task()
		return struct{}{}, nil
	})
}
