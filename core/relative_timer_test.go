package core

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTimer(t *testing.T, opts TimerOptions) *RelativeTimer {
	t.Helper()
	timer := NewRelativeTimer(opts)
	t.Cleanup(timer.Stop)
	return timer
}

// TestRelativeTimer_DelayTask verifies one-shot timing
// Given: a timer built from zero-value options, never started
// When: a 200ms delay task is added
// Then: it fires once, near its due time, and is then forgotten
func TestRelativeTimer_DelayTask(t *testing.T) {
	// Arrange
	timer := newTestTimer(t, TimerOptions{Name: "delay"})
	start := time.Now()
	fired := make(chan time.Duration, 2)

	// Act
	id := timer.AddDelayTimerTask(func() { fired <- time.Since(start) }, 200*time.Millisecond)

	// Assert
	if id.IsZero() {
		t.Fatal("AddDelayTimerTask returned the zero id")
	}
	select {
	case elapsed := <-fired:
		if elapsed < 190*time.Millisecond || elapsed > 400*time.Millisecond {
			t.Errorf("elapsed: got = %v, want about 200ms", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delay task did not fire")
	}

	time.Sleep(50 * time.Millisecond)
	if len(fired) != 0 {
		t.Error("delay task fired twice")
	}
	if timer.RemoveTimerTask(id) {
		t.Error("RemoveTimerTask after a one-shot fired: got = true, want false")
	}
	if timer.TaskCount() != 0 {
		t.Errorf("TaskCount: got = %d, want 0", timer.TaskCount())
	}
}

// TestRelativeTimer_PeriodTaskStopsOnFalse verifies the continuation result
// Given: a period task that returns false once its count reaches 10
// When: the timer runs
// Then: the callback runs 11 times with counts 0 through 10
func TestRelativeTimer_PeriodTaskStopsOnFalse(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "period"})

	var mu sync.Mutex
	var counts []uint64
	done := make(chan struct{})
	timer.AddPeriodTimerTask(func(count uint64) bool {
		mu.Lock()
		counts = append(counts, count)
		mu.Unlock()
		if count == 10 {
			close(done)
			return false
		}
		return true
	}, 20*time.Millisecond)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("period task did not reach count 10")
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 11 {
		t.Fatalf("firings: got = %d, want 11", len(counts))
	}
	for i, c := range counts {
		if c != uint64(i) {
			t.Errorf("count[%d] = %d, want %d", i, c, i)
		}
	}
	if timer.TaskCount() != 0 {
		t.Errorf("TaskCount after completion: got = %d, want 0", timer.TaskCount())
	}
}

func TestRelativeTimer_WithMaxFirings(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "capped"})

	var calls atomic.Int32
	timer.AddSimplePeriodTimerTask(func() { calls.Add(1) }, 10*time.Millisecond, WithMaxFirings(3))

	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Errorf("firings: got = %d, want 3", got)
	}
}

// TestRelativeTimer_NoDrift verifies rescheduling from the due time
// Given: a 50ms period task whose callback takes 30ms
// When: it fires ten times
// Then: the span between first and tenth firing stays near 9 periods
// instead of growing by the callback time on every firing
func TestRelativeTimer_NoDrift(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "drift"})

	var mu sync.Mutex
	var stamps []time.Time
	done := make(chan struct{})
	timer.AddPeriodTimerTask(func(count uint64) bool {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		if count == 9 {
			close(done)
			return false
		}
		return true
	}, 50*time.Millisecond)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("period task did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	span := stamps[len(stamps)-1].Sub(stamps[0])
	if span < 430*time.Millisecond || span > 600*time.Millisecond {
		t.Errorf("span of 10 firings: got = %v, want about 450ms", span)
	}
}

// TestRelativeTimer_Remove tests task removal
// Main test items:
// 1. Removing a live period task returns true and stops further firings
// 2. Removing it again, or an unknown id, returns false
func TestRelativeTimer_Remove(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "remove"})

	var calls atomic.Int32
	id := timer.AddSimplePeriodTimerTask(func() { calls.Add(1) }, 20*time.Millisecond)
	time.Sleep(70 * time.Millisecond)

	if !timer.RemoveTimerTask(id) {
		t.Fatal("RemoveTimerTask on a live task: got = false, want true")
	}
	// at most one firing already in progress may still complete
	time.Sleep(10 * time.Millisecond)
	after := calls.Load()
	time.Sleep(80 * time.Millisecond)

	if calls.Load() != after {
		t.Errorf("task fired after removal: %d -> %d", after, calls.Load())
	}
	if timer.RemoveTimerTask(id) {
		t.Error("second RemoveTimerTask: got = true, want false")
	}
	if timer.RemoveTimerTask(id + 1000) {
		t.Error("RemoveTimerTask on an unknown id: got = true, want false")
	}
}

// TestRelativeTimer_RemoveWaitBlocksForFiring verifies RemoveTimerTaskWait
// Given: a period task whose callback is running
// When: RemoveTimerTaskWait is called from another goroutine
// Then: it returns only after the running callback finished
func TestRelativeTimer_RemoveWaitBlocksForFiring(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "removewait"})

	entered := make(chan struct{}, 1)
	var finished atomic.Bool
	id := timer.AddPeriodTimerTask(func(uint64) bool {
		select {
		case entered <- struct{}{}:
		default:
		}
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return true
	}, 10*time.Millisecond)

	<-entered
	if !timer.RemoveTimerTaskWait(id) {
		t.Fatal("RemoveTimerTaskWait: got = false, want true")
	}
	if !finished.Load() {
		t.Error("RemoveTimerTaskWait returned while the callback was running")
	}
}

// TestRelativeTimer_UpdatePeriod verifies period updates
// Main test items:
// 1. A pending delay task updated from 100ms to 300ms fires at about 300ms
// 2. A period task updated from inside its callback uses the new period next
func TestRelativeTimer_UpdatePeriod(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "update"})

	start := time.Now()
	fired := make(chan time.Duration, 1)
	id := timer.AddDelayTimerTask(func() { fired <- time.Since(start) }, 100*time.Millisecond)
	if !timer.UpdateTimerTaskPeriod(id, 300*time.Millisecond) {
		t.Fatal("UpdateTimerTaskPeriod on a pending task: got = false, want true")
	}
	select {
	case elapsed := <-fired:
		if elapsed < 280*time.Millisecond || elapsed > 500*time.Millisecond {
			t.Errorf("updated delay fired at %v, want about 300ms", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("updated delay task did not fire")
	}

	var periodID atomic.Uint64
	stamps := make(chan time.Time, 3)
	pid := timer.AddPeriodTimerTask(func(count uint64) bool {
		stamps <- time.Now()
		if count == 0 {
			timer.UpdateTimerTaskPeriod(TimerID(periodID.Load()), 200*time.Millisecond)
		}
		return count < 1
	}, 50*time.Millisecond)
	periodID.Store(uint64(pid))

	first, second := <-stamps, <-stamps
	if gap := second.Sub(first); gap < 180*time.Millisecond || gap > 350*time.Millisecond {
		t.Errorf("gap after update: got = %v, want about 200ms", gap)
	}

	if timer.UpdateTimerTaskPeriod(id, time.Second) {
		t.Error("UpdateTimerTaskPeriod on a fired one-shot: got = true, want false")
	}
	if timer.UpdateTimerTaskPeriod(pid, 0) {
		t.Error("UpdateTimerTaskPeriod with zero period: got = true, want false")
	}
}

// TestRelativeTimer_Manual verifies manual start and Stop
// Given: a manual timer with a 100ms period task
// When: 200ms pass before Start
// Then: nothing fires before Start, the overdue task fires right after it,
// and Stop forgets every task
func TestRelativeTimer_Manual(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "manual", Manual: true})

	fired := make(chan time.Time, 8)
	id := timer.AddSimplePeriodTimerTask(func() { fired <- time.Now() }, 100*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	if len(fired) != 0 || timer.IsRunning() {
		t.Fatal("manual timer fired before Start")
	}

	started := time.Now()
	timer.Start()
	select {
	case at := <-fired:
		if at.Sub(started) > 80*time.Millisecond {
			t.Errorf("overdue task fired %v after Start, want immediately", at.Sub(started))
		}
	case <-time.After(time.Second):
		t.Fatal("task did not fire after Start")
	}

	timer.Stop()
	if timer.TaskCount() != 0 {
		t.Errorf("TaskCount after Stop: got = %d, want 0", timer.TaskCount())
	}
	if timer.RemoveTimerTask(id) {
		t.Error("RemoveTimerTask after Stop: got = true, want false")
	}
}

// TestRelativeTimer_PoolDispatch verifies callbacks run on the pool
func TestRelativeTimer_PoolDispatch(t *testing.T) {
	pool := newTestPool(t, PoolOptions{Name: "timer-pool", CoreSize: 2})
	timer := newTestTimer(t, TimerOptions{Name: "pooled", Pool: pool})

	onPool := make(chan bool, 1)
	timer.AddDelayTimerTask(func() { onPool <- pool.IsPoolThread() }, 10*time.Millisecond)

	select {
	case ok := <-onPool:
		if !ok {
			t.Error("callback did not run on a pool worker")
		}
	case <-time.After(time.Second):
		t.Fatal("pooled delay task did not fire")
	}
}

// TestRelativeTimer_AddFromCallback verifies recursion safety
// Given: an inline timer
// When: a callback adds another task to the same timer
// Then: the new task fires and nothing deadlocks
func TestRelativeTimer_AddFromCallback(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "recursive"})

	done := make(chan struct{})
	timer.AddDelayTimerTask(func() {
		if !timer.IsCurrent() {
			t.Error("inline callback should run on the timer thread")
		}
		timer.AddDelayTimerTask(func() { close(done) }, 10*time.Millisecond)
	}, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task added from a callback did not fire")
	}
}

// TestRelativeTimer_PanicKeepsTask verifies panic containment for timers
func TestRelativeTimer_PanicKeepsTask(t *testing.T) {
	handler := &recordingPanicHandler{}
	timer := newTestTimer(t, TimerOptions{Name: "panicky", Hooks: Hooks{PanicHandler: handler}})

	var calls atomic.Int32
	timer.AddSimplePeriodTimerTask(func() {
		if calls.Add(1) == 1 {
			panic("first firing fails")
		}
	}, 20*time.Millisecond, WithMaxFirings(3))

	if !waitFor(t, time.Second, func() bool { return calls.Load() == 3 }) {
		t.Fatalf("firings: got = %d, want 3", calls.Load())
	}
	if handler.count() != 1 {
		t.Errorf("panics handled: got = %d, want 1", handler.count())
	}
	if got := timer.Stats().Panicked; got != 1 {
		t.Errorf("Stats().Panicked: got = %d, want 1", got)
	}
}

func TestRelativeTimer_IDsAreUniqueAndIncreasing(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "ids", Manual: true})

	var last TimerID
	for range 100 {
		id := timer.AddDelayTimerTask(func() {}, time.Hour)
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
	if timer.AddDelayTimerTask(nil, time.Second) != 0 {
		t.Error("nil callback should yield the zero id")
	}
	if timer.AddPeriodTimerTask(func(uint64) bool { return true }, 0) != 0 {
		t.Error("zero period should yield the zero id")
	}
}

// TestRelativeTimer_AutomaticIdleExit verifies the automatic loop lifetime
func TestRelativeTimer_AutomaticIdleExit(t *testing.T) {
	timer := newTestTimer(t, TimerOptions{Name: "idle", IdleTimeout: 100 * time.Millisecond})

	fired := make(chan struct{}, 2)
	timer.AddDelayTimerTask(func() { fired <- struct{}{} }, 10*time.Millisecond)
	<-fired

	if !waitFor(t, 2*time.Second, func() bool { return !timer.IsRunning() }) {
		t.Fatal("automatic timer did not stop after idling")
	}

	timer.AddDelayTimerTask(func() { fired <- struct{}{} }, 10*time.Millisecond)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not restart for a new task")
	}
}

// blockPool occupies the only worker of pool until the returned func is
// called.
func blockPool(t *testing.T, pool *ThreadPool) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	if err := pool.CommitTask(func() { <-gate }); err != nil {
		t.Fatalf("CommitTask: %v", err)
	}
	if !waitFor(t, time.Second, func() bool { return pool.ActiveTaskCount() == 1 }) {
		t.Fatal("blocking task did not start")
	}
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// TestRelativeTimer_PoolStoppedWithQueuedFiring verifies drop-on-stop of a
// firing waiting in the pool queue
// Given: a period task dispatched to a one-worker pool whose worker is busy
// When: the pool is stopped while the firing is queued, then started again
// Then: the task keeps firing, is not reported in flight, and
// RemoveTimerTaskWait returns
func TestRelativeTimer_PoolStoppedWithQueuedFiring(t *testing.T) {
	// Arrange
	pool := newTestPool(t, PoolOptions{Name: "stoppable", CoreSize: 1})
	release := blockPool(t, pool)
	defer release()

	timer := newTestTimer(t, TimerOptions{Name: "queued", Pool: pool})
	var fired atomic.Int32
	id := timer.AddSimplePeriodTimerTask(func() { fired.Add(1) }, 20*time.Millisecond)
	if !waitFor(t, time.Second, func() bool { return pool.QueuedTaskCount() == 1 }) {
		t.Fatal("firing was not queued on the pool")
	}

	// Act
	time.AfterFunc(50*time.Millisecond, release)
	pool.Stop()
	pool.Start()

	// Assert
	if !waitFor(t, 2*time.Second, func() bool { return fired.Load() >= 2 }) {
		t.Fatalf("fired after restart: got = %d, want >= 2", fired.Load())
	}
	removed := make(chan bool, 1)
	go func() { removed <- timer.RemoveTimerTaskWait(id) }()
	select {
	case ok := <-removed:
		if !ok {
			t.Error("RemoveTimerTaskWait: got = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RemoveTimerTaskWait did not return")
	}
	if got := timer.Stats().InFlight; got != 0 {
		t.Errorf("InFlight after removal: got = %d, want 0", got)
	}
}

// TestRelativeTimer_PoolClosedWithQueuedFiring verifies a one-shot firing
// dropped by Close still runs
// Given: a delay task queued on a busy one-worker pool
// When: the pool is closed
// Then: the task fires once, on the timer thread since the pool is gone
func TestRelativeTimer_PoolClosedWithQueuedFiring(t *testing.T) {
	pool := newTestPool(t, PoolOptions{Name: "closable", CoreSize: 1})
	release := blockPool(t, pool)
	defer release()

	timer := newTestTimer(t, TimerOptions{Name: "oneshot", Pool: pool})
	onPool := make(chan bool, 2)
	timer.AddDelayTimerTask(func() { onPool <- pool.IsPoolThread() }, 10*time.Millisecond)
	if !waitFor(t, time.Second, func() bool { return pool.QueuedTaskCount() == 1 }) {
		t.Fatal("firing was not queued on the pool")
	}

	time.AfterFunc(50*time.Millisecond, release)
	pool.Close()

	select {
	case inPool := <-onPool:
		if inPool {
			t.Error("firing ran on the closed pool")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dropped one-shot firing never ran")
	}
	time.Sleep(50 * time.Millisecond)
	if len(onPool) != 0 || timer.TaskCount() != 0 {
		t.Errorf("after firing: extra = %d, TaskCount = %d, want 0, 0", len(onPool), timer.TaskCount())
	}
}
