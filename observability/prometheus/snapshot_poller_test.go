package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zeus-go/foundation/core"
)

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

type threadStub struct {
	stats core.ThreadStats
}

func (s threadStub) Stats() core.ThreadStats { return s.stats }

func TestSnapshotPoller_CollectsStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("foundation", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:    4,
		Active:    2,
		Idle:      1,
		Workers:   8,
		Completed: 10,
		Running:   true,
	}})
	poller.AddThread("thread-a", threadStub{stats: core.ThreadStats{
		Queued:    3,
		Completed: 5,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		queued := testutil.ToFloat64(poller.threadQueued.WithLabelValues("thread-a"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return queued == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.threadRunning.WithLabelValues("thread-a")); got != 0 {
		t.Fatalf("thread running gauge = %v, want 0", got)
	}
}

// TestSnapshotPoller_RealTimer verifies polling of a live timer
// Given: a relative timer with one registered period task
// When: the poller runs
// Then: the pending gauge reports the task and follows its removal
func TestSnapshotPoller_RealTimer(t *testing.T) {
	timer := core.NewRelativeTimer(core.TimerOptions{Name: "polled"})
	defer timer.Stop()
	id := timer.AddSimplePeriodTimerTask(func() {}, time.Hour)

	poller, err := NewSnapshotPoller("", prom.NewRegistry(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	poller.AddTimer(timer.Name(), timer)
	poller.Start(context.Background())
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.timerPending.WithLabelValues("polled")) == 1
	})
	timer.RemoveTimerTask(id)
	assertEventually(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(poller.timerPending.WithLabelValues("polled")) == 0
	})
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("foundation", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()

	// Restart, then stop through the context.
	ctx2, cancel2 := context.WithCancel(context.Background())
	poller.Start(ctx2)
	cancel2()
	assertEventually(t, time.Second, func() bool {
		poller.stateMu.Lock()
		defer poller.stateMu.Unlock()
		return poller.timer == nil
	})
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
