package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/zeus-go/foundation/core"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// ThreadSnapshotProvider provides current thread stats snapshots.
type ThreadSnapshotProvider interface {
	Stats() core.ThreadStats
}

// TimerSnapshotProvider provides current timer stats snapshots.
type TimerSnapshotProvider interface {
	Stats() core.TimerStats
}

// SnapshotPoller periodically exports pool, thread and timer Stats()
// snapshots into Prometheus gauges. Polling runs as a period task on its
// own RelativeTimer.
type SnapshotPoller struct {
	interval time.Duration

	mu      sync.RWMutex
	pools   map[string]PoolSnapshotProvider
	threads map[string]ThreadSnapshotProvider
	timers  map[string]TimerSnapshotProvider

	poolQueued    *prom.GaugeVec
	poolActive    *prom.GaugeVec
	poolIdle      *prom.GaugeVec
	poolWorkers   *prom.GaugeVec
	poolCompleted *prom.GaugeVec
	poolDropped   *prom.GaugeVec
	poolRunning   *prom.GaugeVec

	threadQueued    *prom.GaugeVec
	threadCompleted *prom.GaugeVec
	threadRunning   *prom.GaugeVec

	timerPending  *prom.GaugeVec
	timerInFlight *prom.GaugeVec
	timerFired    *prom.GaugeVec
	timerRunning  *prom.GaugeVec

	stateMu sync.Mutex
	timer   *core.RelativeTimer
	taskID  core.TimerID
	stopped chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval: interval,
		pools:    make(map[string]PoolSnapshotProvider),
		threads:  make(map[string]ThreadSnapshotProvider),
		timers:   make(map[string]TimerSnapshotProvider),
	}

	s := &collectorSet{namespace: namespace, reg: reg}
	for _, g := range []struct {
		dst   **prom.GaugeVec
		name  string
		help  string
		label string
	}{
		{&p.poolQueued, "pool_queued", "Queued tasks per pool.", "pool"},
		{&p.poolActive, "pool_active", "Active tasks per pool.", "pool"},
		{&p.poolIdle, "pool_idle", "Idle workers per pool.", "pool"},
		{&p.poolWorkers, "pool_workers", "Worker count per pool.", "pool"},
		{&p.poolCompleted, "pool_completed_total", "Pool completed task count snapshot.", "pool"},
		{&p.poolDropped, "pool_dropped_total", "Pool dropped task count snapshot.", "pool"},
		{&p.poolRunning, "pool_running", "Pool running state (1=running, 0=stopped).", "pool"},
		{&p.threadQueued, "thread_queued", "Queued tasks per thread.", "thread"},
		{&p.threadCompleted, "thread_completed_total", "Thread completed task count snapshot.", "thread"},
		{&p.threadRunning, "thread_running", "Thread running state (1=running, 0=stopped).", "thread"},
		{&p.timerPending, "timer_pending", "Registered tasks per timer.", "timer"},
		{&p.timerInFlight, "timer_in_flight", "Timer callbacks currently executing.", "timer"},
		{&p.timerFired, "timer_fired_total", "Timer firing count snapshot.", "timer"},
		{&p.timerRunning, "timer_running", "Timer thread state (1=running, 0=stopped).", "timer"},
	} {
		*g.dst = s.gauge(g.name, g.help, g.label)
	}
	if s.err != nil {
		return nil, s.err
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.pools[labelOr(name, "pool")] = provider
	p.mu.Unlock()
}

// AddThread adds or replaces a thread snapshot provider by name.
func (p *SnapshotPoller) AddThread(name string, provider ThreadSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.threads[labelOr(name, "thread")] = provider
	p.mu.Unlock()
}

// AddTimer adds or replaces a timer snapshot provider by name.
func (p *SnapshotPoller) AddTimer(name string, provider TimerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.timers[labelOr(name, "timer")] = provider
	p.mu.Unlock()
}

// Start collects once and then every interval until Stop or until ctx is
// done. Repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.timer != nil {
		p.stateMu.Unlock()
		return
	}
	p.timer = core.NewRelativeTimer(core.TimerOptions{
		Name:  "metrics-poller",
		Hooks: core.Hooks{Logger: core.NewNoOpLogger()},
	})
	p.collectOnce()
	p.taskID = p.timer.AddSimplePeriodTimerTask(p.collectOnce, p.interval, core.WithTaskName("collect"))
	stopped := make(chan struct{})
	p.stopped = stopped
	p.stateMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-stopped:
		}
	}()
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.timer == nil {
		return
	}
	p.timer.RemoveTimerTaskWait(p.taskID)
	p.timer.Stop()
	close(p.stopped)
	p.timer = nil
	p.taskID = 0
	p.stopped = nil
}

func (p *SnapshotPoller) collectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.Idle))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.poolDropped.WithLabelValues(name).Set(float64(stats.Dropped))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}

	for name, provider := range p.threads {
		stats := provider.Stats()
		p.threadQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.threadCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.threadRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}

	for name, provider := range p.timers {
		stats := provider.Stats()
		p.timerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.timerInFlight.WithLabelValues(name).Set(float64(stats.InFlight))
		p.timerFired.WithLabelValues(name).Set(float64(stats.Fired))
		p.timerRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
