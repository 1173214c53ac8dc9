package core

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu         sync.Mutex
	durations  map[string]int
	panics     int
	depths     []int
	rejections []string
	workers    []int
	lateness   []time.Duration
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{durations: make(map[string]int)}
}

func (m *TestMetrics) RecordTaskDuration(runnerName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[runnerName]++
}

func (m *TestMetrics) RecordTaskPanic(runnerName string, panicInfo any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

func (m *TestMetrics) RecordQueueDepth(runnerName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depths = append(m.depths, depth)
}

func (m *TestMetrics) RecordTaskRejected(runnerName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, reason)
}

func (m *TestMetrics) RecordWorkerCount(runnerName string, workers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, workers)
}

func (m *TestMetrics) RecordTimerLateness(timerName string, lateness time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lateness = append(m.lateness, lateness)
}

func (m *TestMetrics) durationCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durations[name]
}

// =============================================================================
// Test RecordSink
// =============================================================================

type testSink struct {
	mu      sync.Mutex
	records []TaskExecutionRecord
}

func (s *testSink) Record(record TaskExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

func (s *testSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestDefaultHandlers(t *testing.T) {
	hooks := Hooks{}.withDefaults()

	if hooks.Logger == nil || hooks.PanicHandler == nil || hooks.Metrics == nil || hooks.RejectedTaskHandler == nil {
		t.Fatalf("withDefaults left a nil hook: %+v", hooks)
	}
	if hooks.Sink != nil {
		t.Error("Sink should stay nil by default")
	}

	// Defaults must not panic.
	hooks.PanicHandler.HandlePanic("runner", 0, "value", []byte("stack"))
	hooks.PanicHandler.HandlePanic("runner", -1, "value", nil)
	hooks.RejectedTaskHandler.HandleRejectedTask("runner", "reason")
	hooks.Metrics.RecordTimerLateness("timer", time.Millisecond)
}

func TestDefaultHandlers_Output(t *testing.T) {
	var buf bytes.Buffer

	(&DefaultPanicHandler{Out: &buf}).HandlePanic("io", 3, "boom", []byte("stack"))
	(&DefaultRejectedTaskHandler{Out: &buf}).HandleRejectedTask("io", "closed")

	want := "panic in io worker 3: boom\nstack\ntask rejected by io: closed\n"
	if got := buf.String(); got != want {
		t.Errorf("got = %q, want %q", got, want)
	}
}

// TestHooks_PoolReportsToMetricsAndSink verifies the observer wiring
// Given: a pool with a metrics recorder and a record sink
// When: ten tasks run and one of them panics
// Then: each execution reaches the metrics and the sink, the panic is
// counted, and worker counts are reported
func TestHooks_PoolReportsToMetricsAndSink(t *testing.T) {
	// Arrange
	metrics := NewTestMetrics()
	sink := &testSink{}
	pool := newTestPool(t, PoolOptions{
		Name:     "observed",
		CoreSize: 1,
		Hooks: Hooks{
			Metrics:      metrics,
			Sink:         sink,
			PanicHandler: &recordingPanicHandler{},
		},
	})

	// Act
	for i := range 10 {
		pool.CommitTask(func() {
			if i == 3 {
				panic("observed failure")
			}
		})
	}

	// Assert
	if !waitFor(t, 2*time.Second, func() bool { return sink.len() == 10 }) {
		t.Fatalf("sink records: got = %d, want 10", sink.len())
	}
	if got := metrics.durationCount("observed"); got != 10 {
		t.Errorf("durations: got = %d, want 10", got)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.panics != 1 {
		t.Errorf("panics: got = %d, want 1", metrics.panics)
	}
	if len(metrics.depths) != 10 {
		t.Errorf("queue depth samples: got = %d, want 10", len(metrics.depths))
	}
	if len(metrics.workers) == 0 || metrics.workers[0] != 1 {
		t.Errorf("worker counts: got = %v, want first sample 1", metrics.workers)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	panicked := 0
	for _, rec := range sink.records {
		if rec.Panicked {
			panicked++
		}
	}
	if panicked != 1 {
		t.Errorf("panicked records: got = %d, want 1", panicked)
	}
}

func TestHooks_TimerReportsLateness(t *testing.T) {
	metrics := NewTestMetrics()
	timer := newTestTimer(t, TimerOptions{Name: "late", Hooks: Hooks{Metrics: metrics}})

	done := make(chan struct{})
	timer.AddDelayTimerTask(func() { close(done) }, 10*time.Millisecond)
	<-done

	if !waitFor(t, time.Second, func() bool { return metrics.durationCount("late") == 1 }) {
		t.Fatal("timer firing not reported")
	}
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.lateness) != 1 || metrics.lateness[0] < 0 {
		t.Errorf("lateness samples: got = %v", metrics.lateness)
	}
}
