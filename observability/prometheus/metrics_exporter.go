// Package prometheus exports foundation pool, thread and timer activity as
// Prometheus collectors.
package prometheus

import (
	goerrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/zeus-go/foundation/core"
)

// DefaultNamespace prefixes every collector when no namespace is given.
const DefaultNamespace = "foundation"

// ErrCodeCollector marks a name clash with a collector of another type.
const ErrCodeCollector = "FOUNDATION_METRICS_COLLECTOR"

// ExporterOptions overrides histogram buckets. Empty slices select the
// defaults: prom.DefBuckets for durations, 100µs to ~1.6s for lateness.
type ExporterOptions struct {
	DurationBuckets []float64
	LatenessBuckets []float64
}

// MetricsExporter implements core.Metrics on Prometheus collectors. Pass it
// in core.Hooks to every pool, thread and timer that should be observed.
type MetricsExporter struct {
	taskDurationSeconds  *prom.HistogramVec
	taskPanicTotal       *prom.CounterVec
	taskRejectedTotal    *prom.CounterVec
	queueDepth           *prom.GaugeVec
	workers              *prom.GaugeVec
	timerLatenessSeconds *prom.HistogramVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// collectorSet registers collectors under one namespace and remembers the
// first failure, so construction reads as a flat list.
type collectorSet struct {
	namespace string
	reg       prom.Registerer
	err       error
}

func (s *collectorSet) histogram(name, help string, buckets []float64, labels ...string) *prom.HistogramVec {
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: s.namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	return register(s, vec)
}

func (s *collectorSet) counter(name, help string, labels ...string) *prom.CounterVec {
	vec := prom.NewCounterVec(prom.CounterOpts{Namespace: s.namespace, Name: name, Help: help}, labels)
	return register(s, vec)
}

func (s *collectorSet) gauge(name, help string, labels ...string) *prom.GaugeVec {
	vec := prom.NewGaugeVec(prom.GaugeOpts{Namespace: s.namespace, Name: name, Help: help}, labels)
	return register(s, vec)
}

func register[T prom.Collector](s *collectorSet, c T) T {
	if s.err != nil {
		return c
	}
	c, s.err = registerCollector(s.reg, c)
	return c
}

// NewMetricsExporter registers the task, queue, worker and timer collectors
// on reg (prom.DefaultRegisterer when nil). Registering twice on the same
// registry reuses the existing collectors.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	durations := opts.DurationBuckets
	if len(durations) == 0 {
		durations = prom.DefBuckets
	}
	lateness := opts.LatenessBuckets
	if len(lateness) == 0 {
		lateness = prom.ExponentialBuckets(0.0001, 4, 8)
	}

	s := &collectorSet{namespace: namespace, reg: reg}
	m := &MetricsExporter{
		taskDurationSeconds: s.histogram("task_duration_seconds",
			"Time spent running one task.", durations, "runner"),
		taskPanicTotal: s.counter("task_panic_total",
			"Tasks that ended in a recovered panic.", "runner"),
		taskRejectedTotal: s.counter("task_rejected_total",
			"Tasks refused at submission or dropped on stop.", "runner", "reason"),
		queueDepth: s.gauge("queue_depth",
			"Queued tasks seen by the latest submission.", "runner"),
		workers: s.gauge("workers",
			"Worker threads of a pool.", "runner"),
		timerLatenessSeconds: s.histogram("timer_lateness_seconds",
			"Delay between a timer task's due time and its firing.", lateness, "timer"),
	}
	if s.err != nil {
		return nil, s.err
	}
	return m, nil
}

func (m *MetricsExporter) RecordTaskDuration(runnerName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(runnerLabel(runnerName)).Observe(duration.Seconds())
}

func (m *MetricsExporter) RecordTaskPanic(runnerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(runnerLabel(runnerName)).Inc()
}

func (m *MetricsExporter) RecordQueueDepth(runnerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(runnerLabel(runnerName)).Set(float64(depth))
}

// RecordTaskRejected counts a rejection under a bounded reason label.
func (m *MetricsExporter) RecordTaskRejected(runnerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(runnerLabel(runnerName), reasonLabel(reason)).Inc()
}

func (m *MetricsExporter) RecordWorkerCount(runnerName string, workers int) {
	if m == nil {
		return
	}
	m.workers.WithLabelValues(runnerLabel(runnerName)).Set(float64(workers))
}

// RecordTimerLateness observes how late a firing was; early firings count
// as zero.
func (m *MetricsExporter) RecordTimerLateness(timerName string, lateness time.Duration) {
	if m == nil {
		return
	}
	m.timerLatenessSeconds.WithLabelValues(runnerLabel(timerName)).Observe(max(lateness, 0).Seconds())
}

func runnerLabel(name string) string { return labelOr(name, "unknown") }

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// reasonLabel keeps the reason label bounded: rejection reasons such as
// "stopped with 12 queued tasks" carry counts.
func reasonLabel(reason string) string {
	switch {
	case reason == "":
		return "unknown"
	case reason == "closed", reason == "not running":
		return reason
	case strings.HasPrefix(reason, "stopped"):
		return "stopped"
	default:
		return "other"
	}
}

// registerCollector registers c, or returns the collector already
// registered under the same descriptor.
func registerCollector[T prom.Collector](reg prom.Registerer, c T) (T, error) {
	err := reg.Register(c)
	var dup prom.AlreadyRegisteredError
	switch {
	case err == nil:
		return c, nil
	case !goerrors.As(err, &dup):
		return c, err
	}
	existing, ok := dup.ExistingCollector.(T)
	if !ok {
		return c, errors.New(ErrCodeCollector, "collector registered with another type").
			WithContext("collector", fmt.Sprintf("%T", dup.ExistingCollector))
	}
	return existing, nil
}
