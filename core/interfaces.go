package core

import (
	"fmt"
	"io"
	"os"
	"time"
)

// PanicHandler receives panics recovered from fire-and-forget tasks: pool
// commits, posts and timer callbacks. Panics inside Invoke, InvokeValue and
// Commit go to the caller as errors instead. It may be called from several
// threads at once.
type PanicHandler interface {
	// HandlePanic gets the runner name, the pool worker id (-1 for threads
	// and timers), the recovered value and the goroutine stack.
	HandlePanic(runnerName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler writes the panic and its stack to Out, or to
// os.Stderr when Out is nil.
type DefaultPanicHandler struct {
	Out io.Writer
}

func (h *DefaultPanicHandler) HandlePanic(runnerName string, workerID int, panicInfo any, stackTrace []byte) {
	where := runnerName
	if workerID >= 0 {
		where = fmt.Sprintf("%s worker %d", runnerName, workerID)
	}
	fmt.Fprintf(writerOrStderr(h.Out), "panic in %s: %v\n%s\n", where, panicInfo, stackTrace)
}

func writerOrStderr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stderr
	}
	return w
}

// Metrics receives execution measurements. Calls happen on the executing
// or submitting thread, so implementations must not block.
type Metrics interface {
	RecordTaskDuration(runnerName string, duration time.Duration)
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordQueueDepth is called after each submission with the queue length.
	RecordQueueDepth(runnerName string, depth int)

	// RecordTaskRejected covers submissions refused by a closed pool or a
	// stopped thread and tasks dropped by Stop.
	RecordTaskRejected(runnerName string, reason string)

	// RecordWorkerCount is called whenever a pool's worker count changes.
	RecordWorkerCount(runnerName string, workers int)

	// RecordTimerLateness is called per firing with now minus the due time.
	RecordTimerLateness(timerName string, lateness time.Duration)
}

// NilMetrics discards everything. It is the default.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(runnerName string, duration time.Duration) {}

func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any) {}

func (m *NilMetrics) RecordQueueDepth(runnerName string, depth int) {}

func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string) {}

func (m *NilMetrics) RecordWorkerCount(runnerName string, workers int) {}

func (m *NilMetrics) RecordTimerLateness(timerName string, lateness time.Duration) {}

// RejectedTaskHandler is told about every refused or dropped task, with the
// same reasons passed to Metrics.RecordTaskRejected.
type RejectedTaskHandler interface {
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler writes one line per rejection to Out, or to
// os.Stderr when Out is nil.
type DefaultRejectedTaskHandler struct {
	Out io.Writer
}

func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	fmt.Fprintf(writerOrStderr(h.Out), "task rejected by %s: %s\n", runnerName, reason)
}

// RecordSink receives every TaskExecutionRecord produced by a pool, thread or
// timer. Record is called on the executing thread and must not block.
type RecordSink interface {
	Record(record TaskExecutionRecord)
}

// Hooks bundles the optional observers shared by pools, threads and timers.
// Nil members are replaced with defaults.
type Hooks struct {
	Logger              Logger
	PanicHandler        PanicHandler
	Metrics             Metrics
	RejectedTaskHandler RejectedTaskHandler
	Sink                RecordSink
}

func (h Hooks) withDefaults() Hooks {
	h.Logger = loggerOrDefault(h.Logger)
	if h.PanicHandler == nil {
		h.PanicHandler = &DefaultPanicHandler{}
	}
	if h.Metrics == nil {
		h.Metrics = &NilMetrics{}
	}
	if h.RejectedTaskHandler == nil {
		h.RejectedTaskHandler = &DefaultRejectedTaskHandler{}
	}
	return h
}
