// Package foundation provides OS-thread backed task scheduling primitives
// and timers for Go.
//
// Every worker, dedicated thread and timer loop runs on a goroutine locked
// to its own OS thread, so tasks that depend on thread identity (CGO calls
// with thread-local state, thread-affine handles) behave predictably.
//
// # Quick Start
//
// Build a registry at application startup and pass it to the code that
// needs it:
//
//	reg, err := foundation.NewRegistry(nil, foundation.RegistryOptions{}) // one automatic two-worker pool
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
// Submit work to the default pool:
//
//	reg.DefaultPool().CommitTask(func() {
//		// runs on a pool thread
//	})
//
// # Key Concepts
//
// ThreadPool: a set of core workers plus optional temporary workers added
// when tasks queue up. Submitters block while a bounded queue is full,
// except when they are pool threads themselves.
//
// AdvancedThread: a single dedicated thread. Post enqueues, Invoke waits
// for the result and runs inline when called from the thread itself.
//
// RelativeTimer and AbsoluteTimer: one thread each, holding delay, period
// and wall-clock tasks in a min-heap. Periodic tasks are rescheduled from
// their previous due time, so they do not drift.
//
// Event, Latch, MutexObject and ThreadChecker: small synchronization
// helpers used by the schedulers and available to callers.
//
// # Registry
//
// A Registry builds named pools, threads and timers from a config.Config:
//
//	cfg, _ := config.Load("foundation.yaml")
//	reg, err := foundation.NewRegistry(cfg, foundation.RegistryOptions{})
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	ticker, _ := reg.RelativeTimer("ticker")
//	ticker.AddSimplePeriodTimerTask(refresh, time.Second)
package foundation
