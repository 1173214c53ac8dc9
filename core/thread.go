package core

import "runtime"

// CurrentThreadID returns an identifier for the calling OS thread.
// It is never zero.
func CurrentThreadID() uint64 {
	return currentThreadID()
}

// lockThread pins the calling goroutine to its OS thread, names the thread
// and returns its id. The goroutine is never unlocked, so the runtime
// discards the thread when the goroutine exits.
func lockThread(name string) uint64 {
	runtime.LockOSThread()
	if name != "" {
		setThreadName(name)
	}
	return CurrentThreadID()
}
