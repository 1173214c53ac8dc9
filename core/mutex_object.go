package core

import "sync"

// MutexObject guards a value of type T. Every accessor holds the lock for
// its whole duration.
type MutexObject[T any] struct {
	mu    sync.Mutex
	value T
}

// NewMutexObject returns a MutexObject holding value.
func NewMutexObject[T any](value T) *MutexObject[T] {
	return &MutexObject[T]{value: value}
}

// Load returns a copy of the guarded value.
func (m *MutexObject[T]) Load() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *MutexObject[T]) Store(value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
}

// Swap stores value and returns the previous one.
func (m *MutexObject[T]) Swap(value T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.value
	m.value = value
	return old
}

// With runs fn with the lock held and a pointer to the guarded value.
func (m *MutexObject[T]) With(fn func(value *T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.value)
}

// Lock, Unlock and TryLock expose the underlying mutex so a MutexObject can
// be used as a sync.Locker. Use Unsafe only while holding the lock.
func (m *MutexObject[T]) Lock()         { m.mu.Lock() }
func (m *MutexObject[T]) Unlock()       { m.mu.Unlock() }
func (m *MutexObject[T]) TryLock() bool { return m.mu.TryLock() }

// Unsafe returns a pointer to the guarded value without locking.
func (m *MutexObject[T]) Unsafe() *T {
	return &m.value
}
