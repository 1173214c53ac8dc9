package core

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes carried by errors returned from this package.
const (
	ErrCodePoolClosed    = "FOUNDATION_POOL_CLOSED"
	ErrCodeThreadStopped = "FOUNDATION_THREAD_STOPPED"
	ErrCodeTaskPanicked  = "FOUNDATION_TASK_PANICKED"
	ErrCodeTaskDropped   = "FOUNDATION_TASK_DROPPED"
	ErrCodeNilTask       = "FOUNDATION_NIL_TASK"
	ErrCodeInvalidConfig = "FOUNDATION_INVALID_CONFIG"
)

// HasCode reports whether err, or any error it wraps, carries the given code.
func HasCode(err error, code string) bool {
	for err != nil {
		if coder, ok := err.(errors.ErrorCoder); ok && string(coder.ErrorCode()) == code {
			return true
		}
		err = goerrors.Unwrap(err)
	}
	return false
}

func errPoolClosed(name string) error {
	return errors.New(ErrCodePoolClosed, "thread pool is closed").WithContext("pool", name)
}

func errThreadStopped(name string) error {
	return errors.New(ErrCodeThreadStopped, "thread is not running").WithContext("thread", name)
}

func errTaskDropped(owner string) error {
	return errors.New(ErrCodeTaskDropped, "task dropped before execution").WithContext("owner", owner)
}

func errNilTask(owner string) error {
	return errors.New(ErrCodeNilTask, "task is nil").WithContext("owner", owner)
}

func errTaskPanicked(owner string, recovered any) error {
	return errors.New(ErrCodeTaskPanicked, fmt.Sprintf("task panicked: %v", recovered)).
		WithContext("owner", owner).
		WithContext("panic", fmt.Sprint(recovered))
}
