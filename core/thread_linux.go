//go:build linux

package core

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func currentThreadID() uint64 {
	return uint64(unix.Gettid())
}

// setThreadName names the calling OS thread. The kernel keeps at most
// 15 bytes.
func setThreadName(name string) {
	if len(name) > 15 {
		name = name[:15]
	}
	p, err := unix.BytePtrFromString(name)
	if err != nil {
		return
	}
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(p)), 0, 0, 0)
}
