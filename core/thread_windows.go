//go:build windows

package core

import "golang.org/x/sys/windows"

func currentThreadID() uint64 {
	return uint64(windows.GetCurrentThreadId())
}

func setThreadName(string) {}
