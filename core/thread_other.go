//go:build !linux && !windows

package core

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentThreadID falls back to the goroutine id. Every pool worker, thread
// and timer loop locks its goroutine to an OS thread, so the two identities
// coincide for the code paths that compare them.
func currentThreadID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(bytes.TrimPrefix(buf[:n], []byte("goroutine ")))[0]
	id, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func setThreadName(string) {}
