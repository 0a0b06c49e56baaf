//go:build linux

package sched

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CurrentThreadID returns the kernel id of the calling thread.
func CurrentThreadID() int { return unix.Gettid() }

// Nice returns the nice value of thread tid.
func Nice(tid int) (int, error) {
	// the raw syscall returns 20-nice
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, tid)
	if err != nil {
		return 0, fmt.Errorf("sched: getpriority(%d): %w", tid, err)
	}
	return 20 - prio, nil
}

// SetNice sets the nice value of thread tid. Lowering the value below the
// current one requires CAP_SYS_NICE and fails with EACCES otherwise.
func SetNice(tid, nice int) error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, ClampNice(nice)); err != nil {
		return fmt.Errorf("sched: setpriority(%d, %d): %w", tid, nice, err)
	}
	return nil
}
