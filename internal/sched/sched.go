// Package sched adjusts the scheduling priority of the calling OS thread.
//
// Callers must have locked the calling goroutine to its OS thread
// (runtime.LockOSThread) before reading a thread id, otherwise the id may
// describe a thread the goroutine no longer runs on.
package sched

import "errors"

// ErrUnsupported is returned where the platform has no per-thread priority.
var ErrUnsupported = errors.New("sched: per-thread priority not supported on this platform")

// Nice values bounds, as accepted by setpriority(2).
const (
	MinNice = -20
	MaxNice = 19
)

// ClampNice bounds n to the valid nice range.
func ClampNice(n int) int {
	switch {
	case n < MinNice:
		return MinNice
	case n > MaxNice:
		return MaxNice
	default:
		return n
	}
}
