package core

import (
	"context"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
)

// Work is the unit of work (closure form).
type Work func(ctx context.Context)

// WorkFunc is the function-plus-argument form of Work.
type WorkFunc func(ctx context.Context, arg any)

// =============================================================================
// Continuation: one enqueued unit of work
// =============================================================================

// Flags describe how a continuation interacts with its queue.
type Flags uint16

const (
	// FlagBarrier makes the item run alone on a concurrent queue.
	FlagBarrier Flags = 1 << iota
	// FlagSync marks an item whose submitter is blocked waiting for it.
	FlagSync
	// FlagGroup marks an item that leaves its group after executing.
	FlagGroup
)

// ContinuationKind distinguishes user work from the engine's own records.
type ContinuationKind uint8

const (
	KindWork ContinuationKind = iota
	// KindQueueInvoke drains a child queue on the thread draining its target.
	KindQueueInvoke
	// KindRedirect runs an item of a concurrent queue on that queue's target.
	KindRedirect
	// KindOverride drains a queue from a higher-priority root queue.
	KindOverride
)

func (k ContinuationKind) String() string {
	switch k {
	case KindWork:
		return "work"
	case KindQueueInvoke:
		return "queue-invoke"
	case KindRedirect:
		return "redirect"
	case KindOverride:
		return "override"
	default:
		return "unknown"
	}
}

type continuationState uint8

const (
	stateLive continuationState = iota + 1
	stateCached
	stateHeap
)

// Continuation is the record of one enqueued unit of work. It is owned by the
// queue list while enqueued and by the executing thread afterwards.
type Continuation struct {
	next atomics.Pointer[Continuation]

	fn       WorkFunc
	arg      any
	flags    Flags
	kind     ContinuationKind
	priority Priority
	group    *Group

	// queue is the queue the record acts on for engine kinds.
	queue *Queue
	// inner and innerGen identify the wrapped item of a redirect.
	inner    *Continuation
	innerGen uint32

	gen       uint32
	state     continuationState
	cacheNext *Continuation
}

// Priority returns the priority captured when the record was submitted.
func (c *Continuation) Priority() Priority { return c.priority }

func (c *Continuation) isBarrier() bool { return c.flags&FlagBarrier != 0 }

func callWork(ctx context.Context, arg any) { arg.(Work)(ctx) }
