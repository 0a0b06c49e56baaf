package core

import (
	"context"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
)

// Group tracks a set of outstanding work items. The zero value is an empty
// group ready for use.
type Group struct {
	state atomics.Pointer[groupState]
}

// groupState is immutable once published.
type groupState struct {
	count  int64
	done   chan struct{}
	notify []groupNotify
}

type groupNotify struct {
	q    *Queue
	work Work
}

func NewGroup() *Group { return new(Group) }

// Enter records one more outstanding item.
func (g *Group) Enter() {
	for {
		old := g.state.Load(atomics.Acquire)
		next := &groupState{count: 1, done: make(chan struct{})}
		if old != nil && old.count > 0 {
			next.count = old.count + 1
			next.done = old.done
			next.notify = old.notify
		}
		if g.state.CompareAndSwap(old, next, atomics.AcqRel) {
			return
		}
	}
}

// Leave balances an Enter. When the count reaches zero waiters are released
// and notifications submitted. Leaving an empty group is fatal.
func (g *Group) Leave() {
	for {
		old := g.state.Load(atomics.Acquire)
		if old == nil || old.count <= 0 {
			(*Engine)(nil).fatalf(nil, "Group.Leave", "unbalanced Leave")
		}
		var next *groupState
		if old.count > 1 {
			next = &groupState{count: old.count - 1, done: old.done, notify: old.notify}
		}
		if !g.state.CompareAndSwap(old, next, atomics.AcqRel) {
			continue
		}
		if next == nil {
			close(old.done)
			for _, n := range old.notify {
				n.q.Async(context.Background(), n.work)
				n.q.Release()
			}
		}
		return
	}
}

// Async submits work to q as a member of g.
func (g *Group) Async(ctx context.Context, q *Queue, work Work) {
	if work == nil {
		q.engine.fatalf(q, "Group.Async", "nil work function")
	}
	g.Enter()
	q.submit(ctx, 0, FlagGroup, g, callWork, work, false)
}

// Wait blocks until the group is empty or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	s := g.state.Load(atomics.Acquire)
	if s == nil || s.count == 0 {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify submits work to q once the group is empty, immediately if it
// already is.
func (g *Group) Notify(q *Queue, work Work) {
	if work == nil {
		q.engine.fatalf(q, "Group.Notify", "nil work function")
	}
	q.Retain()
	for {
		old := g.state.Load(atomics.Acquire)
		if old == nil || old.count == 0 {
			q.Async(context.Background(), work)
			q.Release()
			return
		}
		notify := make([]groupNotify, len(old.notify), len(old.notify)+1)
		copy(notify, old.notify)
		next := &groupState{count: old.count, done: old.done, notify: append(notify, groupNotify{q: q, work: work})}
		if g.state.CompareAndSwap(old, next, atomics.AcqRel) {
			return
		}
	}
}

// Pending returns the number of outstanding items.
func (g *Group) Pending() int {
	if s := g.state.Load(atomics.Acquire); s != nil {
		return int(s.count)
	}
	return 0
}

// Apply runs fn(ctx, i) for i in [0, n) on q and waits for all of them.
// On a concurrent queue the calls run in parallel. Calling Apply on a serial
// queue from that queue is fatal.
func Apply(ctx context.Context, q *Queue, n int, fn func(ctx context.Context, i int)) error {
	if q.Width() == 1 && OnQueue(ctx, q) {
		q.engine.fatalf(q, "Apply", "apply on the current serial queue would deadlock")
	}
	g := NewGroup()
	for i := 0; i < n; i++ {
		g.Async(ctx, q, func(ctx context.Context) { fn(ctx, i) })
	}
	return g.Wait(ctx)
}
