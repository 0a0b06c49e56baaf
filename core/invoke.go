package core

import (
	"runtime/debug"
	"time"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
)

// drainStop is the reason a drain returned.
type drainStop uint8

const (
	stopEmpty drainStop = iota
	stopSuspended
	stopWidth
	stopBarrier
	stopRetarget
)

// Invoke drains q on th at priority p. It is what a ThreadPool runs for a
// DrainRequest, and what RunBound runs for thread-bound queues.
//
// At most one thread drains a queue at a time; a call that loses the race
// returns immediately after making sure the winner runs at least at p.
func (e *Engine) Invoke(th *Thread, q *Queue, p Priority) {
	th.checkOwner("Invoke")
	top := th.currentQueue == nil
	e.invoke(th, q, p, nil)
	if top {
		th.resetOSOverride()
	}
}

// invoke drains q. origin is the queue whose drain is running this call, nil
// for top-level and override invocations.
func (e *Engine) invoke(th *Thread, q *Queue, p Priority, origin *Queue) {
	if q.root {
		e.drainRoot(th, q, p)
		return
	}
	for {
		if q.suspended() {
			return
		}
		if !q.running.CompareAndSwap(0, 1, atomics.Acquire) {
			if q.propagate(p) && q.overrideQueue(p) {
				e.escalate(th, q, p)
			}
			return
		}

		stop := e.drain(th, q, p, origin)

		if n := q.running.Add(-1, atomics.Release); n != 0 {
			e.fatalf(q, "drain", "running count %d after releasing drain rights", n)
		}

		if q.tail.Load(atomics.Acquire) == nil {
			q.resetOverride(q.override.Load(atomics.Acquire))
			if q.tail.Load(atomics.Acquire) == nil {
				return
			}
			// a producer published after the override reset
			continue
		}

		switch stop {
		case stopWidth:
			if q.inflight.Load(atomics.Acquire) >= q.width.Load(atomics.Acquire) {
				return
			}
		case stopBarrier:
			if q.inflight.Load(atomics.Acquire) > 0 {
				return
			}
		case stopRetarget:
			e.wakeup(th, q, q.Override())
			return
		}
		// stopEmpty with a racing push, or a blocking condition that cleared
		// while drain rights were held: drain again
		origin = nil
	}
}

// drain executes q's items in FIFO order until the list is empty or the
// queue cannot make progress. The caller holds drain rights.
func (e *Engine) drain(th *Thread, q *Queue, p Priority, origin *Queue) drainStop {
	prio := maxPriority(maxPriority(q.base, p), q.Override())
	oldPrio := th.AdoptPriority(prio)
	prevQueue := th.setCurrentQueue(q)
	q.thread.Store(th, atomics.Release)
	defer func() {
		q.thread.Store(nil, atomics.Release)
		th.setCurrentQueue(prevQueue)
		th.ResetPriority(oldPrio)
	}()

	target := q.Target()
	if origin != nil && origin != target && !(origin.root && target.root) {
		return stopRetarget
	}
	width := q.width.Load(atomics.Acquire)

	for {
		c := q.peek()
		if c == nil {
			return stopEmpty
		}
		if q.suspended() {
			return stopSuspended
		}
		if q.Target() != target {
			return stopRetarget
		}
		if width > 1 {
			if c.isBarrier() {
				if q.inflight.Load(atomics.Acquire) > 0 {
					return stopBarrier
				}
			} else {
				if q.inflight.Load(atomics.Acquire) >= width {
					return stopWidth
				}
				q.pop(c)
				e.redirect(th, q, target, c)
				continue
			}
		}
		q.pop(c)
		e.execute(th, q, c)
	}
}

// drainRoot pops a single item, hands the rest of the root queue back to the
// pool, then executes the item.
func (e *Engine) drainRoot(th *Thread, q *Queue, p Priority) {
	if !q.running.CompareAndSwap(0, 1, atomics.Acquire) {
		return
	}
	c := q.peek()
	if c != nil {
		q.pop(c)
	}
	if n := q.running.Add(-1, atomics.Release); n != 0 {
		e.fatalf(q, "drain", "running count %d after releasing drain rights", n)
	}
	if q.tail.Load(atomics.Acquire) != nil {
		e.pool.RequestDrain(DrainRequest{Queue: q, Priority: q.base})
	}
	if c == nil {
		return
	}

	oldPrio := th.AdoptPriority(maxPriority(q.base, c.priority))
	prevQueue := th.setCurrentQueue(q)
	e.execute(th, q, c)
	th.setCurrentQueue(prevQueue)
	th.ResetPriority(oldPrio)
}

// execute runs c, which th now owns, and recycles it.
func (e *Engine) execute(th *Thread, q *Queue, c *Continuation) {
	if c.state != stateLive {
		e.fatalf(q, "execute", "continuation is not live (state %d, generation %d)", c.state, c.gen)
	}
	if instrumentationCompiled {
		e.emit(EventExecute, q, c)
	}

	switch c.kind {
	case KindQueueInvoke, KindOverride:
		child, p := c.queue, c.priority
		origin := q
		if c.kind == KindOverride {
			origin = nil
		}
		th.freeContinuation(c)
		e.invoke(th, child, p, origin)
		child.Release()
		return
	case KindRedirect:
		e.executeRedirect(th, c)
		return
	}

	if c.fn == nil {
		e.fatalf(q, "execute", "continuation without a function")
	}
	e.run(th, q, c)
	g := c.group
	th.freeContinuation(c)
	if g != nil {
		g.Leave()
	}
}

// run calls the work function, recovering panics from user code.
func (e *Engine) run(th *Thread, q *Queue, c *Continuation) {
	var start time.Time
	if e.metricsEnabled {
		start = time.Now()
	}
	fn, arg := c.fn, c.arg
	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if v, ok := r.(*InvariantViolation); ok {
				panic(v)
			}
			if e.metricsEnabled {
				e.metrics.RecordWorkPanic(q.label, r)
			}
			e.panicHandler.HandlePanic(th.ctx, q.label, th.id, r, debug.Stack())
		}()
		fn(th.ctx, arg)
	}()
	th.stats.executed.Add(1, atomics.Relaxed)
	q.executed.Add(1, atomics.Relaxed)
	if e.metricsEnabled {
		e.metrics.RecordWorkDuration(q.label, th.defaultPriority.QoS(), time.Since(start))
	}
}

// redirect sends an item of concurrent queue q to run on target.
func (e *Engine) redirect(th *Thread, q, target *Queue, c *Continuation) {
	q.inflight.Add(1, atomics.AcqRel)
	q.Retain()

	r := th.allocContinuation()
	r.kind = KindRedirect
	r.queue = q
	r.inner = c
	r.innerGen = c.gen
	r.priority = maxPriority(c.priority, q.Override())
	r.fn = nil

	tq := target
	if tq.root && r.priority > tq.base.Normalize() {
		tq = e.roots.Root(r.priority.QoS(), tq.overcommit)
	}
	tq.push(th, r)
}

func (e *Engine) executeRedirect(th *Thread, r *Continuation) {
	q, inner, gen := r.queue, r.inner, r.innerGen
	th.freeContinuation(r)
	if inner.gen != gen {
		e.fatalf(q, "redirect", "stale continuation (generation %d, expected %d)", inner.gen, gen)
	}

	prevQueue := th.setCurrentQueue(q)
	oldPrio := th.AdoptPriority(maxPriority(q.base, inner.priority))
	e.execute(th, q, inner)
	th.ResetPriority(oldPrio)
	th.setCurrentQueue(prevQueue)

	n := q.inflight.Add(-1, atomics.AcqRel)
	if n < 0 {
		e.fatalf(q, "redirect", "inflight count underflow")
	}
	if n < q.width.Load(atomics.Acquire) && q.tail.Load(atomics.Acquire) != nil {
		e.wakeup(th, q, q.Override())
	}
	q.Release()
}

// wakeup makes an idle queue drain. The caller is the producer (or resumer)
// that observed the Idle to non-idle transition.
func (e *Engine) wakeup(th *Thread, q *Queue, p Priority) {
	if q.suspended() {
		return
	}
	switch {
	case q.root:
		e.pool.RequestDrain(DrainRequest{Queue: q, Priority: q.base})
	case q.threadBound:
		q.signalBound()
	default:
		tq := q.Target()
		if tq == nil {
			return
		}
		p = maxPriority(p, q.Override())
		c := th.allocContinuation()
		c.kind = KindQueueInvoke
		c.queue = q
		c.priority = p
		q.Retain()
		if tq.root && p > tq.base.Normalize() {
			tq = e.roots.Root(p.QoS(), tq.overcommit)
		}
		tq.push(th, c)
	}
}

// escalate propagates a raised override of q, which has pending work, to
// whatever is responsible for running it.
func (e *Engine) escalate(th *Thread, q *Queue, p Priority) {
	if d := q.thread.Load(atomics.Acquire); d != nil {
		d.raiseOSOverride(q, p.QoS())
		return
	}
	if q.threadBound {
		return
	}
	tq := q.Target()
	if tq == nil {
		return
	}
	if !tq.root {
		if tq.propagate(p) && tq.overrideQueue(p) {
			e.escalate(th, tq, p)
		}
		return
	}
	if p.Normalize() <= tq.base.Normalize() {
		return
	}
	// q is waiting on a lower root; let a higher root drain it
	c := th.allocContinuation()
	c.kind = KindOverride
	c.queue = q
	c.priority = p.Normalize()
	q.Retain()
	e.roots.Root(p.QoS(), tq.overcommit).push(th, c)
}
