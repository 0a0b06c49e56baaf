package core

import (
	"context"
	"errors"
	"math"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
	"github.com/ravynsoft/go-dispatch/internal/backoff"
)

// WidthUnbounded is the width of concurrent queues that do not limit how
// many of their items run at once.
const WidthUnbounded = math.MaxInt32

// listless terminates the list of a released queue. Pushing onto it is fatal.
var listless = &Continuation{state: stateHeap}

// ErrNotThreadBound is returned by RunBound on ordinary queues.
var ErrNotThreadBound = errors.New("dispatch: queue is not thread-bound")

// ErrBoundQueueRunning is returned by RunBound when another goroutine already
// runs the queue.
var ErrBoundQueueRunning = errors.New("dispatch: thread-bound queue already running")

// =============================================================================
// QueueAttr: queue creation attributes
// =============================================================================

// QueueAttr configures a queue at creation.
type QueueAttr struct {
	// Width is the number of items that may run at once: 0 or 1 for a serial
	// queue, more for a concurrent one.
	Width int

	// QoS and RelativePriority give the queue's base priority. Unspecified
	// inherits the base priority of the target.
	QoS              QoSClass
	RelativePriority int

	// Overcommit selects the overcommit root when Target is nil. Serial
	// queues always use the overcommit root.
	Overcommit bool

	// Target is the parent queue. Nil selects the root queue for QoS.
	Target *Queue

	// ThreadBound queues are drained only by the goroutine calling RunBound.
	ThreadBound bool

	// Inactive queues start suspended until Activate is called.
	Inactive bool
}

// SerialAttr returns the attributes of a serial queue at qos.
func SerialAttr(qos QoSClass) QueueAttr {
	return QueueAttr{Width: 1, QoS: qos}
}

// ConcurrentAttr returns the attributes of an unbounded concurrent queue at qos.
func ConcurrentAttr(qos QoSClass) QueueAttr {
	return QueueAttr{Width: WidthUnbounded, QoS: qos}
}

// =============================================================================
// Queue
// =============================================================================

// Queue is a FIFO of continuations drained by at most one thread at a time.
//
// Producers publish with a single atomic exchange of the tail. The producer
// that finds the queue idle makes it drain by enqueueing an invoke record on
// the target queue (or asking the ThreadPool, for root queues).
type Queue struct {
	engine      *Engine
	label       string
	serial      uint64
	root        bool
	overcommit  bool // root variant, or the root picked at creation
	threadBound bool

	head atomics.Pointer[Continuation]
	tail atomics.Pointer[Continuation]

	width    atomics.Int32
	running  atomics.Int32
	suspend  atomics.Int32
	inflight atomics.Int32
	refs     atomics.Int32
	activate atomics.Int32

	base     Priority
	override atomics.Uint32

	target atomics.Pointer[Queue]
	thread atomics.Pointer[Thread]

	boundWake  chan struct{}
	boundOwner atomics.Pointer[Thread]

	specific atomics.Pointer[specificTable]

	pending   atomics.Int64
	executed  atomics.Uint64
	discarded atomics.Uint64
}

// NewQueue creates a queue. The caller holds the only reference.
func (e *Engine) NewQueue(label string, attr QueueAttr) *Queue {
	width := attr.Width
	if width < 1 {
		width = 1
	}
	tq := attr.Target
	overcommit := width == 1 || attr.Overcommit
	if tq == nil {
		tq = e.roots.Root(attr.QoS, overcommit)
	} else if tq.engine != e {
		e.fatalf(nil, "NewQueue", "target %q belongs to another engine", tq.label)
	}

	q := &Queue{
		engine:      e,
		label:       label,
		serial:      e.serial.Add(1, atomics.Relaxed),
		overcommit:  overcommit,
		threadBound: attr.ThreadBound,
	}
	if attr.QoS.Valid() {
		q.base = NewPriority(attr.QoS, attr.RelativePriority)
	} else {
		q.base = tq.base.WithOvercommit(false)
	}
	q.width.Store(int32(min(width, WidthUnbounded)), atomics.Relaxed)
	q.refs.Store(1, atomics.Relaxed)
	q.override.Store(uint32(q.base.Normalize()), atomics.Relaxed)
	if attr.ThreadBound {
		q.boundWake = make(chan struct{}, 1)
	}
	if attr.Inactive {
		q.suspend.Store(1, atomics.Relaxed)
		q.activate.Store(1, atomics.Relaxed)
	}
	tq.Retain()
	q.target.Store(tq, atomics.Release)
	return q
}

func (q *Queue) Label() string { return q.label }

// Engine returns the engine that created q.
func (q *Queue) Engine() *Engine { return q.engine }

// IsRoot reports whether q is one of the engine's root queues.
func (q *Queue) IsRoot() bool { return q.root }

// QoS returns the class of the queue's base priority.
func (q *Queue) QoS() QoSClass { return q.base.QoS() }

// BasePriority returns the priority the queue was created with.
func (q *Queue) BasePriority() Priority { return q.base }

// Override returns the current override, never lower than the base class.
func (q *Queue) Override() Priority { return Priority(q.override.Load(atomics.Acquire)) }

// Width returns the queue's width.
func (q *Queue) Width() int { return int(q.width.Load(atomics.Relaxed)) }

// Target returns the parent queue, nil for root queues.
func (q *Queue) Target() *Queue { return q.target.Load(atomics.Acquire) }

// =============================================================================
// Submission
// =============================================================================

// Async enqueues work. The work inherits the priority of the calling worker
// when ctx belongs to one.
func (q *Queue) Async(ctx context.Context, work Work) {
	q.submit(ctx, 0, 0, nil, callWork, work, work == nil)
}

// AsyncWithPriority enqueues work at priority p.
func (q *Queue) AsyncWithPriority(ctx context.Context, p Priority, work Work) {
	q.submit(ctx, p, 0, nil, callWork, work, work == nil)
}

// AsyncF enqueues fn(ctx, arg).
func (q *Queue) AsyncF(ctx context.Context, arg any, fn WorkFunc) {
	q.submit(ctx, 0, 0, nil, fn, arg, fn == nil)
}

// BarrierAsync enqueues work that runs alone: on a concurrent queue it starts
// once everything before it has finished, and nothing after it starts until
// it returns. On a serial queue it is equivalent to Async.
func (q *Queue) BarrierAsync(ctx context.Context, work Work) {
	q.submit(ctx, 0, FlagBarrier, nil, callWork, work, work == nil)
}

func (q *Queue) submit(ctx context.Context, p Priority, flags Flags, g *Group, fn WorkFunc, arg any, missing bool) {
	if missing {
		q.engine.fatalf(q, "submit", "nil work function")
	}
	th := ownedThread(ctx)
	if p == 0 && th != nil {
		p = th.defaultPriority
	}
	c := th.allocContinuation()
	c.fn = fn
	c.arg = arg
	c.flags = flags
	c.priority = p
	c.group = g
	q.push(th, c)
}

// push publishes c and, when it made the queue non-idle, wakes it.
func (q *Queue) push(th *Thread, c *Continuation) {
	e := q.engine
	p := c.priority
	escalate := q.propagate(p)
	if instrumentationCompiled {
		e.emit(EventPush, q, c)
	}

	// c may be executed and recycled from here on
	wasEmpty := q.pushList(c)

	if !escalate {
		if wasEmpty {
			e.wakeup(th, q, p)
		}
		return
	}

	q.Retain()
	escalated := q.overrideQueue(p)
	if wasEmpty {
		e.wakeup(th, q, p)
	} else if escalated {
		e.escalate(th, q, p)
	}
	q.Release()
}

// pushList appends c and reports whether the list was empty.
func (q *Queue) pushList(c *Continuation) bool {
	c.next.Store(nil, atomics.Relaxed)
	q.pending.Add(1, atomics.Relaxed)
	prev := q.tail.Swap(c, atomics.Release)
	switch prev {
	case listless:
		q.engine.fatalf(q, "push", "push onto a released queue")
	case nil:
		q.head.Store(c, atomics.Release)
		return true
	default:
		prev.next.Store(c, atomics.Release)
	}
	return false
}

// peek returns the first item, waiting out a producer that has swapped the
// tail but not yet linked its item. Only the drain-rights holder calls it.
func (q *Queue) peek() *Continuation {
	tail := q.tail.Load(atomics.Acquire)
	if tail == nil || tail == listless {
		return nil
	}
	var c *Continuation
	backoff.SpinUntil(func() bool {
		c = q.head.Load(atomics.Acquire)
		return c != nil
	}, nil)
	return c
}

// pop unlinks c, which must be the item returned by peek.
func (q *Queue) pop(c *Continuation) {
	next := c.next.Load(atomics.Acquire)
	q.head.Store(next, atomics.Relaxed)
	if next == nil && !q.tail.CompareAndSwap(c, nil, atomics.AcqRel) {
		// a producer swapped the tail after c; wait for its link
		backoff.SpinUntil(func() bool {
			next = c.next.Load(atomics.Acquire)
			return next != nil
		}, nil)
		q.head.Store(next, atomics.Release)
	}
	q.pending.Add(-1, atomics.Relaxed)
	if instrumentationCompiled {
		q.engine.emit(EventPop, q, c)
	}
}

// =============================================================================
// Priority override
// =============================================================================

// propagate reports whether p would raise the queue's override.
func (q *Queue) propagate(p Priority) bool {
	if q.root {
		return false
	}
	return uint32(p.Normalize()) > q.override.Load(atomics.Acquire)
}

// overrideQueue ratchets the override up to p and reports whether it rose.
func (q *Queue) overrideQueue(p Priority) bool {
	_, raised := atomics.StoreMax(&q.override, uint32(p.Normalize()), atomics.AcqRel)
	if raised {
		e := q.engine
		if e.metricsEnabled {
			e.metrics.RecordOverride(q.label, p.QoS())
		}
		if instrumentationCompiled && e.hook != nil {
			e.hook.OnEvent(Event{Kind: EventOverride, Queue: q.label, Priority: p.Normalize()})
		}
	}
	return raised
}

// resetOverride drops the override back to the base class unless it was
// raised again after being observed as old.
func (q *Queue) resetOverride(old uint32) {
	base := uint32(q.base.Normalize())
	if old != base {
		q.override.CompareAndSwap(old, base, atomics.Release)
	}
}

// =============================================================================
// Suspension, targeting, width
// =============================================================================

// Suspend stops q from starting new drains. Items already executing finish.
// Root queues ignore Suspend.
func (q *Queue) Suspend() {
	if q.root {
		return
	}
	q.suspend.Add(1, atomics.AcqRel)
}

// Resume balances a Suspend. Resuming more often than suspending is fatal.
func (q *Queue) Resume() {
	if q.root {
		return
	}
	n := q.suspend.Add(-1, atomics.AcqRel)
	if n < 0 {
		q.engine.fatalf(q, "Resume", "over-resume")
	}
	if n == 0 && q.tail.Load(atomics.Acquire) != nil {
		q.engine.wakeup(nil, q, q.Override())
	}
}

// Activate resumes a queue created Inactive. Later calls do nothing.
func (q *Queue) Activate() {
	if q.activate.CompareAndSwap(1, 0, atomics.AcqRel) {
		q.Resume()
	}
}

func (q *Queue) suspended() bool { return q.suspend.Load(atomics.Acquire) > 0 }

// SetTarget changes the parent queue. A nil target selects the root queue for
// the queue's class. Creating a cycle is fatal. Root queues ignore SetTarget.
func (q *Queue) SetTarget(tq *Queue) {
	if q.root {
		return
	}
	if tq == nil {
		tq = q.engine.roots.Root(q.base.QoS(), q.overcommit)
	}
	for t := tq; t != nil; t = t.Target() {
		if t == q {
			q.engine.fatalf(q, "SetTarget", "target %q would create a cycle", tq.label)
		}
	}
	tq.Retain()
	if old := q.target.Swap(tq, atomics.AcqRel); old != nil {
		old.Release()
	}
}

// SetWidth changes how many items of a concurrent queue run at once. Values
// below 1 are treated as 1. Root queues ignore SetWidth.
func (q *Queue) SetWidth(width int) {
	if q.root {
		return
	}
	q.width.Store(int32(min(max(width, 1), WidthUnbounded)), atomics.Release)
	if q.tail.Load(atomics.Acquire) != nil {
		q.engine.wakeup(nil, q, q.Override())
	}
}

// =============================================================================
// Reference counting
// =============================================================================

// Retain adds a reference. Root queues are not reference counted.
func (q *Queue) Retain() {
	if q.root {
		return
	}
	if q.refs.Add(1, atomics.Relaxed) <= 1 {
		q.engine.fatalf(q, "Retain", "retain of a released queue")
	}
}

// Release drops a reference. Dropping the last one tears the queue down:
// items still pending are discarded without running.
func (q *Queue) Release() {
	if q.root {
		return
	}
	n := q.refs.Add(-1, atomics.AcqRel)
	switch {
	case n > 0:
		return
	case n < 0:
		q.engine.fatalf(q, "Release", "over-release")
	}
	q.dispose()
}

func (q *Queue) dispose() {
	e := q.engine
	if q.running.Load(atomics.Acquire) != 0 {
		e.fatalf(q, "dispose", "released while draining")
	}
	discarded := 0
	for c := q.peek(); c != nil; c = q.peek() {
		q.pop(c)
		if instrumentationCompiled {
			e.emit(EventDiscard, q, c)
		}
		discardContinuation(c)
		discarded++
	}
	if !q.tail.CompareAndSwap(nil, listless, atomics.AcqRel) {
		e.fatalf(q, "dispose", "push raced with the final release")
	}
	if discarded > 0 {
		q.discarded.Add(uint64(discarded), atomics.Relaxed)
		if e.metricsEnabled {
			e.metrics.RecordDiscarded(q.label, discarded)
		}
		if b := e.logger.Warning(); b.Enabled() {
			b.Str("queue", q.label).Int("discarded", discarded).Log("queue released with pending work")
		}
	}
	if tq := q.target.Swap(nil, atomics.AcqRel); tq != nil {
		tq.Release()
	}
}

// discardContinuation drops an item that will never run.
func discardContinuation(c *Continuation) {
	switch c.kind {
	case KindQueueInvoke, KindOverride:
		c.queue.Release()
	case KindRedirect:
		c.queue.inflight.Add(-1, atomics.AcqRel)
		discardContinuation(c.inner)
		c.queue.Release()
	}
	if g := c.group; g != nil {
		g.Leave()
	}
	c.state = stateHeap
}

// =============================================================================
// Thread-bound queues
// =============================================================================

// RunBound drains a thread-bound queue on the calling goroutine, locked to
// its OS thread, until ctx is done. The queue stays alive until RunBound
// returns, even if every other reference is released.
func (q *Queue) RunBound(ctx context.Context) error {
	if !q.threadBound {
		return ErrNotThreadBound
	}
	q.Retain()
	defer q.Release()
	th := q.engine.NewThread(q.label, -1)
	if !q.boundOwner.CompareAndSwap(nil, th, atomics.AcqRel) {
		return ErrBoundQueueRunning
	}
	defer q.boundOwner.Store(nil, atomics.Release)
	th.BindOSThread()
	defer th.UnbindOSThread()

	for {
		q.engine.Invoke(th, q, q.base)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.boundWake:
		}
	}
}

func (q *Queue) signalBound() {
	select {
	case q.boundWake <- struct{}{}:
	default:
	}
}

// =============================================================================
// Stats
// =============================================================================

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() QueueStats {
	s := QueueStats{
		Label:     q.label,
		Root:      q.root,
		Width:     q.Width(),
		Pending:   int(max(q.pending.Load(atomics.Relaxed), 0)),
		Draining:  q.running.Load(atomics.Relaxed) != 0,
		Inflight:  int(q.inflight.Load(atomics.Relaxed)),
		Suspended: q.suspended(),
		Base:      q.base.QoS(),
		Override:  q.Override().QoS(),
		Executed:  q.executed.Load(atomics.Relaxed),
		Discarded: q.discarded.Load(atomics.Relaxed),
	}
	if t := q.Target(); t != nil {
		s.Target = t.label
	}
	return s
}
