package core

import (
	"context"
	"bytes"
	"errors"
	"runtime"
	"strconv"

	"github.com/joeycumines/goroutineid"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
	"github.com/ravynsoft/go-dispatch/internal/sched"
)

// SlotKey identifies a per-thread storage slot.
type SlotKey int

const (
	slotCurrentQueue SlotKey = iota
	slotDefaultPriority
	slotCacheHead
	slotCacheCount
	reservedSlots
)

// inlineSlots is the number of keys served from the inline slot array.
const inlineSlots = 16

// ErrSlotKeysExhausted is returned by CreateSlotKey when all keys are taken.
var ErrSlotKeysExhausted = errors.New("dispatch: thread slot keys exhausted")

var slotKeys atomics.Uint64

func init() {
	slotKeys.Store(1<<reservedSlots-1, atomics.Relaxed)
}

// CreateSlotKey registers a new per-thread slot.
func CreateSlotKey() (SlotKey, error) {
	bit := atomics.ClaimBit(&slotKeys, atomics.AcqRel)
	if bit == atomics.NoBit {
		return 0, ErrSlotKeysExhausted
	}
	return SlotKey(bit), nil
}

// DeleteSlotKey returns k to the free set. Values still stored under k on
// live threads are not cleared.
func DeleteSlotKey(k SlotKey) {
	if k < reservedSlots || k >= 64 {
		return
	}
	atomics.ReleaseBit(&slotKeys, int(k), atomics.AcqRel)
}

// Thread is the per-worker execution context. It carries the bindings the
// engine needs while executing: the current queue, the default priority and
// the continuation cache, plus generic slots for collaborators.
//
// A Thread belongs to the goroutine that created it. Apart from the fields
// documented as atomic it must only be used from that goroutine.
type Thread struct {
	engine *Engine
	name   string
	id     int
	owner  int64
	ctx    context.Context

	// OS thread binding; tid is 0 until BindOSThread. Producers read it when
	// boosting, so it is atomic.
	tid      atomics.Int32
	baseNice int

	currentQueue    *Queue
	defaultPriority Priority
	cacheHead       *Continuation
	cacheCount      int
	cacheLimit      int

	slots [inlineSlots]any
	extra map[SlotKey]any

	// osOverride is raised by producers boosting this thread, and cleared by
	// the owner at the end of a drain.
	osOverride atomics.Uint32

	stats threadCounters
}

type threadCounters struct {
	cacheHits  atomics.Uint64
	heapAllocs atomics.Uint64
	heapFrees  atomics.Uint64
	executed   atomics.Uint64
}

type threadKey struct{}

// NewThread creates the context for a worker running on the calling
// goroutine. id is reported to the panic handler; use -1 for threads that are
// not pool workers.
func (e *Engine) NewThread(name string, id int) *Thread {
	th := &Thread{
		engine:     e,
		name:       name,
		id:         id,
		owner:      currentGoroutineID(),
		cacheLimit: e.config.CacheLimit,
	}
	th.ctx = context.WithValue(context.Background(), threadKey{}, th)
	return th
}

// BindOSThread locks the calling goroutine to its OS thread and records the
// thread id so that producers can raise its scheduling priority.
func (th *Thread) BindOSThread() {
	th.checkOwner("BindOSThread")
	runtime.LockOSThread()
	tid := sched.CurrentThreadID()
	if nice, err := sched.Nice(tid); err == nil {
		th.baseNice = nice
	}
	th.tid.Store(int32(tid), atomics.Release)
}

// UnbindOSThread restores the OS priority and unlocks the OS thread.
func (th *Thread) UnbindOSThread() {
	th.checkOwner("UnbindOSThread")
	th.resetOSOverride()
	th.tid.Store(0, atomics.Release)
	runtime.UnlockOSThread()
}

func (th *Thread) Name() string { return th.name }
func (th *Thread) ID() int      { return th.id }

// Engine returns the engine th executes for.
func (th *Thread) Engine() *Engine { return th.engine }

// OSThreadID returns the id recorded by BindOSThread, or 0.
func (th *Thread) OSThreadID() int { return int(th.tid.Load(atomics.Acquire)) }

// Context returns the context handed to work executing on th.
func (th *Thread) Context() context.Context { return th.ctx }

// Slot returns the value stored under k.
func (th *Thread) Slot(k SlotKey) any {
	th.checkOwner("Slot")
	switch {
	case k < reservedSlots:
		th.engine.fatalf(nil, "Slot", "slot key %d is reserved", k)
		return nil
	case k < inlineSlots:
		return th.slots[k]
	default:
		return th.extra[k]
	}
}

// SetSlot stores v under k.
func (th *Thread) SetSlot(k SlotKey, v any) {
	th.checkOwner("SetSlot")
	switch {
	case k < reservedSlots:
		th.engine.fatalf(nil, "SetSlot", "slot key %d is reserved", k)
	case k < inlineSlots:
		th.slots[k] = v
	default:
		if th.extra == nil {
			th.extra = make(map[SlotKey]any)
		}
		th.extra[k] = v
	}
}

// DefaultPriority is the priority captured by work submitted from th.
func (th *Thread) DefaultPriority() Priority { return th.defaultPriority }

// AdoptPriority replaces the default priority and returns the previous value,
// to be passed to ResetPriority.
func (th *Thread) AdoptPriority(p Priority) Priority {
	old := th.defaultPriority
	th.defaultPriority = p
	return old
}

// ResetPriority restores a value returned by AdoptPriority.
func (th *Thread) ResetPriority(old Priority) { th.defaultPriority = old }

// CurrentQueue returns the queue whose work th is executing, or nil.
func (th *Thread) CurrentQueue() *Queue { return th.currentQueue }

func (th *Thread) setCurrentQueue(q *Queue) *Queue {
	prev := th.currentQueue
	th.currentQueue = q
	return prev
}

// Stats returns the thread's counters. Safe for concurrent use.
func (th *Thread) Stats() ThreadStats {
	return ThreadStats{
		Name:       th.name,
		ID:         th.id,
		CacheHits:  th.stats.cacheHits.Load(atomics.Relaxed),
		HeapAllocs: th.stats.heapAllocs.Load(atomics.Relaxed),
		HeapFrees:  th.stats.heapFrees.Load(atomics.Relaxed),
		Executed:   th.stats.executed.Load(atomics.Relaxed),
	}
}

func (th *Thread) owned() bool { return th.owner == currentGoroutineID() }

// currentGoroutineID returns the runtime id of the calling goroutine. The
// stack header is parsed on platforms without a fast path.
func currentGoroutineID() int64 {
	if id := goroutineid.Fast(); id >= 0 {
		return id
	}
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

func (th *Thread) checkOwner(op string) {
	if !th.owned() {
		th.engine.fatalf(nil, op, "thread %q used from a goroutine that does not own it", th.name)
	}
}

// raiseOSOverride boosts the OS priority of th to qos if that is higher than
// any boost already applied. Called from any goroutine.
//
// q is the queue th was observed draining. The boost is skipped when th has
// moved on by the time the override is recorded, so a finished drain is not
// left boosted.
func (th *Thread) raiseOSOverride(q *Queue, qos QoSClass) {
	tid := th.tid.Load(atomics.Acquire)
	if tid == 0 {
		return
	}
	prev, raised := atomics.StoreMax(&th.osOverride, uint32(qos), atomics.AcqRel)
	if !raised {
		return
	}
	if q != nil && q.thread.Load(atomics.Acquire) != th {
		th.osOverride.CompareAndSwap(uint32(qos), prev, atomics.AcqRel)
		return
	}
	th.engine.priorityControl.SetThreadNice(int(tid), qos.nice())
}

// resetOSOverride drops any boost applied to th. Owner only.
func (th *Thread) resetOSOverride() {
	tid := th.tid.Load(atomics.Acquire)
	if th.osOverride.Swap(0, atomics.AcqRel) == 0 || tid == 0 {
		return
	}
	th.engine.priorityControl.SetThreadNice(int(tid), th.baseNice)
}

// ThreadFromContext returns the Thread carried by ctx, or nil.
func ThreadFromContext(ctx context.Context) *Thread {
	if ctx == nil {
		return nil
	}
	th, _ := ctx.Value(threadKey{}).(*Thread)
	return th
}

// ownedThread returns the Thread in ctx when the calling goroutine owns it.
func ownedThread(ctx context.Context) *Thread {
	if th := ThreadFromContext(ctx); th != nil && th.owned() {
		return th
	}
	return nil
}

// CurrentQueue returns the queue executing the calling work item, or nil
// when ctx does not belong to a worker owned by the calling goroutine.
func CurrentQueue(ctx context.Context) *Queue {
	if th := ownedThread(ctx); th != nil {
		return th.currentQueue
	}
	return nil
}

// OnQueue reports whether the caller is running on q, directly or through a
// queue that targets q.
func OnQueue(ctx context.Context, q *Queue) bool {
	for cur := CurrentQueue(ctx); cur != nil; cur = cur.Target() {
		if cur == q {
			return true
		}
	}
	return false
}
