package dispatch

import (
	"testing"

	"github.com/ravynsoft/go-dispatch/core"
)

func newTestRoots(t *testing.T) *core.RootQueues {
	t.Helper()
	eng := core.NewEngine(core.ThreadPoolFunc(func(core.DrainRequest) {}), testEngineConfig())
	return eng.Roots()
}

// TestRequestQueue_PriorityOrder verifies higher classes pop first, FIFO
// within a class
func TestRequestQueue_PriorityOrder(t *testing.T) {
	roots := newTestRoots(t)
	q := NewRequestQueue()

	reqs := []core.DrainRequest{
		{Queue: roots.Root(core.QoSBackground, false), Priority: core.NewPriority(core.QoSBackground, 0)},
		{Queue: roots.Root(core.QoSUserInteractive, false), Priority: core.NewPriority(core.QoSUserInteractive, 0)},
		{Queue: roots.Root(core.QoSUtility, false), Priority: core.NewPriority(core.QoSUtility, 0)},
		{Queue: roots.Root(core.QoSUtility, true), Priority: core.NewPriority(core.QoSUtility, -5)},
	}
	for _, r := range reqs {
		if !q.Push(r) {
			t.Fatalf("push of %s was coalesced", r.Queue.Label())
		}
	}

	want := []string{
		"root.user-interactive-qos",
		"root.utility-qos",
		"root.utility-qos.overcommit",
		"root.background-qos",
	}
	for i, label := range want {
		r, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if r.Queue.Label() != label {
			t.Errorf("pop %d: expected %s, got %s", i, label, r.Queue.Label())
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

// TestRequestQueue_Coalescing verifies duplicate requests merge and raise
// the pending priority
func TestRequestQueue_Coalescing(t *testing.T) {
	roots := newTestRoots(t)
	q := NewRequestQueue()
	low := roots.Root(core.QoSBackground, true)
	mid := roots.Root(core.QoSDefault, true)

	q.Push(core.DrainRequest{Queue: low, Priority: core.NewPriority(core.QoSBackground, 0)})
	q.Push(core.DrainRequest{Queue: mid, Priority: core.NewPriority(core.QoSDefault, 0)})
	if q.Push(core.DrainRequest{Queue: low, Priority: core.NewPriority(core.QoSUserInteractive, 0)}) {
		t.Fatal("expected the second request for the same queue to coalesce")
	}
	if q.Len() != 2 {
		t.Errorf("expected 2 pending, got %d", q.Len())
	}
	if q.Coalesced() != 1 {
		t.Errorf("expected 1 coalesced, got %d", q.Coalesced())
	}

	r, _ := q.Pop()
	if r.Queue != low || r.Priority.QoS() != core.QoSUserInteractive {
		t.Errorf("expected the raised request first, got %s at %s", r.Queue.Label(), r.Priority)
	}

	// once popped, a new request is queued again
	if !q.Push(core.DrainRequest{Queue: low, Priority: core.NewPriority(core.QoSBackground, 0)}) {
		t.Error("expected a new pending entry after pop")
	}
}

func TestRequestQueue_Clear(t *testing.T) {
	roots := newTestRoots(t)
	q := NewRequestQueue()
	for _, r := range roots.All() {
		q.Push(core.DrainRequest{Queue: r, Priority: r.BasePriority()})
	}
	if n := q.Clear(); n != 12 {
		t.Errorf("expected 12 cleared, got %d", n)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
	if !q.Push(core.DrainRequest{Queue: roots.Root(core.QoSDefault, false)}) {
		t.Error("expected pending set to be cleared too")
	}
}

func TestRequestQueue_Compaction(t *testing.T) {
	eng := core.NewEngine(core.ThreadPoolFunc(func(core.DrainRequest) {}), testEngineConfig())
	q := NewRequestQueue()
	var queues []*core.Queue
	for i := 0; i < 200; i++ {
		qq := eng.NewQueue("q", core.SerialAttr(core.QoSDefault))
		queues = append(queues, qq)
		q.Push(core.DrainRequest{Queue: qq, Priority: qq.BasePriority()})
	}
	for i := 0; i < 195; i++ {
		q.Pop()
	}
	if c := cap(q.items); c >= 256 {
		t.Errorf("expected capacity to shrink, got %d", c)
	}
	if q.Len() != 5 {
		t.Errorf("expected 5 remaining, got %d", q.Len())
	}
	for _, qq := range queues {
		qq.Release()
	}
}
