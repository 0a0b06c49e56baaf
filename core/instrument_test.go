//go:build !dispatch_noinstrument

package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/ravynsoft/go-dispatch/core"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *eventRecorder) OnEvent(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// forQueue returns the kinds of events recorded for label.
func (r *eventRecorder) forQueue(label string) []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.EventKind
	for _, ev := range r.events {
		if ev.Queue == label {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func (r *eventRecorder) all() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

type recordingMetrics struct {
	mu        sync.Mutex
	durations map[string]int
	qos       map[string]core.QoSClass
	panics    map[string]int
	overrides map[string][]core.QoSClass
	discarded map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		durations: make(map[string]int),
		qos:       make(map[string]core.QoSClass),
		panics:    make(map[string]int),
		overrides: make(map[string][]core.QoSClass),
		discarded: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordWorkDuration(label string, qos core.QoSClass, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[label]++
	m.qos[label] = qos
}

func (m *recordingMetrics) RecordWorkPanic(label string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[label]++
}

func (m *recordingMetrics) RecordOverride(label string, qos core.QoSClass) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[label] = append(m.overrides[label], qos)
}

func (m *recordingMetrics) RecordDiscarded(label string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded[label] += n
}

// TestHook_ContinuationLifecycle verifies the events emitted for one item
// Given: An engine with a recording hook
// When: One item is pushed and drained
// Then: The queue reports push, pop and execute, and the root queue carries
// the invoke record that drained it
func TestHook_ContinuationLifecycle(t *testing.T) {
	rec := &eventRecorder{}
	pool := &manualPool{}
	cfg := testConfig(nil)
	cfg.Hook = rec
	eng := core.NewEngine(pool, cfg)
	th := eng.NewThread("worker", 0)
	q := eng.NewQueue("hooked", core.SerialAttr(core.QoSUtility))
	defer q.Release()

	work := func(context.Context) {}
	q.Async(context.Background(), work)
	pool.runAll(eng, th)

	assert.Equal(t, []core.EventKind{core.EventPush, core.EventPop, core.EventExecute}, rec.forQueue("hooked"))
	assert.Equal(t, []core.EventKind{core.EventPush, core.EventPop, core.EventExecute}, rec.forQueue("root.utility-qos.overcommit"))

	for _, ev := range rec.all() {
		switch ev.Queue {
		case "hooked":
			assert.Equal(t, core.KindWork, ev.Continuation)
			assert.NotZero(t, ev.Func)
		default:
			assert.Equal(t, core.KindQueueInvoke, ev.Continuation)
			assert.Zero(t, ev.Func)
		}
	}
}

// TestHook_OverrideAndDiscard verifies override and discard events
func TestHook_OverrideAndDiscard(t *testing.T) {
	rec := &eventRecorder{}
	cfg := testConfig(nil)
	cfg.Hook = rec
	eng := core.NewEngine(&manualPool{}, cfg)
	q := eng.NewQueue("hooked", core.QueueAttr{Width: 1, QoS: core.QoSBackground, Inactive: true})

	q.AsyncWithPriority(context.Background(), highPriority, func(context.Context) {})
	q.Release()

	var overrides []core.Priority
	for _, ev := range rec.all() {
		if ev.Queue == "hooked" && ev.Kind == core.EventOverride {
			overrides = append(overrides, ev.Priority)
		}
	}
	assert.Equal(t, []core.Priority{highPriority.Normalize()}, overrides)
	assert.Equal(t, []core.EventKind{core.EventPush, core.EventOverride, core.EventPop, core.EventDiscard}, rec.forQueue("hooked"))
}

// TestMetrics_Recorded verifies the engine reports to a configured Metrics
func TestMetrics_Recorded(t *testing.T) {
	m := newRecordingMetrics()
	pool := &manualPool{}
	cfg := testConfig(nil)
	cfg.Metrics = m
	eng := core.NewEngine(pool, cfg)
	th := eng.NewThread("worker", 0)

	q := eng.NewQueue("measured", core.SerialAttr(core.QoSUtility))
	defer q.Release()
	q.Async(context.Background(), func(context.Context) {})
	q.Async(context.Background(), func(context.Context) { panic("boom") })
	pool.runAll(eng, th)

	doomed := eng.NewQueue("doomed", core.QueueAttr{Width: 1, QoS: core.QoSBackground, Inactive: true})
	doomed.AsyncWithPriority(context.Background(), highPriority, func(context.Context) {})
	doomed.AsyncWithPriority(context.Background(), highPriority, func(context.Context) {})
	doomed.Release()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.durations["measured"])
	assert.Equal(t, core.QoSUtility, m.qos["measured"])
	assert.Equal(t, 1, m.panics["measured"])
	require.Len(t, m.overrides["doomed"], 1)
	assert.Equal(t, core.QoSUserInteractive, m.overrides["doomed"][0])
	assert.Equal(t, 2, m.discarded["doomed"])
}
