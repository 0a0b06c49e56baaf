// Package history keeps the most recent work executions of an engine.
package history

import (
	"runtime"
	"sync"
	"time"

	"github.com/ravynsoft/go-dispatch/core"
)

const defaultCapacity = 100

// Record describes one executed work item.
type Record struct {
	Queue    string
	Name     string
	Priority core.Priority
	At       time.Time
}

// Recorder is a core.Hook that records execute events of user work in a
// fixed-size ring. Engine records (queue invokes, redirects, overrides) are
// ignored.
type Recorder struct {
	mu    sync.Mutex
	items []Record
	head  int
	count int
	now   func() time.Time
}

var _ core.Hook = (*Recorder)(nil)

// New creates a recorder holding up to capacity records. Values below 1
// use a capacity of 100.
func New(capacity int) *Recorder {
	if capacity < 1 {
		capacity = defaultCapacity
	}
	return &Recorder{items: make([]Record, capacity), now: time.Now}
}

// OnEvent implements core.Hook.
func (r *Recorder) OnEvent(ev core.Event) {
	if ev.Kind != core.EventExecute || ev.Continuation != core.KindWork {
		return
	}
	r.add(Record{
		Queue:    ev.Queue,
		Name:     funcName(ev.Func),
		Priority: ev.Priority,
		At:       r.now(),
	})
}

func (r *Recorder) add(record Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = record
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}
	if limit <= 0 || limit > r.count {
		limit = r.count
	}

	out := make([]Record, 0, limit)
	for i := range limit {
		idx := (r.head - 1 - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

// Last returns the newest record.
func (r *Recorder) Last() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return Record{}, false
	}
	return r.items[(r.head-1+len(r.items))%len(r.items)], true
}

// Len returns the number of records held.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func funcName(pc uintptr) string {
	if pc == 0 {
		return "anonymous"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	return fn.Name()
}
