package core

import (
	"context"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
)

// specificTable is an immutable key/value set. Writers publish a modified
// copy; readers never block.
type specificTable struct {
	values map[any]any
}

// SetSpecific associates value with key on q. A nil value removes key. Keys
// must be comparable, as for context values. Root queues ignore
// SetSpecific.
func (q *Queue) SetSpecific(key, value any) {
	if q.root || key == nil {
		return
	}
	for {
		old := q.specific.Load(atomics.Acquire)
		var next *specificTable
		if old != nil {
			if _, ok := old.values[key]; !ok && value == nil {
				return
			}
			next = &specificTable{values: make(map[any]any, len(old.values)+1)}
			for k, v := range old.values {
				next.values[k] = v
			}
		} else {
			if value == nil {
				return
			}
			next = &specificTable{values: make(map[any]any, 1)}
		}
		if value == nil {
			delete(next.values, key)
		} else {
			next.values[key] = value
		}
		if q.specific.CompareAndSwap(old, next, atomics.AcqRel) {
			return
		}
	}
}

// GetSpecific returns the value set on q for key, or nil.
func (q *Queue) GetSpecific(key any) any {
	t := q.specific.Load(atomics.Acquire)
	if t == nil {
		return nil
	}
	return t.values[key]
}

// GetSpecific returns the value for key on the queue executing the calling
// work item, falling back along its target chain. It returns nil outside of
// queue work.
func GetSpecific(ctx context.Context, key any) any {
	for q := CurrentQueue(ctx); q != nil; q = q.Target() {
		if v := q.GetSpecific(key); v != nil {
			return v
		}
	}
	return nil
}

// AssertOnQueue is fatal unless the caller is running on q, directly or
// through a queue that targets q.
func AssertOnQueue(ctx context.Context, q *Queue) {
	if !OnQueue(ctx, q) {
		q.engine.fatalf(q, "AssertOnQueue", "caller is not running on the queue")
	}
}

// AssertNotOnQueue is fatal when the caller is running on q.
func AssertNotOnQueue(ctx context.Context, q *Queue) {
	if OnQueue(ctx, q) {
		q.engine.fatalf(q, "AssertNotOnQueue", "caller is running on the queue")
	}
}
