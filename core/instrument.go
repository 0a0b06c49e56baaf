package core

import "reflect"

// EventKind classifies instrumentation events.
type EventKind uint8

const (
	EventPush EventKind = iota
	EventPop
	EventExecute
	EventOverride
	EventDiscard
)

func (k EventKind) String() string {
	switch k {
	case EventPush:
		return "push"
	case EventPop:
		return "pop"
	case EventExecute:
		return "execute"
	case EventOverride:
		return "override"
	case EventDiscard:
		return "discard"
	default:
		return "unknown"
	}
}

// Event describes one step of a continuation's life.
type Event struct {
	Kind  EventKind
	Queue string
	// Continuation is the kind of record involved.
	Continuation ContinuationKind
	// Func is the entry point of the work function, 0 for engine records.
	Func     uintptr
	Priority Priority
}

// Hook receives instrumentation events. OnEvent runs inline on the push and
// drain paths and must not block or submit work.
type Hook interface {
	OnEvent(Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(Event)

func (f HookFunc) OnEvent(ev Event) { f(ev) }

// emit reports an event for c. Callers guard with instrumentationCompiled so
// the call and its arguments disappear from builds without instrumentation.
func (e *Engine) emit(kind EventKind, q *Queue, c *Continuation) {
	if e.hook == nil {
		return
	}
	ev := Event{Kind: kind, Queue: q.label}
	if c != nil {
		ev.Priority = c.priority
		ev.Continuation = c.kind
		ev.Func = workEntry(c)
	}
	e.hook.OnEvent(ev)
}

func workEntry(c *Continuation) uintptr {
	if c.kind != KindWork {
		return 0
	}
	if w, ok := c.arg.(Work); ok && w != nil {
		return reflect.ValueOf(w).Pointer()
	}
	if c.fn != nil {
		return reflect.ValueOf(c.fn).Pointer()
	}
	return 0
}
