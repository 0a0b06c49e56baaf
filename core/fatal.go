package core

import "fmt"

// InvariantViolation is the panic value raised when the engine detects
// corrupted state or API misuse. It is never recovered by the engine.
type InvariantViolation struct {
	Op    string
	Queue string
	Msg   string
}

func (v *InvariantViolation) Error() string {
	if v.Queue != "" {
		return fmt.Sprintf("dispatch: %s on %q: %s", v.Op, v.Queue, v.Msg)
	}
	return fmt.Sprintf("dispatch: %s: %s", v.Op, v.Msg)
}

// fatalf logs a critical message and panics with an *InvariantViolation.
func (e *Engine) fatalf(q *Queue, op, format string, args ...any) {
	v := &InvariantViolation{Op: op, Msg: fmt.Sprintf(format, args...)}
	if q != nil {
		v.Queue = q.label
	}
	if e != nil {
		e.logger.Crit().
			Str("op", v.Op).
			Str("queue", v.Queue).
			Log(v.Msg)
	}
	panic(v)
}
