package core

import (
	"math"

	"github.com/ravynsoft/go-dispatch/internal/atomics"
)

const rootQueueCount = qosClassCount * 2

// RootQueues is the fixed table of root queues: one per QoS class, each with
// an overcommit and a non-overcommit variant. Root queues are drained by the
// ThreadPool, never retargeted and never released.
type RootQueues struct {
	queues [rootQueueCount]Queue
}

func rootIndex(qos QoSClass, overcommit bool) int {
	i := (int(qos) - 1) << 1
	if overcommit {
		i |= 1
	}
	return i
}

func rootLabel(qos QoSClass, overcommit bool) string {
	switch qos {
	case QoSMaintenance:
		if overcommit {
			return "root.maintenance-qos.overcommit"
		}
		return "root.maintenance-qos"
	case QoSBackground:
		if overcommit {
			return "root.background-qos.overcommit"
		}
		return "root.background-qos"
	case QoSUtility:
		if overcommit {
			return "root.utility-qos.overcommit"
		}
		return "root.utility-qos"
	case QoSUserInitiated:
		if overcommit {
			return "root.user-initiated-qos.overcommit"
		}
		return "root.user-initiated-qos"
	case QoSUserInteractive:
		if overcommit {
			return "root.user-interactive-qos.overcommit"
		}
		return "root.user-interactive-qos"
	default:
		if overcommit {
			return "root.default-qos.overcommit"
		}
		return "root.default-qos"
	}
}

func newRootQueues(e *Engine) *RootQueues {
	r := new(RootQueues)
	for qos := QoSMaintenance; qos <= QoSUserInteractive; qos++ {
		for _, overcommit := range [...]bool{false, true} {
			q := &r.queues[rootIndex(qos, overcommit)]
			q.engine = e
			q.label = rootLabel(qos, overcommit)
			q.serial = e.serial.Add(1, atomics.Relaxed)
			q.root = true
			q.overcommit = overcommit
			q.base = NewPriority(qos, 0).WithOvercommit(overcommit)
			q.width.Store(math.MaxInt32, atomics.Relaxed)
			q.override.Store(uint32(q.base.Normalize()), atomics.Relaxed)
		}
	}
	return r
}

// Root returns the root queue for qos. An unspecified or unknown class
// selects the default class. Root never allocates and never fails.
func (r *RootQueues) Root(qos QoSClass, overcommit bool) *Queue {
	switch qos {
	case QoSMaintenance, QoSBackground, QoSUtility, QoSDefault, QoSUserInitiated, QoSUserInteractive:
		return &r.queues[rootIndex(qos, overcommit)]
	default:
		return &r.queues[rootIndex(QoSDefault, overcommit)]
	}
}

// All returns every root queue, lowest class first.
func (r *RootQueues) All() []*Queue {
	out := make([]*Queue, 0, rootQueueCount)
	for i := range r.queues {
		out = append(out, &r.queues[i])
	}
	return out
}
