package core

import (
	"fmt"
	"math/bits"
)

// QoSClass is the quality-of-service class of work and queues.
type QoSClass uint8

const (
	QoSUnspecified QoSClass = iota
	QoSMaintenance
	QoSBackground
	QoSUtility
	QoSDefault
	QoSUserInitiated
	QoSUserInteractive
)

// qosClassCount is the number of concrete (non-unspecified) classes.
const qosClassCount = 6

func (c QoSClass) String() string {
	switch c {
	case QoSUnspecified:
		return "unspecified"
	case QoSMaintenance:
		return "maintenance"
	case QoSBackground:
		return "background"
	case QoSUtility:
		return "utility"
	case QoSDefault:
		return "default"
	case QoSUserInitiated:
		return "user-initiated"
	case QoSUserInteractive:
		return "user-interactive"
	default:
		return fmt.Sprintf("QoSClass(%d)", uint8(c))
	}
}

// Valid reports whether c is a concrete class.
func (c QoSClass) Valid() bool {
	return c >= QoSMaintenance && c <= QoSUserInteractive
}

// nice is the OS nice value a thread runs at while serving c.
func (c QoSClass) nice() int {
	switch c {
	case QoSMaintenance:
		return 19
	case QoSBackground:
		return 10
	case QoSUtility:
		return 5
	case QoSUserInitiated:
		return -5
	case QoSUserInteractive:
		return -10
	default:
		return 0
	}
}

// ParseQoSClass is the inverse of QoSClass.String.
func ParseQoSClass(s string) (QoSClass, error) {
	for c := QoSUnspecified; c <= QoSUserInteractive; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return QoSUnspecified, fmt.Errorf("dispatch: unknown qos class %q", s)
}

// Priority is a packed priority token.
//
// Bits 8..13 hold the QoS class as a one-hot bit, bits 0..7 the negated
// relative priority, and bit 31 the overcommit flag. Normalized tokens
// compare by plain unsigned comparison.
type Priority uint32

const (
	priorityRelativeMask Priority = 0xff
	priorityQoSShift              = 8
	priorityQoSMask      Priority = (1<<qosClassCount - 1) << priorityQoSShift

	// PriorityOvercommit requests a thread even when the pool is saturated.
	PriorityOvercommit Priority = 1 << 31

	// MinRelativePriority is the lowest relative priority within a class.
	MinRelativePriority = -15
)

// NewPriority encodes qos and a relative priority in
// [MinRelativePriority, 0]; out of range values are clamped.
func NewPriority(qos QoSClass, relative int) Priority {
	if !qos.Valid() {
		return 0
	}
	relative = min(max(relative, MinRelativePriority), 0)
	return Priority(1)<<(priorityQoSShift+uint(qos)-1) | Priority(-relative)
}

// QoS returns the highest class encoded in p.
func (p Priority) QoS() QoSClass {
	classes := uint32(p&priorityQoSMask) >> priorityQoSShift
	return QoSClass(bits.Len32(classes))
}

// RelativePriority returns the relative priority of p, in [MinRelativePriority, 0].
func (p Priority) RelativePriority() int {
	return -int(p & priorityRelativeMask)
}

// Overcommit reports whether the overcommit flag is set.
func (p Priority) Overcommit() bool { return p&PriorityOvercommit != 0 }

// WithOvercommit returns p with the overcommit flag set to v.
func (p Priority) WithOvercommit(v bool) Priority {
	if v {
		return p | PriorityOvercommit
	}
	return p &^ PriorityOvercommit
}

// Normalize returns only the highest set class bit of p, discarding flags
// and relative priority.
func (p Priority) Normalize() Priority {
	classes := uint32(p & priorityQoSMask)
	if classes == 0 {
		return 0
	}
	return Priority(1) << (bits.Len32(classes) - 1)
}

func (p Priority) String() string {
	s := p.QoS().String()
	if r := p.RelativePriority(); r != 0 {
		s = fmt.Sprintf("%s%d", s, r)
	}
	if p.Overcommit() {
		s += "+overcommit"
	}
	return s
}

// maxPriority returns the higher class of a and b, normalized.
func maxPriority(a, b Priority) Priority {
	return max(a.Normalize(), b.Normalize())
}
