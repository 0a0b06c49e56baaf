package dispatch

import "github.com/ravynsoft/go-dispatch/core"

// Re-export commonly used types from core so that most applications import
// only this package.

type (
	Engine    = core.Engine
	Queue     = core.Queue
	QueueAttr = core.QueueAttr
	Group     = core.Group
	Work      = core.Work
	QoSClass  = core.QoSClass
	Priority  = core.Priority
)

// QoS classes
const (
	QoSUnspecified     = core.QoSUnspecified
	QoSMaintenance     = core.QoSMaintenance
	QoSBackground      = core.QoSBackground
	QoSUtility         = core.QoSUtility
	QoSDefault         = core.QoSDefault
	QoSUserInitiated   = core.QoSUserInitiated
	QoSUserInteractive = core.QoSUserInteractive
)

var (
	NewGroup         = core.NewGroup
	NewPriority      = core.NewPriority
	SerialAttr       = core.SerialAttr
	ConcurrentAttr   = core.ConcurrentAttr
	CurrentQueue     = core.CurrentQueue
	OnQueue          = core.OnQueue
	GetSpecific      = core.GetSpecific
	AssertOnQueue    = core.AssertOnQueue
	AssertNotOnQueue = core.AssertNotOnQueue
	Apply            = core.Apply
	AsyncAndReply    = core.AsyncAndReply
)

// WorkWithResult and ReplyWithResult for the generic AsyncAndReply pattern
type WorkWithResult[T any] = core.WorkWithResult[T]
type ReplyWithResult[T any] = core.ReplyWithResult[T]
