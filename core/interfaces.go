package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling work panics
// =============================================================================

// PanicHandler is called when a work item panics during execution.
// The panic is recovered and draining continues with the next item.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a work item panics.
	//
	// Parameters:
	// - ctx: The context the work item received
	// - queueLabel: The label of the queue that owned the item
	// - workerID: The ID of the executing thread (-1 when not a pool worker)
	// - panicInfo: The panic value recovered from the work item
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, queueLabel string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics at error level.
type DefaultPanicHandler struct {
	Logger *Logger
}

// HandlePanic logs the panic information.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, queueLabel string, workerID int, panicInfo any, stackTrace []byte) {
	h.Logger.Err().
		Str("queue", queueLabel).
		Int("worker", workerID).
		Any("panic", panicInfo).
		Str("stack", string(stackTrace)).
		Log("work item panicked")
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting execution metrics.
// Methods should be non-blocking and fast; they run on the drain path.
type Metrics interface {
	// RecordWorkDuration records how long a work item took to execute.
	RecordWorkDuration(queueLabel string, qos QoSClass, duration time.Duration)

	// RecordWorkPanic records that a work item panicked.
	RecordWorkPanic(queueLabel string, panicInfo any)

	// RecordOverride records that a queue's override was raised to qos.
	RecordOverride(queueLabel string, qos QoSClass)

	// RecordDiscarded records items dropped when a queue was torn down with
	// work still pending.
	RecordDiscarded(queueLabel string, count int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordWorkDuration(string, QoSClass, time.Duration) {}
func (m *NilMetrics) RecordWorkPanic(string, any)                        {}
func (m *NilMetrics) RecordOverride(string, QoSClass)                    {}
func (m *NilMetrics) RecordDiscarded(string, int)                        {}

// =============================================================================
// ThreadPool: the external collaborator that supplies threads
// =============================================================================

// DrainRequest asks for Engine.Invoke(thread, Queue, Priority) to run on a
// pool thread.
type DrainRequest struct {
	Queue    *Queue
	Priority Priority
}

// ThreadPool supplies threads for root queues. RequestDrain must not block
// and may coalesce requests for the same queue.
type ThreadPool interface {
	RequestDrain(req DrainRequest)
}

// ThreadPoolFunc adapts a function to ThreadPool.
type ThreadPoolFunc func(req DrainRequest)

func (f ThreadPoolFunc) RequestDrain(req DrainRequest) { f(req) }

// ThreadPriorityController changes the OS scheduling priority of worker
// threads. It is called from producer goroutines and must not block for long.
type ThreadPriorityController interface {
	SetThreadNice(tid int, nice int)
}

type nopPriorityController struct{}

func (nopPriorityController) SetThreadNice(int, int) {}

// =============================================================================
// EngineConfig: Configuration for Engine
// =============================================================================

// EngineConfig holds configuration options for Engine.
// All handlers are optional; if not provided, default implementations will be used.
type EngineConfig struct {
	// Logger receives engine diagnostics. Defaults to DefaultLogger.
	Logger *Logger

	// PanicHandler is called when a work item panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Hook receives instrumentation events. Nil disables instrumentation.
	Hook Hook

	// PriorityController applies priority inheritance to OS threads.
	// Defaults to a no-op.
	PriorityController ThreadPriorityController

	// CacheLimit bounds the per-thread continuation cache. Defaults to DefaultCacheLimit.
	CacheLimit int
}

// DefaultEngineConfig returns a config with default handlers.
func DefaultEngineConfig() *EngineConfig {
	logger := DefaultLogger()
	return &EngineConfig{
		Logger:       logger,
		PanicHandler: &DefaultPanicHandler{Logger: logger},
		Metrics:      &NilMetrics{},
		CacheLimit:   DefaultCacheLimit,
	}
}
