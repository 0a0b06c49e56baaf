// Package dispatch provides a lock-free work-queue engine in the style of
// Grand Central Dispatch.
//
// Work is submitted to queues rather than to goroutines. A serial queue runs
// its items one at a time in FIFO order; a concurrent queue runs up to its
// width at once. Queues target other queues, forming a hierarchy whose roots
// are drained by a thread pool. The lock-free engine itself lives in the
// core package; this package provides the reference goroutine pool and a
// global engine for applications that need only one.
//
// # Quick Start
//
// Initialize the global engine at application startup:
//
//	dispatch.InitGlobalEngine(4) // 4 workers
//	defer dispatch.ShutdownGlobalEngine()
//
// Create a serial queue and submit work:
//
//	q := dispatch.NewSerialQueue("com.example.db", core.QoSUtility)
//	defer q.Release()
//	q.Async(ctx, func(ctx context.Context) {
//		// runs after every item submitted before it
//	})
//
// # Key Concepts
//
// Queue: a FIFO of work items drained by at most one worker at a time.
// Producers never block; the producer that finds a queue idle makes it
// drain by enqueueing it on its target.
//
// QoS: every queue and item carries a quality-of-service class. When
// higher-priority work lands behind lower-priority work, the queue's
// override rises and the worker draining it is boosted until the queue
// empties (priority inheritance).
//
// Root queues: one per QoS class, each with an overcommit variant that may
// get a transient worker when every pool worker is busy.
//
// GoroutineThreadPool: the collaborator that runs drain requests for root
// queues. Any type implementing core.ThreadPool can replace it.
//
// # Thread Safety
//
// Items of a serial queue never run concurrently, so state owned by the
// queue needs no locks. Sync on the current serial queue would deadlock and
// panics with a *core.InvariantViolation instead.
package dispatch
