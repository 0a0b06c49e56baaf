package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/ravynsoft/go-dispatch/core"
)

// ErrShutdownTimeout is returned by ShutdownGraceful when queued requests
// did not drain in time.
var ErrShutdownTimeout = errors.New("dispatch: graceful shutdown timed out")

// DrainScheduler hands drain requests to pool workers.
type DrainScheduler struct {
	queue       *RequestQueue
	signal      chan struct{}
	workerCount int

	metricQueued   int32 // waiting in the request queue
	metricActive   int32 // being drained by a worker
	metricRejected uint64

	logger  *core.Logger
	limiter *catrate.Limiter

	shuttingDown int32
}

// NewDrainScheduler creates a scheduler for workerCount workers. A nil
// logger uses core.DefaultLogger.
func NewDrainScheduler(workerCount int, logger *core.Logger) *DrainScheduler {
	if logger == nil {
		logger = core.DefaultLogger()
	}
	return &DrainScheduler{
		queue:       NewRequestQueue(),
		signal:      make(chan struct{}, max(workerCount, 1)*2),
		workerCount: workerCount,
		logger:      logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Second: 1,
			time.Minute: 10,
		}),
	}
}

// PostDrain queues req for the next free worker.
func (s *DrainScheduler) PostDrain(req core.DrainRequest) {
	if atomic.LoadInt32(&s.shuttingDown) == 1 {
		atomic.AddUint64(&s.metricRejected, 1)
		if _, ok := s.limiter.Allow("rejected"); !ok {
			return
		}
		if b := s.logger.Warning(); b.Enabled() {
			b.Str("queue", req.Queue.Label()).Log("drain request rejected: scheduler shutting down")
		}
		return
	}

	if s.queue.Push(req) {
		atomic.AddInt32(&s.metricQueued, 1)
	}

	select {
	case s.signal <- struct{}{}:
	default:
		// a wakeup is already pending; the request is queued
	}
}

// GetWork blocks until a request is available or stopCh is closed. The
// caller must call OnDrainEnd once it has run the request.
func (s *DrainScheduler) GetWork(stopCh <-chan struct{}) (core.DrainRequest, bool) {
	for {
		if req, ok := s.queue.Pop(); ok {
			s.markActive()
			return req, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return core.DrainRequest{}, false
		}
	}
}

// TryGetWork returns a queued request without blocking.
func (s *DrainScheduler) TryGetWork() (core.DrainRequest, bool) {
	req, ok := s.queue.Pop()
	if ok {
		s.markActive()
	}
	return req, ok
}

// markActive moves a popped request from queued to active. Active is raised
// first so that the two never read zero together while work is in hand.
func (s *DrainScheduler) markActive() {
	atomic.AddInt32(&s.metricActive, 1)
	atomic.AddInt32(&s.metricQueued, -1)
}

// Shutdown stops accepting requests and drops the queued ones. Queues whose
// requests are dropped keep their items until another push wakes them.
func (s *DrainScheduler) Shutdown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
	if n := s.queue.Clear(); n > 0 {
		atomic.AddInt32(&s.metricQueued, int32(-n))
	}
}

// ShutdownGraceful waits for the queued and active requests to finish, then
// stops accepting requests. Requests posted while draining are accepted,
// since draining a queue posts requests for the queues it feeds.
func (s *DrainScheduler) ShutdownGraceful(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			s.Shutdown()
			return fmt.Errorf("%w after %v", ErrShutdownTimeout, timeout)
		case <-ticker.C:
			if s.QueuedCount() == 0 && s.ActiveCount() == 0 {
				atomic.StoreInt32(&s.shuttingDown, 1)
				return nil
			}
		}
	}
}

func (s *DrainScheduler) WorkerCount() int   { return s.workerCount }
func (s *DrainScheduler) QueuedCount() int   { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *DrainScheduler) ActiveCount() int   { return int(atomic.LoadInt32(&s.metricActive)) }
func (s *DrainScheduler) RejectedCount() int { return int(atomic.LoadUint64(&s.metricRejected)) }

// CoalescedCount returns how many requests were merged into pending ones.
func (s *DrainScheduler) CoalescedCount() int { return int(s.queue.Coalesced()) }

func (s *DrainScheduler) OnDrainStart() { atomic.AddInt32(&s.metricActive, 1) }
func (s *DrainScheduler) OnDrainEnd()   { atomic.AddInt32(&s.metricActive, -1) }
