package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ravynsoft/go-dispatch/core"
	"github.com/ravynsoft/go-dispatch/internal/sched"
)

// ErrPoolNotRunning is returned by StopGraceful on a pool that was never
// started or is already stopped.
var ErrPoolNotRunning = errors.New("dispatch: thread pool is not running")

// PoolConfig configures a GoroutineThreadPool.
type PoolConfig struct {
	// Workers is the number of long-lived workers. Values below 1 use
	// GOMAXPROCS.
	Workers int

	// MaxOvercommit bounds the transient workers started for overcommit root
	// queues while every worker is busy. 0 disables overcommit.
	MaxOvercommit int

	// BindOSThreads locks each worker to an OS thread so that priority
	// inheritance can change its scheduling priority.
	BindOSThreads bool

	// Logger defaults to core.DefaultLogger.
	Logger *core.Logger
}

// DefaultPoolConfig returns one worker per CPU, with OS thread binding.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:       runtime.GOMAXPROCS(0),
		MaxOvercommit: 64,
		BindOSThreads: true,
	}
}

// GoroutineThreadPool runs drain requests for the root queues of an engine
// on a fixed set of worker goroutines, plus transient workers for
// overcommit root queues.
type GoroutineThreadPool struct {
	id        string
	config    PoolConfig
	scheduler *DrainScheduler
	logger    *core.Logger

	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    bool
	stopped    bool
	runningMu  sync.RWMutex
	overcommit atomic.Int32
}

// Ensure GoroutineThreadPool implements core.ThreadPool.
var _ core.ThreadPool = (*GoroutineThreadPool)(nil)

// NewGoroutineThreadPool creates a pool. Requests posted before Start are
// queued.
func NewGoroutineThreadPool(id string, config PoolConfig) *GoroutineThreadPool {
	if config.Workers < 1 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	config.MaxOvercommit = max(config.MaxOvercommit, 0)
	if config.Logger == nil {
		config.Logger = core.DefaultLogger()
	}
	return &GoroutineThreadPool{
		id:        id,
		config:    config,
		scheduler: NewDrainScheduler(config.Workers, config.Logger),
		logger:    config.Logger,
	}
}

// NewEngine creates a pool and an engine whose root queues it drains. The
// pool is not started. When engineConfig has no PriorityController and the
// pool binds OS threads, priority inheritance uses setpriority(2).
func NewEngine(id string, poolConfig PoolConfig, engineConfig *core.EngineConfig) (*core.Engine, *GoroutineThreadPool) {
	if engineConfig == nil {
		engineConfig = core.DefaultEngineConfig()
	}
	cfg := *engineConfig
	if cfg.Logger == nil {
		cfg.Logger = core.DefaultLogger()
	}
	if poolConfig.Logger == nil {
		poolConfig.Logger = cfg.Logger
	}
	if cfg.PriorityController == nil && poolConfig.BindOSThreads {
		cfg.PriorityController = sched.NewController(cfg.Logger)
	}
	pool := NewGoroutineThreadPool(id, poolConfig)
	return core.NewEngine(pool, &cfg), pool
}

// Start starts the workers. Starting a running or stopped pool does nothing.
func (p *GoroutineThreadPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running || p.stopped {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(p.ctx, i)
	}
}

// Stop stops the workers without waiting for queued requests. Queues whose
// requests are dropped are not drained again until their next push.
func (p *GoroutineThreadPool) Stop() {
	p.scheduler.Shutdown()
	if !p.markStopped() {
		return
	}
	p.cancel()
	p.Join()
}

// StopGraceful waits up to timeout for queued requests to drain, then stops
// the workers.
func (p *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	if !p.IsRunning() {
		return ErrPoolNotRunning
	}
	err := p.scheduler.ShutdownGraceful(timeout)
	if p.markStopped() {
		p.cancel()
		p.Join()
	}
	if err != nil {
		return fmt.Errorf("stop pool %q: %w", p.id, err)
	}
	return nil
}

// markStopped reports whether the pool was running.
func (p *GoroutineThreadPool) markStopped() bool {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	p.stopped = true
	if !p.running {
		return false
	}
	p.running = false
	return true
}

func (p *GoroutineThreadPool) ID() string { return p.id }

func (p *GoroutineThreadPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// Join waits for every worker, transient ones included, to exit.
func (p *GoroutineThreadPool) Join() { p.wg.Wait() }

func (p *GoroutineThreadPool) WorkerCount() int     { return p.config.Workers }
func (p *GoroutineThreadPool) QueuedCount() int     { return p.scheduler.QueuedCount() }
func (p *GoroutineThreadPool) ActiveCount() int     { return p.scheduler.ActiveCount() }
func (p *GoroutineThreadPool) OvercommitCount() int { return int(p.overcommit.Load()) }

// Scheduler exposes the request scheduler for diagnostics.
func (p *GoroutineThreadPool) Scheduler() *DrainScheduler { return p.scheduler }

// Stats returns a snapshot of the pool's state.
func (p *GoroutineThreadPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:         p.id,
		Workers:    p.config.Workers,
		Overcommit: p.OvercommitCount(),
		Queued:     p.QueuedCount(),
		Active:     p.ActiveCount(),
		Running:    p.IsRunning(),
	}
}

// RequestDrain implements core.ThreadPool.
func (p *GoroutineThreadPool) RequestDrain(req core.DrainRequest) {
	if req.Queue.BasePriority().Overcommit() && p.startOvercommit(req) {
		return
	}
	p.scheduler.PostDrain(req)
}

// startOvercommit runs req on a transient worker when every long-lived
// worker is busy.
func (p *GoroutineThreadPool) startOvercommit(req core.DrainRequest) bool {
	limit := int32(p.config.MaxOvercommit)
	if limit == 0 {
		return false
	}
	busy := p.scheduler.ActiveCount() - p.OvercommitCount()
	if busy < p.config.Workers && p.scheduler.QueuedCount() == 0 {
		return false
	}

	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	if !p.running {
		return false
	}
	for {
		n := p.overcommit.Load()
		if n >= limit {
			return false
		}
		if p.overcommit.CompareAndSwap(n, n+1) {
			break
		}
	}
	p.scheduler.OnDrainStart()
	p.wg.Add(1)
	go p.overcommitWorker(req)
	return true
}

// workerLoop is the main loop of a long-lived worker.
func (p *GoroutineThreadPool) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	w := &worker{pool: p, id: id, name: fmt.Sprintf("%s-worker-%d", p.id, id)}
	defer w.release()
	defer w.crashed()

	stopCh := ctx.Done()
	for {
		req, ok := p.scheduler.GetWork(stopCh)
		if !ok {
			return
		}
		w.invoke(req)
		p.scheduler.OnDrainEnd()
	}
}

// overcommitWorker drains req, which startOvercommit already counted as
// active, then keeps taking queued requests until none are left.
func (p *GoroutineThreadPool) overcommitWorker(req core.DrainRequest) {
	defer p.wg.Done()
	defer p.overcommit.Add(-1)
	w := &worker{pool: p, id: -1, name: p.id + "-overcommit"}
	defer w.release()
	defer w.crashed()

	for ok := true; ok; req, ok = p.scheduler.TryGetWork() {
		w.invoke(req)
		p.scheduler.OnDrainEnd()
	}
}

// worker holds the Thread a pool goroutine drains with. The Thread is
// created on first use, on the worker goroutine that owns it.
type worker struct {
	pool *GoroutineThreadPool
	id   int
	name string
	th   *core.Thread
}

func (w *worker) invoke(req core.DrainRequest) {
	eng := req.Queue.Engine()
	if w.th == nil || w.th.Engine() != eng {
		w.release()
		w.th = eng.NewThread(w.name, w.id)
		if w.pool.config.BindOSThreads {
			w.th.BindOSThread()
		}
	}
	eng.Invoke(w.th, req.Queue, req.Priority)
}

func (w *worker) release() {
	if w.th != nil && w.pool.config.BindOSThreads {
		w.th.UnbindOSThread()
	}
	w.th = nil
}

// crashed logs a panic escaping the engine, which is always an invariant
// violation, and re-raises it.
func (w *worker) crashed() {
	r := recover()
	if r == nil {
		return
	}
	w.pool.logger.Crit().
		Str("pool", w.pool.id).
		Int("worker", w.id).
		Any("panic", r).
		Log("pool worker terminated")
	panic(r)
}

// =============================================================================
// Global engine helper (singleton)
// =============================================================================

var (
	globalEngine *core.Engine
	globalPool   *GoroutineThreadPool
	globalMu     sync.Mutex
)

// InitGlobalEngine creates and starts the global engine with the given
// number of workers. Later calls do nothing.
func InitGlobalEngine(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalEngine != nil {
		return
	}

	cfg := DefaultPoolConfig()
	cfg.Workers = workers
	globalEngine, globalPool = NewEngine("global-pool", cfg, nil)
	globalPool.Start(context.Background())
}

// GetGlobalEngine returns the global engine. It panics if InitGlobalEngine
// has not been called.
func GetGlobalEngine() *core.Engine {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalEngine == nil {
		panic("dispatch: global engine not initialized; call InitGlobalEngine first")
	}
	return globalEngine
}

// GetGlobalThreadPool returns the pool behind the global engine, or nil.
func GetGlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalPool
}

// ShutdownGlobalEngine stops the global pool and forgets the engine.
func ShutdownGlobalEngine() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalPool != nil {
		globalPool.Stop()
	}
	globalEngine, globalPool = nil, nil
}

// NewSerialQueue creates a serial queue on the global engine.
func NewSerialQueue(label string, qos core.QoSClass) *core.Queue {
	return GetGlobalEngine().NewQueue(label, core.SerialAttr(qos))
}

// NewConcurrentQueue creates an unbounded concurrent queue on the global
// engine.
func NewConcurrentQueue(label string, qos core.QoSClass) *core.Queue {
	return GetGlobalEngine().NewQueue(label, core.ConcurrentAttr(qos))
}
