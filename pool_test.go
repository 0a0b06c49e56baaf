package dispatch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joeycumines/logiface"

	"github.com/ravynsoft/go-dispatch/core"
)

func testPoolConfig(workers int) PoolConfig {
	return PoolConfig{
		Workers:       workers,
		MaxOvercommit: 4,
		Logger:        core.NewLogger(&bytes.Buffer{}, logiface.LevelDisabled),
	}
}

func testEngineConfig() *core.EngineConfig {
	cfg := core.DefaultEngineConfig()
	cfg.Logger = core.NewLogger(&bytes.Buffer{}, logiface.LevelDisabled)
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: cfg.Logger}
	return cfg
}

func TestGoroutineThreadPool_Lifecycle(t *testing.T) {
	pool := NewGoroutineThreadPool("test-pool", testPoolConfig(2))

	if pool.ID() != "test-pool" {
		t.Errorf("expected ID 'test-pool', got %s", pool.ID())
	}
	if pool.IsRunning() {
		t.Error("pool should not be running initially")
	}

	pool.Start(context.Background())
	if !pool.IsRunning() {
		t.Error("pool should be running after Start()")
	}
	if pool.WorkerCount() != 2 {
		t.Errorf("expected 2 workers, got %d", pool.WorkerCount())
	}

	pool.Stop()
	if pool.IsRunning() {
		t.Error("pool should not be running after Stop()")
	}

	// a stopped pool cannot be restarted
	pool.Start(context.Background())
	if pool.IsRunning() {
		t.Error("pool should stay stopped")
	}
}

func TestGoroutineThreadPool_DefaultWorkers(t *testing.T) {
	pool := NewGoroutineThreadPool("default", PoolConfig{})
	if pool.WorkerCount() < 1 {
		t.Errorf("expected at least one worker, got %d", pool.WorkerCount())
	}
	if pool.config.Logger == nil {
		t.Error("expected a default logger")
	}
}

// TestGoroutineThreadPool_DrainsQueues verifies queues submitted through an
// engine backed by the pool run to completion
// Given: A pool with 4 workers and 8 serial queues
// When: 100 items are submitted to each queue from concurrent producers
// Then: Every item runs, in FIFO order within its queue
func TestGoroutineThreadPool_DrainsQueues(t *testing.T) {
	// Arrange
	eng, pool := NewEngine("exec-pool", testPoolConfig(4), testEngineConfig())
	pool.Start(context.Background())
	defer pool.Stop()

	const queues, items = 8, 100
	g := core.NewGroup()
	orders := make([][]int, queues)

	// Act
	var wg sync.WaitGroup
	for qi := 0; qi < queues; qi++ {
		q := eng.NewQueue("serial", core.SerialAttr(core.QoSClass(qi%6+1)))
		defer q.Release()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < items; i++ {
				g.Async(context.Background(), q, func(context.Context) {
					orders[qi] = append(orders[qi], i)
				})
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("timed out with %d items pending", g.Pending())
	}

	// Assert
	for qi, order := range orders {
		if len(order) != items {
			t.Fatalf("queue %d: expected %d items, got %d", qi, items, len(order))
		}
		for i, v := range order {
			if v != i {
				t.Fatalf("queue %d: item %d ran at position %d", qi, v, i)
			}
		}
	}
}

// TestGoroutineThreadPool_BindOSThreads runs the pool the way it is
// configured by default, with every worker bound to an OS thread
// Given: A pool with 2 bound workers and the default priority controller
// When: Serial queues receive mixed-priority work, including boosts of a
// queue that is being drained, and the pool is stopped
// Then: Every item runs on a thread owned by its worker and Stop returns
func TestGoroutineThreadPool_BindOSThreads(t *testing.T) {
	cfg := testPoolConfig(2)
	cfg.BindOSThreads = true
	eng, pool := NewEngine("bound", cfg, testEngineConfig())
	pool.Start(context.Background())

	const items = 200
	g := core.NewGroup()
	var ran, foreign atomic.Int32
	q := eng.NewQueue("bound-serial", core.SerialAttr(core.QoSBackground))
	defer q.Release()
	for i := 0; i < items; i++ {
		prio := core.NewPriority(core.QoSBackground, 0)
		if i%10 == 9 {
			prio = core.NewPriority(core.QoSUserInteractive, 0)
		}
		g.Enter()
		q.AsyncWithPriority(context.Background(), prio, func(ctx context.Context) {
			defer g.Leave()
			if core.CurrentQueue(ctx) != q {
				foreign.Add(1)
			}
			ran.Add(1)
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("timed out with %d items pending", g.Pending())
	}
	if n := ran.Load(); n != items {
		t.Fatalf("expected %d items, got %d", items, n)
	}
	if n := foreign.Load(); n != 0 {
		t.Errorf("%d items did not see their queue as current", n)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		pool.Stop()
	}()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return")
	}
	if pool.IsRunning() {
		t.Error("pool should not be running after Stop()")
	}
}

func TestGoroutineThreadPool_RequestsBeforeStartAreQueued(t *testing.T) {
	eng, pool := NewEngine("late", testPoolConfig(1), testEngineConfig())
	q := eng.NewQueue("early", core.SerialAttr(core.QoSDefault))
	defer q.Release()

	done := make(chan struct{})
	q.Async(context.Background(), func(context.Context) { close(done) })
	if pool.QueuedCount() != 1 {
		t.Fatalf("expected 1 queued request, got %d", pool.QueuedCount())
	}

	pool.Start(context.Background())
	defer pool.Stop()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("queued work did not run after Start")
	}
}

// TestGoroutineThreadPool_Overcommit verifies that overcommit root queues get
// a transient worker while the only worker is blocked
func TestGoroutineThreadPool_Overcommit(t *testing.T) {
	eng, pool := NewEngine("oc-pool", testPoolConfig(1), testEngineConfig())
	pool.Start(context.Background())
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := eng.NewQueue("blocker", core.QueueAttr{Width: 2, QoS: core.QoSDefault})
	defer blocker.Release()
	blocker.Async(context.Background(), func(context.Context) {
		close(started)
		<-release
	})
	<-started

	// serial queues target overcommit roots
	done := make(chan struct{})
	q := eng.NewQueue("serial", core.SerialAttr(core.QoSDefault))
	defer q.Release()
	q.Async(context.Background(), func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("overcommit work did not run while the worker was blocked")
	}
	close(release)
}

func TestGoroutineThreadPool_StopGraceful(t *testing.T) {
	eng, pool := NewEngine("graceful", testPoolConfig(2), testEngineConfig())
	pool.Start(context.Background())

	var count atomic.Int32
	q := eng.NewQueue("work", core.ConcurrentAttr(core.QoSUtility))
	defer q.Release()
	for i := 0; i < 20; i++ {
		q.Async(context.Background(), func(context.Context) {
			time.Sleep(time.Millisecond)
			count.Add(1)
		})
	}

	if err := pool.StopGraceful(10 * time.Second); err != nil {
		t.Fatalf("StopGraceful: %v", err)
	}
	if got := count.Load(); got != 20 {
		t.Errorf("expected 20 items to finish, got %d", got)
	}
	if pool.IsRunning() {
		t.Error("pool should not be running after StopGraceful")
	}
	if err := pool.StopGraceful(time.Second); !errors.Is(err, ErrPoolNotRunning) {
		t.Errorf("expected ErrPoolNotRunning, got %v", err)
	}
}

func TestGoroutineThreadPool_StopGracefulTimeout(t *testing.T) {
	eng, pool := NewEngine("timeout", testPoolConfig(1), testEngineConfig())
	pool.Start(context.Background())

	release := make(chan struct{})
	q := eng.NewQueue("slow", core.QueueAttr{Width: 2, QoS: core.QoSDefault})
	defer q.Release()
	q.Async(context.Background(), func(context.Context) { <-release })

	go func() {
		time.Sleep(200 * time.Millisecond)
		close(release)
	}()
	err := pool.StopGraceful(20 * time.Millisecond)
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("expected ErrShutdownTimeout, got %v", err)
	}
}

func TestGoroutineThreadPool_RejectsAfterStop(t *testing.T) {
	eng, pool := NewEngine("rejecting", testPoolConfig(1), testEngineConfig())
	pool.Start(context.Background())
	pool.Stop()

	q := eng.NewQueue("late", core.QueueAttr{Width: 2, QoS: core.QoSDefault})
	defer q.Release()
	q.Async(context.Background(), func(context.Context) {})

	if got := pool.Scheduler().RejectedCount(); got != 1 {
		t.Errorf("expected 1 rejected request, got %d", got)
	}
}

func TestGoroutineThreadPool_Stats(t *testing.T) {
	pool := NewGoroutineThreadPool("stats", testPoolConfig(3))
	s := pool.Stats()
	if s.ID != "stats" || s.Workers != 3 || s.Running {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestGlobalEngine(t *testing.T) {
	InitGlobalEngine(2)
	defer ShutdownGlobalEngine()
	InitGlobalEngine(8) // ignored

	if GetGlobalThreadPool().WorkerCount() != 2 {
		t.Errorf("expected the first Init to win")
	}

	q := NewSerialQueue("global", QoSUtility)
	defer q.Release()
	if err := q.Sync(context.Background(), func(context.Context) {}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestGetGlobalEngine_PanicsBeforeInit(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
	}()
	GetGlobalEngine()
}
