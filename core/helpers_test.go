package core_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"

	core "github.com/ravynsoft/go-dispatch/core"
)

// goPool runs every drain request on a fresh goroutine with its own Thread.
type goPool struct {
	wg sync.WaitGroup
}

func (p *goPool) RequestDrain(req core.DrainRequest) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		eng := req.Queue.Engine()
		th := eng.NewThread("test-worker", 0)
		eng.Invoke(th, req.Queue, req.Priority)
	}()
}

// manualPool records drain requests; the test runs them explicitly.
type manualPool struct {
	mu       sync.Mutex
	requests []core.DrainRequest
}

func (p *manualPool) RequestDrain(req core.DrainRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

// take removes and returns the recorded requests.
func (p *manualPool) take() []core.DrainRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.requests
	p.requests = nil
	return out
}

// runAll invokes recorded requests on th until none remain.
func (p *manualPool) runAll(eng *core.Engine, th *core.Thread) {
	for {
		reqs := p.take()
		if len(reqs) == 0 {
			return
		}
		for _, req := range reqs {
			eng.Invoke(th, req.Queue, req.Priority)
		}
	}
}

func testConfig(buf *bytes.Buffer) *core.EngineConfig {
	cfg := core.DefaultEngineConfig()
	if buf != nil {
		cfg.Logger = core.NewLogger(buf, logiface.LevelWarning)
	} else {
		cfg.Logger = core.NewLogger(&bytes.Buffer{}, logiface.LevelDisabled)
	}
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: cfg.Logger}
	return cfg
}

func newGoEngine(t *testing.T) (*core.Engine, *goPool) {
	t.Helper()
	pool := &goPool{}
	t.Cleanup(pool.wg.Wait)
	return core.NewEngine(pool, testConfig(nil)), pool
}

func newManualEngine(t *testing.T) (*core.Engine, *manualPool) {
	t.Helper()
	pool := &manualPool{}
	return core.NewEngine(pool, testConfig(nil)), pool
}

// waitGroup waits for g with a test timeout.
func waitGroup(t *testing.T, g *core.Group) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.Wait(ctx); err != nil {
		t.Fatalf("group wait: %v (pending = %d)", err, g.Pending())
	}
}

// recordingController records nice values applied to threads.
type recordingController struct {
	mu    sync.Mutex
	calls []niceCall
}

type niceCall struct {
	tid, nice int
}

func (r *recordingController) SetThreadNice(tid, nice int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, niceCall{tid, nice})
}

func (r *recordingController) snapshot() []niceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]niceCall(nil), r.calls...)
}
