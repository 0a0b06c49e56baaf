package prometheus

import (
	"context"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ravynsoft/go-dispatch/core"
)

// QueueSnapshotProvider provides current queue stats snapshots.
// *core.Queue implements it.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports queue and pool Stats() snapshots into
// Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	queuePending   *prom.GaugeVec
	queueInflight  *prom.GaugeVec
	queueDraining  *prom.GaugeVec
	queueSuspended *prom.GaugeVec
	queueOverride  *prom.GaugeVec
	queueExecuted  *prom.GaugeVec
	queueDiscarded *prom.GaugeVec

	poolQueued     *prom.GaugeVec
	poolActive     *prom.GaugeVec
	poolOvercommit *prom.GaugeVec
	poolWorkers    *prom.GaugeVec
	poolRunning    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: "dispatch", Name: name, Help: help}, labels)
	}
	p := &SnapshotPoller{
		interval: interval,
		queues:   make(map[string]QueueSnapshotProvider),
		pools:    make(map[string]PoolSnapshotProvider),

		queuePending:   gauge("queue_pending", "Items waiting in the queue.", "queue", "target"),
		queueInflight:  gauge("queue_inflight", "Items of a concurrent queue running on its target.", "queue", "target"),
		queueDraining:  gauge("queue_draining", "Queue drain state (1=draining, 0=idle).", "queue", "target"),
		queueSuspended: gauge("queue_suspended", "Queue suspension state (1=suspended).", "queue", "target"),
		queueOverride:  gauge("queue_override_qos", "Current override class (0=unspecified .. 6=user-interactive).", "queue", "target"),
		queueExecuted:  gauge("queue_executed_total", "Queue executed item count snapshot.", "queue", "target"),
		queueDiscarded: gauge("queue_discarded_total", "Queue discarded item count snapshot.", "queue", "target"),

		poolQueued:     gauge("pool_queued", "Drain requests waiting for a worker.", "pool"),
		poolActive:     gauge("pool_active", "Drain requests being run.", "pool"),
		poolOvercommit: gauge("pool_overcommit", "Transient overcommit workers.", "pool"),
		poolWorkers:    gauge("pool_workers", "Worker count per pool.", "pool"),
		poolRunning:    gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.queuePending, &p.queueInflight, &p.queueDraining, &p.queueSuspended,
		&p.queueOverride, &p.queueExecuted, &p.queueDiscarded,
		&p.poolQueued, &p.poolActive, &p.poolOvercommit, &p.poolWorkers, &p.poolRunning,
	} {
		var err error
		if *g, err = registerCollector(reg, *g); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// RemoveQueue stops polling name and deletes its series. Call it before
// releasing the queue.
func (p *SnapshotPoller) RemoveQueue(name string) {
	if p == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	delete(p.queues, name)
	p.queuesMu.Unlock()

	match := prom.Labels{"queue": name}
	for _, g := range []*prom.GaugeVec{
		p.queuePending, p.queueInflight, p.queueDraining, p.queueSuspended,
		p.queueOverride, p.queueExecuted, p.queueDiscarded,
	} {
		g.DeletePartialMatch(match)
	}
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	cancel()
	<-done

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce polls every provider once.
func (p *SnapshotPoller) CollectOnce() {
	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		target := normalizeLabel(stats.Target, "none")
		p.queuePending.WithLabelValues(name, target).Set(float64(stats.Pending))
		p.queueInflight.WithLabelValues(name, target).Set(float64(stats.Inflight))
		p.queueDraining.WithLabelValues(name, target).Set(boolGauge(stats.Draining))
		p.queueSuspended.WithLabelValues(name, target).Set(boolGauge(stats.Suspended))
		p.queueOverride.WithLabelValues(name, target).Set(float64(stats.Override))
		p.queueExecuted.WithLabelValues(name, target).Set(float64(stats.Executed))
		p.queueDiscarded.WithLabelValues(name, target).Set(float64(stats.Discarded))
	}
	p.queuesMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolOvercommit.WithLabelValues(name).Set(float64(stats.Overcommit))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
